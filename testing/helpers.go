// Package testing provides fixtures and helpers for testing skein graphs.
package testing

import (
	"fmt"
	"testing"

	"github.com/zoobzio/skein"
)

// TestKey returns a valid 32-byte AES key for testing.
func TestKey(tb testing.TB) []byte {
	tb.Helper()
	return []byte("32-byte-key-for-aes-256-encrypt!")
}

// TestEncryptor returns an AES encryptor configured for testing.
func TestEncryptor(tb testing.TB) skein.Encryptor {
	tb.Helper()
	enc, err := skein.AES(TestKey(tb))
	if err != nil {
		tb.Fatalf("AES() error: %v", err)
	}
	return enc
}

// Simple is a single-property struct.
type Simple struct {
	TestProperty string `skein:"TestProperty"`
}

// Node is a linked struct able to form cycles and shared references.
type Node struct {
	Name     string  `skein:"name,required"`
	Next     *Node   `skein:"next"`
	Children []*Node `skein:"children"`
}

// Base is the interface fixture for polymorphic fields.
type Base interface {
	Describe() string
}

// Derived extends Simple, implements Base and describes its own properties.
type Derived struct {
	Simple
	TestIntValue int32
	TestPair     skein.Pair[string, int32]
}

// Describe implements Base.
func (d *Derived) Describe() string {
	return fmt.Sprintf("%d %s=%d", d.TestIntValue, d.TestPair.Key, d.TestPair.Value)
}

// TokenProperties implements skein.SelfDescribing.
func (d *Derived) TokenProperties(ctx *skein.SerializationContext) skein.PropertySeq {
	return func(yield func(skein.Property, error) bool) {
		if !skein.YieldProperty(ctx, yield, "TestProperty", d.TestProperty) {
			return
		}
		if !skein.YieldProperty(ctx, yield, "TestIntValue", d.TestIntValue) {
			return
		}
		skein.YieldProperty(ctx, yield, "TestPair", d.TestPair)
	}
}

// SetTokenProperties implements skein.SelfDescribing.
func (d *Derived) SetTokenProperties(props []skein.Property, ctx *skein.SerializationContext) error {
	for _, p := range props {
		switch p.Name {
		case "TestProperty":
			v, err := skein.ExtractProperty[string](ctx, p)
			if err != nil {
				return err
			}
			d.TestProperty = v
		case "TestIntValue":
			v, err := skein.ExtractProperty[int32](ctx, p)
			if err != nil {
				return err
			}
			d.TestIntValue = v
		case "TestPair":
			v, err := skein.ExtractProperty[skein.Pair[string, int32]](ctx, p)
			if err != nil {
				return err
			}
			d.TestPair = v
		}
	}
	return nil
}

// Holder keeps a Base behind an interface-typed field.
type Holder struct {
	Item Base `skein:"item"`
}

// NewRegistry returns a registry with every fixture bound to a stable
// identifier, so streams decode in registries that never encoded them.
func NewRegistry(tb testing.TB) *skein.Registry {
	tb.Helper()
	reg := skein.NewRegistry()
	if err := skein.RegisterStruct[Simple](reg, "simple"); err != nil {
		tb.Fatalf("RegisterStruct[Simple]() error: %v", err)
	}
	if err := skein.RegisterStruct[Node](reg, "node"); err != nil {
		tb.Fatalf("RegisterStruct[Node]() error: %v", err)
	}
	if err := skein.RegisterStruct[Holder](reg, "holder"); err != nil {
		tb.Fatalf("RegisterStruct[Holder]() error: %v", err)
	}
	if err := skein.RegisterTypeFor[Derived](reg, "derived"); err != nil {
		tb.Fatalf("RegisterTypeFor[Derived]() error: %v", err)
	}
	skein.RegisterPair[string, int32](reg)
	return reg
}

// Ring returns n nodes linked in a cycle, starting at the returned node.
func Ring(n int) *Node {
	if n <= 0 {
		return nil
	}
	head := &Node{Name: "node-0"}
	cur := head
	for i := 1; i < n; i++ {
		cur.Next = &Node{Name: fmt.Sprintf("node-%d", i)}
		cur = cur.Next
	}
	cur.Next = head
	return head
}

// Tree returns a root whose children all point back at it, with the first
// child shared twice.
func Tree(children int) *Node {
	root := &Node{Name: "root"}
	for i := range children {
		root.Children = append(root.Children, &Node{Name: fmt.Sprintf("child-%d", i), Next: root})
	}
	if children > 0 {
		root.Children = append(root.Children, root.Children[0])
	}
	return root
}
