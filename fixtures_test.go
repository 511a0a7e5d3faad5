package skein

import (
	"math"
	"testing"
	"time"
)

type testObject struct {
	TestProperty string
}

type node struct {
	Name     string  `skein:"name,required"`
	Next     *node   `skein:"next"`
	Children []*node `skein:"children"`
}

type base interface {
	Describe() string
}

// derived extends testObject, describes its own properties and is reachable
// only through base.
type derived struct {
	testObject
	TestIntValue int32
	TestPair     Pair[string, int32]
}

func (d *derived) Describe() string { return "derived" }

func (d *derived) TokenProperties(ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		if !YieldProperty(ctx, yield, "TestProperty", d.TestProperty) {
			return
		}
		if !YieldProperty(ctx, yield, "TestIntValue", d.TestIntValue) {
			return
		}
		YieldProperty(ctx, yield, "TestPair", d.TestPair)
	}
}

func (d *derived) SetTokenProperties(props []Property, ctx *SerializationContext) error {
	for _, p := range props {
		var err error
		switch p.Name {
		case "TestProperty":
			d.TestProperty, err = ExtractProperty[string](ctx, p)
		case "TestIntValue":
			d.TestIntValue, err = ExtractProperty[int32](ctx, p)
		case "TestPair":
			d.TestPair, err = ExtractProperty[Pair[string, int32]](ctx, p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type holder struct {
	Item base `skein:"item"`
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := RegisterStruct[testObject](reg, "test-object"); err != nil {
		t.Fatalf("RegisterStruct(testObject) error: %v", err)
	}
	if err := RegisterStruct[node](reg, "node"); err != nil {
		t.Fatalf("RegisterStruct(node) error: %v", err)
	}
	if err := RegisterStruct[holder](reg, "holder"); err != nil {
		t.Fatalf("RegisterStruct(holder) error: %v", err)
	}
	if err := RegisterTypeFor[derived](reg, "derived"); err != nil {
		t.Fatalf("RegisterTypeFor(derived) error: %v", err)
	}
	RegisterPair[string, int32](reg)
	return reg
}

// roundTrip marshals v and unmarshals it in a fresh context over reg.
func roundTrip[T any](t *testing.T, reg *Registry, v T) T {
	t.Helper()
	data, err := Marshal(v, NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := Unmarshal[T](data, NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	return out
}

// sameScalar compares scalar payloads, treating NaN as equal to itself and
// times as equal when they name the same instant at the same offset.
func sameScalar(a, b any) bool {
	switch a := a.(type) {
	case float32:
		bf, ok := b.(float32)
		return ok && (a == bf || math.IsNaN(float64(a)) && math.IsNaN(float64(bf)))
	case float64:
		bf, ok := b.(float64)
		return ok && (a == bf || math.IsNaN(a) && math.IsNaN(bf))
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok || !a.Equal(bt) {
			return false
		}
		_, ao := a.Zone()
		_, bo := bt.Zone()
		return ao == bo
	case Instant:
		bi, ok := b.(Instant)
		return ok && a.Equal(bi.Time) && bi.Location() == time.UTC
	}
	return a == b
}
