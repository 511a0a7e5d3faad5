package skein

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// TypeMapping is a portable, recursive description of a run-time type.
// Two mappings are the same type when their keys are equal.
type TypeMapping struct {
	Kind   string
	Type   string
	Params []TypeMapping
}

// Key returns a string that identifies the mapping structurally.
func (m TypeMapping) Key() string {
	var b strings.Builder
	m.writeKey(&b)
	return b.String()
}

func (m TypeMapping) writeKey(b *strings.Builder) {
	b.WriteString(strconv.Quote(m.Kind))
	b.WriteByte(':')
	b.WriteString(strconv.Quote(m.Type))
	if len(m.Params) == 0 {
		return
	}
	b.WriteByte('<')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		p.writeKey(b)
	}
	b.WriteByte('>')
}

// Equal reports structural equality.
func (m TypeMapping) Equal(o TypeMapping) bool {
	return m.Key() == o.Key()
}

func (m TypeMapping) String() string {
	if len(m.Params) == 0 {
		return m.Kind + "/" + m.Type
	}
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s/%s[%s]", m.Kind, m.Type, strings.Join(params, ", "))
}

// TypeMapper converts run-time types to mappings and back for one mapping
// kind. Returning false means "not mine, ask the next mapper".
type TypeMapper interface {
	// Kind is the mapping kind this mapper emits. No two mappers in a
	// composite may share a kind.
	Kind() string

	GetTypeName(t reflect.Type, ctx *SerializationContext) (TypeMapping, bool)

	GetType(m TypeMapping, ctx *SerializationContext) (reflect.Type, bool)
}

// CompositeTypeMapper tries its mappers from the most recently added to the
// first and returns the first answer. Safe for concurrent use.
type CompositeTypeMapper struct {
	mu      sync.RWMutex
	mappers []TypeMapper
	kinds   map[string]TypeMapper
}

// NewCompositeTypeMapper returns a composite over mappers, lowest priority first.
func NewCompositeTypeMapper(mappers ...TypeMapper) (*CompositeTypeMapper, error) {
	c := &CompositeTypeMapper{kinds: make(map[string]TypeMapper)}
	for _, m := range mappers {
		if err := c.Add(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers m with a higher priority than every mapper added before it.
func (c *CompositeTypeMapper) Add(m TypeMapper) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.kinds[m.Kind()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTypeKind, m.Kind())
	}
	c.kinds[m.Kind()] = m
	c.mappers = append(c.mappers, m)
	return nil
}

// Kinds returns the claimed kinds in priority order, highest first.
func (c *CompositeTypeMapper) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]string, 0, len(c.mappers))
	for _, m := range slices.Backward(c.mappers) {
		kinds = append(kinds, m.Kind())
	}
	return kinds
}

// GetTypeName returns the mapping of the highest priority mapper that knows t.
func (c *CompositeTypeMapper) GetTypeName(t reflect.Type, ctx *SerializationContext) (TypeMapping, bool) {
	c.mu.RLock()
	mappers := c.mappers
	c.mu.RUnlock()
	for _, m := range slices.Backward(mappers) {
		if name, ok := m.GetTypeName(t, ctx); ok {
			return name, true
		}
	}
	return TypeMapping{}, false
}

// GetType resolves a mapping through the mapper that claims its kind.
func (c *CompositeTypeMapper) GetType(m TypeMapping, ctx *SerializationContext) (reflect.Type, bool) {
	c.mu.RLock()
	mapper, ok := c.kinds[m.Kind]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return mapper.GetType(m, ctx)
}
