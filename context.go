package skein

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// Defaults applied by NewSerializationContext.
const (
	DefaultMaxPayload = 32 << 20
	DefaultMaxDepth   = 512
)

// ContextOption configures a SerializationContext.
type ContextOption func(*SerializationContext)

// WithContext sets the context.Context that telemetry events are emitted on.
// The core never blocks on it.
func WithContext(ctx context.Context) ContextOption {
	return func(c *SerializationContext) {
		c.events = ctx
	}
}

// WithMaxPayload caps the length of any single string or byte array.
func WithMaxPayload(n int) ContextOption {
	return func(c *SerializationContext) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// WithMaxDepth caps the nesting of complex types.
func WithMaxDepth(n int) ContextOption {
	return func(c *SerializationContext) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithProvider registers p for its exact type on this context only. It takes
// precedence over everything the Registry knows.
func WithProvider(p Provider) ContextOption {
	return func(c *SerializationContext) {
		c.providers[p.Type()] = p
	}
}

// identity keys an identity-bearing value: a pointer, a map, or a slice
// window over a backing array.
type identity struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

func identityOf(rv reflect.Value) (identity, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Cap() == 0 {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}, true
	}
	return identity{}, false
}

// SerializationContext is the state of one serialize, extract, write, read
// or clone operation: the object reference table, the string table, the
// active type stack and the providers in scope. It is not safe for
// concurrent use. Create one per operation and discard it afterwards.
type SerializationContext struct {
	registry   *Registry
	providers  map[reflect.Type]Provider
	events     context.Context
	maxPayload int
	maxDepth   int

	depth int
	types []reflect.Type

	// Encoding.
	indexOf   map[identity]int
	nextIndex int
	strIndex  map[string]int

	// Decoding.
	objects  map[int]reflect.Value
	defs     map[int]*ComplexType
	creating []int
	strTable []string

	// Memoised generic mappings.
	genericNames map[reflect.Type]TypeMapping
	genericTypes map[string]reflect.Type
}

// NewSerializationContext returns a fresh context over reg. A nil reg gets a
// new default Registry.
func NewSerializationContext(reg *Registry, opts ...ContextOption) *SerializationContext {
	if reg == nil {
		reg = NewRegistry()
	}
	c := &SerializationContext{
		registry:     reg,
		providers:    make(map[reflect.Type]Provider),
		events:       context.Background(),
		maxPayload:   DefaultMaxPayload,
		maxDepth:     DefaultMaxDepth,
		indexOf:      make(map[identity]int),
		strIndex:     make(map[string]int),
		objects:      make(map[int]reflect.Value),
		defs:         make(map[int]*ComplexType),
		genericNames: make(map[reflect.Type]TypeMapping),
		genericTypes: make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry this context resolves through.
func (c *SerializationContext) Registry() *Registry { return c.registry }

// Context returns the context.Context used for telemetry.
func (c *SerializationContext) Context() context.Context { return c.events }

// MaxPayload returns the string and byte array cap in bytes.
func (c *SerializationContext) MaxPayload() int { return c.maxPayload }

// RegisterProvider adds a context-local provider for p.Type().
func (c *SerializationContext) RegisterProvider(p Provider) {
	c.providers[p.Type()] = p
}

// ObjectCount returns the number of complex types indexed so far.
func (c *SerializationContext) ObjectCount() int {
	return max(c.nextIndex, len(c.defs))
}

// StringCount returns the number of distinct strings interned so far.
func (c *SerializationContext) StringCount() int {
	return max(len(c.strIndex), len(c.strTable))
}

// ActiveType returns the innermost type being serialized or rebuilt, or nil
// outside any complex type.
func (c *SerializationContext) ActiveType() reflect.Type {
	if len(c.types) == 0 {
		return nil
	}
	return c.types[len(c.types)-1]
}

func (c *SerializationContext) push(t reflect.Type) error {
	if c.depth >= c.maxDepth {
		return newFormatError(ErrDepthExceeded, -1, fmt.Sprintf("nesting deeper than %d", c.maxDepth))
	}
	c.depth++
	c.types = append(c.types, t)
	return nil
}

func (c *SerializationContext) pop() {
	c.depth--
	c.types = c.types[:len(c.types)-1]
}

// Provider resolves the provider serving t: context-local registrations
// first, then providers declared known by t or by any type on the active
// stack (innermost first), then the Registry.
func (c *SerializationContext) Provider(t reflect.Type) (Provider, error) {
	if p, ok := c.providers[t]; ok {
		return p, nil
	}
	if p, ok := c.registry.knownProvider(t, t); ok {
		return p, nil
	}
	for _, owner := range slices.Backward(c.types) {
		if p, ok := c.registry.knownProvider(owner, t); ok {
			return p, nil
		}
	}
	if p, ok := c.registry.resolve(c.events, t); ok {
		return p, nil
	}
	return nil, newTypeError(ErrNoProviderFound, t.String())
}

// TypeName maps t through the registry's type mappers.
func (c *SerializationContext) TypeName(t reflect.Type) (TypeMapping, error) {
	m, ok := c.registry.mapper.GetTypeName(t, c)
	if !ok {
		return TypeMapping{}, newTypeError(ErrNoTypeMapping, t.String())
	}
	return m, nil
}

// ResolveType maps m back to a run-time type.
func (c *SerializationContext) ResolveType(m TypeMapping) (reflect.Type, error) {
	t, ok := c.registry.mapper.GetType(m, c)
	if !ok {
		return nil, newTypeError(ErrNoTypeMapping, m.String())
	}
	return t, nil
}

// Serialize turns v into a token. See SerializeValue.
func (c *SerializationContext) Serialize(v any) (Token, error) {
	return c.SerializeValue(reflect.ValueOf(v))
}

// SerializeValue turns rv into a token. Nil values become Nothing, strings
// and byte slices become string and byte array references, scalar types
// become scalar tokens, and everything else becomes a complex type whose
// properties are produced lazily by its provider. An identity-bearing value
// seen before in this context becomes a back-reference.
func (c *SerializationContext) SerializeValue(rv reflect.Value) (Token, error) {
	if !rv.IsValid() {
		return Nothing(), nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Nothing(), nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return Nothing(), nil
		}
	}
	t := rv.Type()
	if t.Kind() == reflect.String {
		return StringToken(rv.String()), nil
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return BytesToken(rv.Bytes()), nil
	}
	if s, ok := lookupScalar(t); ok {
		return s.create(rv), nil
	}

	id, tracked := identityOf(rv)
	if tracked {
		if index, ok := c.indexOf[id]; ok {
			return ReferenceToken(index), nil
		}
	}
	p, err := c.Provider(t)
	if err != nil {
		return Token{}, err
	}
	index := c.nextIndex
	c.nextIndex++
	if tracked {
		c.indexOf[id] = index
	}
	value := rv.Interface()
	return ComplexToken(&ComplexType{
		Type:       t,
		Index:      index,
		Properties: c.scoped(t, p.GetProperties(value, c)),
	}), nil
}

// scoped keeps t on the active stack while seq is being consumed.
func (c *SerializationContext) scoped(t reflect.Type, seq PropertySeq) PropertySeq {
	return func(yield func(Property, error) bool) {
		if err := c.push(t); err != nil {
			yield(Property{}, err)
			return
		}
		defer c.pop()
		if seq == nil {
			return
		}
		for p, err := range seq {
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Track registers obj as the instance under construction for the complex
// type currently being rebuilt. Providers that allocate a pointer, map or
// slice before extracting their properties should Track it first, so that
// cyclic references inside those properties resolve to it.
func (c *SerializationContext) Track(obj any) {
	if len(c.creating) == 0 {
		return
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return
		}
		c.objects[c.creating[len(c.creating)-1]] = rv
	}
}

// ExtractValue rebuilds a value of type target from tok. Interface targets
// receive the token's own run-time type (canonical Go types for scalars).
func (c *SerializationContext) ExtractValue(tok Token, target reflect.Type) (reflect.Value, error) {
	switch {
	case tok.kind == KindNothing:
		return reflect.Zero(target), nil
	case tok.kind.IsScalar():
		return c.extractScalar(tok, target)
	case tok.kind != KindReference:
		return reflect.Value{}, newFormatError(ErrUnknownTokenKind, -1, tok.kind.String())
	}
	switch ref := tok.ref.(type) {
	case string:
		return assignTo(reflect.ValueOf(ref), target, RefString.String())
	case []byte:
		if target.Kind() == reflect.Slice && target.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf(ref).Convert(target), nil
		}
		return assignTo(reflect.ValueOf(ref), target, RefByteArray.String())
	case ComplexTypeReference:
		obj, err := c.resolve(ref.Index)
		if err != nil {
			return reflect.Value{}, err
		}
		return assignTo(obj, target, obj.Type().String())
	case *ComplexType:
		if ref == nil {
			return reflect.Zero(target), nil
		}
		obj, err := c.create(ref)
		if err != nil {
			return reflect.Value{}, err
		}
		return assignTo(obj, target, obj.Type().String())
	}
	return reflect.Value{}, newFormatError(ErrUnknownTokenKind, -1, tok.describe())
}

func (c *SerializationContext) extractScalar(tok Token, target reflect.Type) (reflect.Value, error) {
	if target.Kind() == reflect.Interface {
		return assignTo(reflect.ValueOf(tok.scalar), target, tok.describe())
	}
	s, ok := lookupScalar(target)
	if !ok {
		return reflect.Value{}, newTypeMismatchError(target.String(), tok.describe())
	}
	if s.kind != tok.kind {
		return reflect.Value{}, newTypeMismatchError(s.kind.String(), tok.describe())
	}
	out := s.extract(tok, target)
	if out.Type() != target {
		out = out.Convert(target)
	}
	return out, nil
}

// assignTo adapts v to target, converting between named and unnamed forms of
// the same composite type.
func assignTo(v reflect.Value, target reflect.Type, actual string) (reflect.Value, error) {
	if v.Type() == target {
		return v, nil
	}
	if v.Type().AssignableTo(target) {
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, nil
	}
	if v.Kind() == target.Kind() && v.Type().ConvertibleTo(target) {
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Map, reflect.Array, reflect.Struct, reflect.Pointer:
			return v.Convert(target), nil
		}
	}
	return reflect.Value{}, newTypeMismatchError(target.String(), actual)
}

// define records ct as the definition of its index.
func (c *SerializationContext) define(ct *ComplexType) error {
	if prev, ok := c.defs[ct.Index]; ok && prev != ct {
		return newFormatError(ErrInvalidFormat, -1, fmt.Sprintf("index %d defined twice", ct.Index))
	}
	c.defs[ct.Index] = ct
	return nil
}

// collect drains ct's properties, depth first, recording every nested
// definition on the way. Draining depth first keeps lazily produced
// properties in the order a Writer would see them.
func (c *SerializationContext) collect(ct *ComplexType) error {
	if ct.done {
		return nil
	}
	if err := c.define(ct); err != nil {
		return err
	}
	var props []Property
	if ct.Properties != nil {
		for p, err := range ct.Properties {
			if err != nil {
				return err
			}
			if child, ok := p.Value.ref.(*ComplexType); ok && p.Value.kind == KindReference && child != nil {
				if err := c.collect(child); err != nil {
					return err
				}
			}
			props = append(props, p)
		}
	}
	ct.collected = props
	ct.done = true
	return nil
}

// create rebuilds the object defined by ct, once.
func (c *SerializationContext) create(ct *ComplexType) (reflect.Value, error) {
	if obj, ok := c.objects[ct.Index]; ok && !slices.Contains(c.creating, ct.Index) {
		return obj, nil
	}
	if slices.Contains(c.creating, ct.Index) {
		return reflect.Value{}, newReferenceError(ct.Index)
	}
	if err := c.collect(ct); err != nil {
		return reflect.Value{}, err
	}
	if err := c.define(ct); err != nil {
		return reflect.Value{}, err
	}
	if ct.Type == nil {
		return reflect.Value{}, newTypeError(ErrNoTypeMapping, fmt.Sprintf("complex type %d", ct.Index))
	}
	p, err := c.Provider(ct.Type)
	if err != nil {
		return reflect.Value{}, err
	}
	if err := c.push(ct.Type); err != nil {
		return reflect.Value{}, err
	}
	c.creating = append(c.creating, ct.Index)
	obj, err := p.CreateObject(ct.collected, c)
	c.creating = c.creating[:len(c.creating)-1]
	c.pop()
	if err != nil {
		return reflect.Value{}, err
	}

	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		rv = reflect.Zero(ct.Type)
	}
	if rv.Type() != ct.Type {
		if rv, err = assignTo(rv, ct.Type, rv.Type().String()); err != nil {
			return reflect.Value{}, err
		}
	}
	c.objects[ct.Index] = rv
	return rv, nil
}

// resolve returns the object registered at index, creating it first when its
// definition is known but has not been rebuilt yet.
func (c *SerializationContext) resolve(index int) (reflect.Value, error) {
	if obj, ok := c.objects[index]; ok {
		return obj, nil
	}
	ct, ok := c.defs[index]
	if !ok || slices.Contains(c.creating, index) {
		return reflect.Value{}, newReferenceError(index)
	}
	return c.create(ct)
}

// internString returns the string table index of s and whether s is new.
func (c *SerializationContext) internString(s string) (int, bool) {
	if index, ok := c.strIndex[s]; ok {
		return index, false
	}
	index := len(c.strIndex)
	c.strIndex[s] = index
	return index, true
}
