package skein

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Identified is implemented by types that carry a stable serialization
// identifier. The identifier replaces the Go type name on the wire.
type Identified interface {
	SerializationID() string
}

// KnownProvidersDeclarer is implemented by types that vendor providers for
// the types nested inside them. The providers apply while a value of the
// declaring type is on the active stack.
type KnownProvidersDeclarer interface {
	KnownTokensProviders() []Provider
}

var (
	identifiedType = reflect.TypeFor[Identified]()
	declarerType   = reflect.TypeFor[KnownProvidersDeclarer]()
)

// genericKey identifies one instantiation of a generic shape the runtime
// cannot build on its own.
type genericKey struct {
	shape string
	a, b  reflect.Type
}

func newGenericKey(shape string, params []reflect.Type) (genericKey, bool) {
	k := genericKey{shape: shape}
	switch len(params) {
	case 1:
		k.a = params[0]
	case 2:
		k.a, k.b = params[0], params[1]
	default:
		return k, false
	}
	return k, true
}

// Registry holds the providers, type identifiers and type mappers shared by
// many operations. Lookups are cached insert-once behind an RWMutex. A
// Registry is safe for concurrent use; SerializationContexts created from it
// are not.
type Registry struct {
	mu        sync.RWMutex
	providers map[reflect.Type]Provider
	bases     []Provider
	resolved  map[reflect.Type]Provider
	known     map[reflect.Type]map[reflect.Type]Provider
	declared  map[reflect.Type]bool
	ids       map[reflect.Type]string
	byID      map[string]reflect.Type
	byName    map[string]reflect.Type
	generics  map[genericKey]reflect.Type
	mapper    *CompositeTypeMapper
}

// NewRegistry returns a registry with the built-in type mappers and
// providers for *url.URL, *list.List and SelfDescribing types.
func NewRegistry() *Registry {
	r := &Registry{
		providers: make(map[reflect.Type]Provider),
		resolved:  make(map[reflect.Type]Provider),
		known:     make(map[reflect.Type]map[reflect.Type]Provider),
		declared:  make(map[reflect.Type]bool),
		ids:       make(map[reflect.Type]string),
		byID:      make(map[string]reflect.Type),
		byName:    make(map[string]reflect.Type),
		generics:  make(map[genericKey]reflect.Type),
	}
	// Built-in kinds are distinct, so this cannot fail.
	r.mapper, _ = NewCompositeTypeMapper(
		FallbackTypeMapper{},
		IdentityTypeMapper{},
		GenericsTypeMapper{},
		PrimitiveTypeMapper{},
	)
	// None of the built-in types declare an identifier.
	for _, p := range []Provider{urlProvider{}, listProvider(), selfDescribingProvider{}} {
		_ = r.addLocked(p)
	}
	return r
}

// Register adds p. A provider for an interface type serves every concrete
// type implementing it through a SubclassAdapter; providers registered later
// win over earlier ones for the same type. If the served type declares an
// Identified identifier already bound to another type, Register fails with
// ErrDuplicateTypeID and leaves the registry unchanged.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(p)
}

func (r *Registry) addLocked(p Provider) error {
	t := p.Type()
	learn := []reflect.Type{t}
	if t.Kind() == reflect.Pointer {
		learn = append(learn, t.Elem())
	}
	for _, lt := range learn {
		if id, ok := declaredID(lt); ok {
			if err := r.checkIDLocked(lt, id); err != nil {
				return err
			}
		}
	}

	if t.Kind() == reflect.Interface {
		r.bases = append(r.bases, p)
	} else {
		r.providers[t] = p
	}
	clear(r.resolved)
	for _, lt := range learn {
		r.learnLocked(lt)
	}
	return nil
}

// RegisterProvider adds a typed provider for T.
func RegisterProvider[T any](r *Registry, p TokensProvider[T]) error {
	return r.Register(ProviderFor(p))
}

// RegisterType binds t to a stable identifier for the "id" type mapping.
func (r *Registry) RegisterType(t reflect.Type, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindLocked(t, id)
}

// RegisterTypeFor binds T to a stable identifier.
func RegisterTypeFor[T any](r *Registry, id string) error {
	return r.RegisterType(reflect.TypeFor[T](), id)
}

// RegisterPair makes Pair[K, V] decodable from its generic type mapping.
func RegisterPair[K, V any](r *Registry) {
	r.noteGeneric(ShapePair, reflect.TypeFor[Pair[K, V]](), reflect.TypeFor[K](), reflect.TypeFor[V]())
}

// RegisterSet makes Set[E] decodable from its generic type mapping.
func RegisterSet[E comparable](r *Registry) {
	r.noteGeneric(ShapeSet, reflect.TypeFor[Set[E]](), reflect.TypeFor[E]())
}

// DeclareKnownProviders makes providers apply to owner and to every type
// nested inside a value of owner while it is being serialized or rebuilt.
func (r *Registry) DeclareKnownProviders(owner reflect.Type, providers ...Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.known[owner]
	if !ok {
		m = make(map[reflect.Type]Provider, len(providers))
		r.known[owner] = m
	}
	for _, p := range providers {
		m[p.Type()] = p
	}
}

// AddTypeMapper adds m with the highest priority so far.
func (r *Registry) AddTypeMapper(m TypeMapper) error {
	return r.mapper.Add(m)
}

// TypeMappers returns the claimed mapping kinds, highest priority first.
func (r *Registry) TypeMappers() []string {
	return r.mapper.Kinds()
}

// knownProvider returns the provider owner declares for t.
func (r *Registry) knownProvider(owner, t reflect.Type) (Provider, bool) {
	r.ensureDeclared(owner)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.known[owner][t]
	return p, ok
}

// ensureDeclared consults owner's KnownProvidersDeclarer method once.
func (r *Registry) ensureDeclared(owner reflect.Type) {
	r.mu.RLock()
	done := r.declared[owner]
	r.mu.RUnlock()
	if done {
		return
	}

	var providers []Provider
	if owner.Implements(declarerType) {
		if d, ok := instanceOf(owner).(KnownProvidersDeclarer); ok {
			providers = d.KnownTokensProviders()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[owner] {
		return
	}
	r.declared[owner] = true
	if len(providers) == 0 {
		return
	}
	m, ok := r.known[owner]
	if !ok {
		m = make(map[reflect.Type]Provider, len(providers))
		r.known[owner] = m
	}
	for _, p := range providers {
		// Explicit declarations win.
		if _, exists := m[p.Type()]; !exists {
			m[p.Type()] = p
		}
	}
}

// resolve returns the registry's provider for t, building it from an
// interface provider or a built-in shape when no exact one exists.
func (r *Registry) resolve(ctx context.Context, t reflect.Type) (Provider, bool) {
	// Fast path: read-lock cache check
	r.mu.RLock()
	if p, ok := r.resolved[t]; ok {
		r.mu.RUnlock()
		return p, true
	}
	r.mu.RUnlock()

	// Slow path: build and cache with write-lock
	r.mu.Lock()
	if p, ok := r.resolved[t]; ok {
		r.mu.Unlock()
		return p, true
	}
	p, how := r.buildLocked(t)
	if p != nil {
		r.resolved[t] = p
	}
	r.mu.Unlock()

	if p == nil {
		return nil, false
	}
	emitProviderResolved(ctx, t.String(), how)
	return p, true
}

func (r *Registry) buildLocked(t reflect.Type) (Provider, string) {
	if p, ok := r.providers[t]; ok {
		return p, "exact"
	}
	if t.Kind() != reflect.Interface {
		for _, base := range slices.Backward(r.bases) {
			if t.Implements(base.Type()) {
				return NewSubclassAdapter(base, t), "adapter"
			}
		}
	}
	if p := shapeProvider(t); p != nil {
		return p, "shape"
	}
	return nil, ""
}

// learnLocked records what the type mappers need to decode t later.
func (r *Registry) learnLocked(t reflect.Type) {
	if name := qualifiedName(t); name != "" {
		if _, ok := r.byName[name]; !ok {
			r.byName[name] = t
		}
	}
	if id, ok := declaredID(t); ok {
		// Checked by addLocked before anything changed.
		_ = r.bindLocked(t, id)
	}
}

func (r *Registry) checkIDLocked(t reflect.Type, id string) error {
	if prev, ok := r.byID[id]; ok && prev != t {
		return fmt.Errorf("%w: %q bound to %s, not %s", ErrDuplicateTypeID, id, prev, t)
	}
	return nil
}

func (r *Registry) bindLocked(t reflect.Type, id string) error {
	if err := r.checkIDLocked(t, id); err != nil {
		return err
	}
	if prev, ok := r.ids[t]; ok && prev != id {
		delete(r.byID, prev)
	}
	r.ids[t] = id
	r.byID[id] = t
	return nil
}

// declaredID returns the identifier t declares through Identified. A pointer
// type whose element already declares one is left to the generics mapper.
func declaredID(t reflect.Type) (string, bool) {
	if t.Kind() == reflect.Interface || !t.Implements(identifiedType) {
		return "", false
	}
	if t.Kind() == reflect.Pointer && t.Elem().Implements(identifiedType) {
		return "", false
	}
	v, ok := instanceOf(t).(Identified)
	if !ok {
		return "", false
	}
	return v.SerializationID(), true
}

// instanceOf returns a usable value of t for calling declaration methods:
// a fresh allocation for pointer types, a zero value otherwise.
func instanceOf(t reflect.Type) any {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.New(t).Elem().Interface()
}

func (r *Registry) typeID(t reflect.Type) (string, bool) {
	r.mu.RLock()
	id, ok := r.ids[t]
	r.mu.RUnlock()
	if ok {
		return id, true
	}
	id, ok = declaredID(t)
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bindLocked(t, id); err != nil {
		return "", false
	}
	return id, true
}

func (r *Registry) typeByID(id string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

func (r *Registry) noteName(name string, t reflect.Type) {
	r.mu.RLock()
	_, ok := r.byName[name]
	r.mu.RUnlock()
	if ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		r.byName[name] = t
	}
}

func (r *Registry) typeByName(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) noteGeneric(shape string, t reflect.Type, params ...reflect.Type) {
	k, ok := newGenericKey(shape, params)
	if !ok {
		return
	}
	r.mu.RLock()
	_, seen := r.generics[k]
	r.mu.RUnlock()
	if seen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generics[k] = t
}

func (r *Registry) genericType(shape string, params ...reflect.Type) (reflect.Type, bool) {
	k, ok := newGenericKey(shape, params)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.generics[k]
	return t, ok
}
