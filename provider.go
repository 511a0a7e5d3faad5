package skein

import (
	"fmt"
	"reflect"
)

// Provider converts values of one run-time type to properties and back.
//
// GetProperties may produce its properties lazily; the sequence is consumed
// once. CreateObject receives the properties in stream order and must not
// assume any other order. It fails with ErrMissingRequiredProperty when a
// required property never arrived and ErrDuplicateProperty when a
// non-repeatable one arrived twice.
type Provider interface {
	Type() reflect.Type
	GetProperties(value any, ctx *SerializationContext) PropertySeq
	CreateObject(props []Property, ctx *SerializationContext) (any, error)
}

// TokensProvider is the typed form of Provider.
type TokensProvider[T any] interface {
	GetProperties(value T, ctx *SerializationContext) PropertySeq
	CreateObject(props []Property, ctx *SerializationContext) (T, error)
}

// ProviderFor adapts a typed provider to a Provider for T.
func ProviderFor[T any](p TokensProvider[T]) Provider {
	return typedProvider[T]{inner: p}
}

type typedProvider[T any] struct {
	inner TokensProvider[T]
}

func (p typedProvider[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (p typedProvider[T]) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	v, ok := value.(T)
	if !ok {
		return failed(newTypeMismatchError(reflect.TypeFor[T]().String(), fmt.Sprintf("%T", value)))
	}
	return p.inner.GetProperties(v, ctx)
}

func (p typedProvider[T]) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	return p.inner.CreateObject(props, ctx)
}

// NewProvider returns a Provider for T built from two functions.
func NewProvider[T any](
	get func(value T, ctx *SerializationContext) PropertySeq,
	create func(props []Property, ctx *SerializationContext) (T, error),
) Provider {
	return ProviderFor[T](funcProvider[T]{get: get, create: create})
}

type funcProvider[T any] struct {
	get    func(T, *SerializationContext) PropertySeq
	create func([]Property, *SerializationContext) (T, error)
}

func (f funcProvider[T]) GetProperties(value T, ctx *SerializationContext) PropertySeq {
	return f.get(value, ctx)
}

func (f funcProvider[T]) CreateObject(props []Property, ctx *SerializationContext) (T, error) {
	return f.create(props, ctx)
}

// SubclassAdapter lets a provider registered for an interface serve one
// concrete type implementing it. The base provider sees the concrete type as
// ctx.ActiveType() while rebuilding.
type SubclassAdapter struct {
	base Provider
	typ  reflect.Type
}

// NewSubclassAdapter returns an adapter serving t through base.
func NewSubclassAdapter(base Provider, t reflect.Type) *SubclassAdapter {
	return &SubclassAdapter{base: base, typ: t}
}

func (a *SubclassAdapter) Type() reflect.Type { return a.typ }

// Base returns the wrapped provider.
func (a *SubclassAdapter) Base() Provider { return a.base }

func (a *SubclassAdapter) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	if reflect.TypeOf(value) != a.typ {
		return failed(newTypeMismatchError(a.typ.String(), fmt.Sprintf("%T", value)))
	}
	return a.base.GetProperties(value, ctx)
}

func (a *SubclassAdapter) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	obj, err := a.base.CreateObject(props, ctx)
	if err != nil {
		return nil, err
	}
	if got := reflect.TypeOf(obj); got != a.typ {
		return nil, newTypeMismatchError(a.typ.String(), fmt.Sprint(got))
	}
	return obj, nil
}

// SelfDescribing is implemented by types that enumerate and accept their
// own properties. Such types need no provider of their own: pointers to them
// are served by a built-in provider registered for this interface.
type SelfDescribing interface {
	TokenProperties(ctx *SerializationContext) PropertySeq
	SetTokenProperties(props []Property, ctx *SerializationContext) error
}

type selfDescribingProvider struct{}

func (selfDescribingProvider) Type() reflect.Type { return reflect.TypeFor[SelfDescribing]() }

func (selfDescribingProvider) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	sd, ok := value.(SelfDescribing)
	if !ok {
		return failed(newTypeMismatchError("SelfDescribing", fmt.Sprintf("%T", value)))
	}
	return sd.TokenProperties(ctx)
}

func (selfDescribingProvider) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	t := ctx.ActiveType()
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, newTypeError(ErrNoProviderFound, fmt.Sprintf("%v (self-describing values rebuild through pointers)", t))
	}
	obj := reflect.New(t.Elem()).Interface()
	ctx.Track(obj)
	sd, ok := obj.(SelfDescribing)
	if !ok {
		return nil, newTypeMismatchError("SelfDescribing", t.String())
	}
	if err := sd.SetTokenProperties(props, ctx); err != nil {
		return nil, err
	}
	return obj, nil
}

// YieldProperty serializes value and yields it as the property name. It
// yields the error instead when serialization fails, and reports whether the
// caller should keep producing properties.
func YieldProperty(ctx *SerializationContext, yield func(Property, error) bool, name string, value any) bool {
	return yieldValue(ctx, yield, name, reflect.ValueOf(value))
}

func yieldValue(ctx *SerializationContext, yield func(Property, error) bool, name string, rv reflect.Value) bool {
	tok, err := ctx.SerializeValue(rv)
	if err != nil {
		yield(Property{}, err)
		return false
	}
	return yield(Property{Name: name, Value: tok}, nil)
}

// ExtractProperty extracts a property's value as T.
func ExtractProperty[T any](ctx *SerializationContext, p Property) (T, error) {
	var zero T
	rv, err := ctx.ExtractValue(p.Value, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := rv.Interface().(T)
	return out, nil
}

// IndexProperties indexes props by name for a type rebuilt from named,
// non-repeatable properties. Every name in required must be present.
func IndexProperties(t reflect.Type, props []Property, required ...string) (map[string]Token, error) {
	byName := make(map[string]Token, len(props))
	for _, p := range props {
		if _, dup := byName[p.Name]; dup {
			return nil, newPropertyError(ErrDuplicateProperty, typeString(t), p.Name, "")
		}
		byName[p.Name] = p.Value
	}
	for _, name := range required {
		if _, ok := byName[name]; !ok {
			return nil, newPropertyError(ErrMissingRequiredProperty, typeString(t), name, "")
		}
	}
	return byName, nil
}

// failed returns a sequence that yields err and stops.
func failed(err error) PropertySeq {
	return func(yield func(Property, error) bool) {
		yield(Property{}, err)
	}
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
