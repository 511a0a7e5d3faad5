package skein

import (
	"cmp"
	"container/list"
	"fmt"
	"iter"
	"net/url"
	"reflect"
	"slices"
)

// Property names used by the built-in providers.
const (
	PropertyCount = "Count"
	PropertyItem  = "Item"
	PropertyKey   = "Key"
	PropertyValue = "Value"
	PropertyURI   = "Uri"
)

// shapeProvider infers a provider from the shape of t.
func shapeProvider(t reflect.Type) Provider {
	switch {
	case isPairType(t):
		return pairProvider{typ: t}
	case isSetType(t):
		return setProvider{typ: t}
	case t.Kind() == reflect.Slice, t.Kind() == reflect.Array:
		return arrayProvider{typ: t}
	case t.Kind() == reflect.Map:
		return dictionaryProvider{typ: t}
	}
	return nil
}

// NewArrayProvider returns the array provider for a slice or array type.
func NewArrayProvider(t reflect.Type) (Provider, error) {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return nil, newTypeMismatchError("slice or array", t.String())
	}
	return arrayProvider{typ: t}, nil
}

// NewDictionaryProvider returns the dictionary provider for a map type.
func NewDictionaryProvider(t reflect.Type) (Provider, error) {
	if t.Kind() != reflect.Map {
		return nil, newTypeMismatchError("map", t.String())
	}
	return dictionaryProvider{typ: t}, nil
}

// arrayProvider emits a Count followed by Count ordered Items.
type arrayProvider struct {
	typ reflect.Type
}

func (p arrayProvider) Type() reflect.Type { return p.typ }

func (p arrayProvider) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		rv := reflect.ValueOf(value)
		n := rv.Len()
		if !yield(Property{Name: PropertyCount, Value: NewToken(Index(n))}, nil) { // #nosec G115 -- lengths fit the index range
			return
		}
		for i := range n {
			if !yieldValue(ctx, yield, PropertyItem, rv.Index(i)) {
				return
			}
		}
	}
}

func (p arrayProvider) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	count := -1
	items := make([]Token, 0, len(props))
	for _, prop := range props {
		switch prop.Name {
		case PropertyCount:
			if count >= 0 {
				return nil, newPropertyError(ErrDuplicateProperty, p.typ.String(), PropertyCount, "")
			}
			n, err := ScalarValue[Index](prop.Value)
			if err != nil {
				return nil, err
			}
			count = int(n)
		case PropertyItem:
			items = append(items, prop.Value)
		}
	}
	if count < 0 {
		return nil, newPropertyError(ErrMissingRequiredProperty, p.typ.String(), PropertyCount, "")
	}
	if len(items) != count {
		return nil, newPropertyError(ErrPropertyCountMismatch, p.typ.String(), PropertyItem,
			fmt.Sprintf("count %d, got %d items", count, len(items)))
	}

	var out reflect.Value
	if p.typ.Kind() == reflect.Array {
		if count != p.typ.Len() {
			return nil, newPropertyError(ErrPropertyCountMismatch, p.typ.String(), PropertyCount,
				fmt.Sprintf("array length %d, got count %d", p.typ.Len(), count))
		}
		out = reflect.New(p.typ).Elem()
	} else {
		out = reflect.MakeSlice(p.typ, count, count)
		ctx.Track(out.Interface())
	}
	for i, tok := range items {
		v, err := ctx.ExtractValue(tok, p.typ.Elem())
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(v)
	}
	return out.Interface(), nil
}

type collectionProvider[C, E any] struct {
	create func() C
	add    func(C, E) C
	each   func(C) iter.Seq[E]
}

// NewCollectionProvider returns a provider for C that emits one ordered Item
// per element and rebuilds by repeated add, starting from create().
func NewCollectionProvider[C, E any](create func() C, add func(C, E) C, each func(C) iter.Seq[E]) Provider {
	return ProviderFor[C](collectionProvider[C, E]{create: create, add: add, each: each})
}

func (p collectionProvider[C, E]) GetProperties(value C, ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		for e := range p.each(value) {
			if !YieldProperty(ctx, yield, PropertyItem, e) {
				return
			}
		}
	}
}

func (p collectionProvider[C, E]) CreateObject(props []Property, ctx *SerializationContext) (C, error) {
	c := p.create()
	ctx.Track(c)
	for _, prop := range props {
		if prop.Name != PropertyItem {
			continue
		}
		e, err := ExtractProperty[E](ctx, prop)
		if err != nil {
			var zero C
			return zero, err
		}
		c = p.add(c, e)
	}
	return c, nil
}

func listProvider() Provider {
	return NewCollectionProvider(list.New,
		func(l *list.List, e any) *list.List {
			l.PushBack(e)
			return l
		},
		func(l *list.List) iter.Seq[any] {
			return func(yield func(any) bool) {
				for el := l.Front(); el != nil; el = el.Next() {
					if !yield(el.Value) {
						return
					}
				}
			}
		},
	)
}

// setProvider serves Set[E] instantiations as collections.
type setProvider struct {
	typ reflect.Type
}

func (p setProvider) Type() reflect.Type { return p.typ }

func (p setProvider) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		for _, k := range sortedKeys(reflect.ValueOf(value)) {
			if !yieldValue(ctx, yield, PropertyItem, k) {
				return
			}
		}
	}
}

func (p setProvider) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	out := reflect.MakeMapWithSize(p.typ, len(props))
	ctx.Track(out.Interface())
	present := reflect.Zero(p.typ.Elem())
	for _, prop := range props {
		if prop.Name != PropertyItem {
			continue
		}
		k, err := ctx.ExtractValue(prop.Value, p.typ.Key())
		if err != nil {
			return nil, err
		}
		if !k.Comparable() {
			return nil, newTypeMismatchError("comparable element", k.Type().String())
		}
		out.SetMapIndex(k, present)
	}
	return out.Interface(), nil
}

// dictionaryProvider flattens each entry into a Key property followed by a
// Value property.
type dictionaryProvider struct {
	typ reflect.Type
}

func (p dictionaryProvider) Type() reflect.Type { return p.typ }

func (p dictionaryProvider) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		rv := reflect.ValueOf(value)
		for _, k := range sortedKeys(rv) {
			if !yieldValue(ctx, yield, PropertyKey, k) {
				return
			}
			if !yieldValue(ctx, yield, PropertyValue, rv.MapIndex(k)) {
				return
			}
		}
	}
}

func (p dictionaryProvider) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	out := reflect.MakeMapWithSize(p.typ, len(props)/2)
	ctx.Track(out.Interface())
	var (
		key     Token
		haveKey bool
	)
	for _, prop := range props {
		switch prop.Name {
		case PropertyKey:
			if haveKey {
				return nil, newPropertyError(ErrPropertyCountMismatch, p.typ.String(), PropertyKey, "key without value")
			}
			key, haveKey = prop.Value, true
		case PropertyValue:
			if !haveKey {
				return nil, newPropertyError(ErrPropertyCountMismatch, p.typ.String(), PropertyValue, "value without key")
			}
			haveKey = false
			k, err := ctx.ExtractValue(key, p.typ.Key())
			if err != nil {
				return nil, err
			}
			if !k.Comparable() {
				return nil, newTypeMismatchError("comparable key", k.Type().String())
			}
			v, err := ctx.ExtractValue(prop.Value, p.typ.Elem())
			if err != nil {
				return nil, err
			}
			out.SetMapIndex(k, v)
		}
	}
	if haveKey {
		return nil, newPropertyError(ErrPropertyCountMismatch, p.typ.String(), PropertyKey, "key without value")
	}
	return out.Interface(), nil
}

// pairProvider serves Pair[K, V] instantiations: exactly one Key and one
// Value, both required.
type pairProvider struct {
	typ reflect.Type
}

func (p pairProvider) Type() reflect.Type { return p.typ }

func (p pairProvider) GetProperties(value any, ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		rv := reflect.ValueOf(value)
		if !yieldValue(ctx, yield, PropertyKey, rv.Field(0)) {
			return
		}
		yieldValue(ctx, yield, PropertyValue, rv.Field(1))
	}
}

func (p pairProvider) CreateObject(props []Property, ctx *SerializationContext) (any, error) {
	byName, err := IndexProperties(p.typ, props, PropertyKey, PropertyValue)
	if err != nil {
		return nil, err
	}
	out := reflect.New(p.typ).Elem()
	for i, name := range []string{PropertyKey, PropertyValue} {
		v, err := ctx.ExtractValue(byName[name], p.typ.Field(i).Type)
		if err != nil {
			return nil, err
		}
		out.Field(i).Set(v)
	}
	return out.Interface(), nil
}

// urlProvider carries a *url.URL as its string form.
type urlProvider struct{}

func (urlProvider) Type() reflect.Type { return reflect.TypeFor[*url.URL]() }

func (urlProvider) GetProperties(value any, _ *SerializationContext) PropertySeq {
	u, ok := value.(*url.URL)
	if !ok {
		return failed(newTypeMismatchError("*url.URL", fmt.Sprintf("%T", value)))
	}
	return Properties(Property{Name: PropertyURI, Value: StringToken(u.String())})
}

func (urlProvider) CreateObject(props []Property, _ *SerializationContext) (any, error) {
	byName, err := IndexProperties(reflect.TypeFor[*url.URL](), props, PropertyURI)
	if err != nil {
		return nil, err
	}
	s, err := byName[PropertyURI].AsString()
	if err != nil {
		return nil, err
	}
	return url.Parse(s)
}

// sortedKeys returns the keys of a map, sorted when their kind is ordered so
// that equal maps serialize to equal bytes.
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	var compare func(a, b reflect.Value) int
	switch m.Type().Key().Kind() {
	case reflect.String:
		compare = func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		compare = func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		compare = func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) }
	case reflect.Float32, reflect.Float64:
		compare = func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) }
	case reflect.Bool:
		compare = func(a, b reflect.Value) int {
			switch {
			case a.Bool() == b.Bool():
				return 0
			case b.Bool():
				return -1
			}
			return 1
		}
	default:
		return keys
	}
	slices.SortFunc(keys, compare)
	return keys
}
