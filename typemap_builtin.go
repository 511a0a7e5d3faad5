package skein

import (
	"container/list"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mapping kinds claimed by the built-in mappers.
const (
	MappingPrimitive = "primitive"
	MappingGeneric   = "generic"
	MappingIdentity  = "id"
	MappingName      = "name"
)

// Generic shape names used by GenericsTypeMapper.
const (
	ShapeArray      = "array"
	ShapeVector     = "vector"
	ShapeDictionary = "dictionary"
	ShapeList       = "list"
	ShapeSet        = "set"
	ShapePair       = "pair"
	ShapePointer    = "pointer"
)

var primitiveTypes = map[string]reflect.Type{
	"bool":     reflect.TypeFor[bool](),
	"uint8":    reflect.TypeFor[uint8](),
	"int8":     reflect.TypeFor[int8](),
	"int16":    reflect.TypeFor[int16](),
	"uint16":   reflect.TypeFor[uint16](),
	"int32":    reflect.TypeFor[int32](),
	"uint32":   reflect.TypeFor[uint32](),
	"int64":    reflect.TypeFor[int64](),
	"uint64":   reflect.TypeFor[uint64](),
	"int":      reflect.TypeFor[int](),
	"uint":     reflect.TypeFor[uint](),
	"float32":  reflect.TypeFor[float32](),
	"float64":  reflect.TypeFor[float64](),
	"decimal":  reflect.TypeFor[Decimal](),
	"char":     reflect.TypeFor[Char](),
	"index":    reflect.TypeFor[Index](),
	"uuid":     reflect.TypeFor[uuid.UUID](),
	"instant":  reflect.TypeFor[Instant](),
	"time":     reflect.TypeFor[time.Time](),
	"duration": reflect.TypeFor[time.Duration](),
	"string":   reflect.TypeFor[string](),
	"bytes":    reflect.TypeFor[[]byte](),
	"uri":      reflect.TypeFor[*url.URL](),
	"object":   reflect.TypeFor[any](),
}

var primitiveNames = func() map[reflect.Type]string {
	names := make(map[reflect.Type]string, len(primitiveTypes))
	for name, t := range primitiveTypes {
		names[t] = name
	}
	return names
}()

// PrimitiveTypeMapper maps the closed set of scalar types, string, []byte,
// *url.URL and the empty interface.
type PrimitiveTypeMapper struct{}

func (PrimitiveTypeMapper) Kind() string { return MappingPrimitive }

func (PrimitiveTypeMapper) GetTypeName(t reflect.Type, _ *SerializationContext) (TypeMapping, bool) {
	name, ok := primitiveNames[t]
	if !ok {
		return TypeMapping{}, false
	}
	return TypeMapping{Kind: MappingPrimitive, Type: name}, true
}

func (PrimitiveTypeMapper) GetType(m TypeMapping, _ *SerializationContext) (reflect.Type, bool) {
	t, ok := primitiveTypes[m.Type]
	return t, ok
}

// GenericsTypeMapper maps unnamed composite types (slices, arrays, maps,
// pointers) plus Pair, Set and *list.List. Results are memoised on the
// SerializationContext.
type GenericsTypeMapper struct{}

func (GenericsTypeMapper) Kind() string { return MappingGeneric }

func (GenericsTypeMapper) GetTypeName(t reflect.Type, ctx *SerializationContext) (TypeMapping, bool) {
	if m, ok := ctx.genericNames[t]; ok {
		return m, true
	}
	var (
		shape  string
		params []reflect.Type
	)
	switch {
	case t == listType:
		shape = ShapeList
	case isPairType(t):
		shape, params = ShapePair, []reflect.Type{t.Field(0).Type, t.Field(1).Type}
	case isSetType(t):
		shape, params = ShapeSet, []reflect.Type{t.Key()}
	case t.Name() != "":
		return TypeMapping{}, false
	case t.Kind() == reflect.Pointer:
		shape, params = ShapePointer, []reflect.Type{t.Elem()}
	case t.Kind() == reflect.Slice:
		shape, params = ShapeArray, []reflect.Type{t.Elem()}
	case t.Kind() == reflect.Array:
		shape, params = ShapeVector+"/"+strconv.Itoa(t.Len()), []reflect.Type{t.Elem()}
	case t.Kind() == reflect.Map:
		shape, params = ShapeDictionary, []reflect.Type{t.Key(), t.Elem()}
	default:
		return TypeMapping{}, false
	}
	m := TypeMapping{Kind: MappingGeneric, Type: shape}
	for _, p := range params {
		pm, ok := ctx.registry.mapper.GetTypeName(p, ctx)
		if !ok {
			return TypeMapping{}, false
		}
		m.Params = append(m.Params, pm)
	}
	if shape == ShapePair || shape == ShapeSet {
		ctx.registry.noteGeneric(shape, t, params...)
	}
	ctx.genericNames[t] = m
	return m, true
}

func (GenericsTypeMapper) GetType(m TypeMapping, ctx *SerializationContext) (reflect.Type, bool) {
	key := m.Key()
	if t, ok := ctx.genericTypes[key]; ok {
		return t, true
	}
	params := make([]reflect.Type, len(m.Params))
	for i, p := range m.Params {
		t, ok := ctx.registry.mapper.GetType(p, ctx)
		if !ok {
			return nil, false
		}
		params[i] = t
	}
	t, ok := buildGeneric(m.Type, params, ctx.registry)
	if !ok {
		return nil, false
	}
	ctx.genericTypes[key] = t
	return t, true
}

func buildGeneric(shape string, params []reflect.Type, reg *Registry) (reflect.Type, bool) {
	if shape == ShapeList {
		return listType, len(params) == 0
	}
	if n, ok := strings.CutPrefix(shape, ShapeVector+"/"); ok {
		length, err := strconv.Atoi(n)
		if err != nil || length < 0 || len(params) != 1 || !vectorFits(length, params[0]) {
			return nil, false
		}
		return reflect.ArrayOf(length, params[0]), true
	}
	switch shape {
	case ShapePointer:
		if len(params) == 1 {
			return reflect.PointerTo(params[0]), true
		}
	case ShapeArray:
		if len(params) == 1 {
			return reflect.SliceOf(params[0]), true
		}
	case ShapeDictionary:
		if len(params) == 2 && params[0].Comparable() {
			return reflect.MapOf(params[0], params[1]), true
		}
	case ShapePair, ShapeSet:
		return reg.genericType(shape, params...)
	}
	return nil, false
}

var listType = reflect.TypeFor[*list.List]()

// vectorFits reports whether [length]elem stays inside the index range and
// the address space; reflect.ArrayOf panics past the latter.
func vectorFits(length int, elem reflect.Type) bool {
	if length > math.MaxInt32 {
		return false
	}
	size := elem.Size()
	return size == 0 || uint64(length) <= uint64(math.MaxInt)/uint64(size)
}

// IdentityTypeMapper maps types registered with an explicit identifier, or
// implementing Identified, to that identifier. Identifiers survive renames.
type IdentityTypeMapper struct{}

func (IdentityTypeMapper) Kind() string { return MappingIdentity }

func (IdentityTypeMapper) GetTypeName(t reflect.Type, ctx *SerializationContext) (TypeMapping, bool) {
	id, ok := ctx.registry.typeID(t)
	if !ok {
		return TypeMapping{}, false
	}
	return TypeMapping{Kind: MappingIdentity, Type: id}, true
}

func (IdentityTypeMapper) GetType(m TypeMapping, ctx *SerializationContext) (reflect.Type, bool) {
	return ctx.registry.typeByID(m.Type)
}

// FallbackTypeMapper maps named types by their fully qualified Go name. The
// names break when packages move; it only answers when nothing else does.
// Decoding resolves names of types registered with, or previously encoded
// through, the same Registry.
type FallbackTypeMapper struct{}

func (FallbackTypeMapper) Kind() string { return MappingName }

func (FallbackTypeMapper) GetTypeName(t reflect.Type, ctx *SerializationContext) (TypeMapping, bool) {
	name := qualifiedName(t)
	if name == "" {
		return TypeMapping{}, false
	}
	ctx.registry.noteName(name, t)
	return TypeMapping{Kind: MappingName, Type: name}, true
}

func (FallbackTypeMapper) GetType(m TypeMapping, ctx *SerializationContext) (reflect.Type, bool) {
	return ctx.registry.typeByName(m.Type)
}

// qualifiedName returns "import/path.Name" for named types and "" otherwise.
func qualifiedName(t reflect.Type) string {
	if t.Name() == "" || t.PkgPath() == "" {
		return ""
	}
	return t.PkgPath() + "." + t.Name()
}
