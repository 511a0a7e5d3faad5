package skein

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zoobzio/sentinel"
)

func init() {
	sentinel.Tag("skein")
}

// structField is one serialized field of a struct.
type structField struct {
	name     string
	index    []int
	typ      reflect.Type
	required bool
}

// StructProvider serves *T for a struct type T from its exported fields.
//
// Fields are named by the `skein` tag or, without one, by the field name.
// Embedded structs without a tag contribute their fields directly.
//
//	type Account struct {
//	    ID    uuid.UUID `skein:"id,required"`
//	    Owner *User     `skein:"owner"`
//	    Notes string    `skein:"-"`
//	}
type StructProvider[T any] struct {
	typ      reflect.Type
	fields   []structField
	required []string
}

// NewStructProvider scans T and returns a provider for *T.
func NewStructProvider[T any]() (*StructProvider[T], error) {
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Struct {
		return nil, newTypeMismatchError("struct", rt.String())
	}
	spec := sentinel.Scan[T]()
	p := &StructProvider[T]{typ: reflect.PointerTo(rt)}
	seen := make(map[string]bool)
	for _, field := range spec.Fields {
		// Promoted fields are reached through their embedded struct.
		if len(field.Index) != 1 {
			continue
		}
		sf := rt.Field(field.Index[0])
		if err := p.addField(sf, field.Tags["skein"], nil, seen); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *StructProvider[T]) addField(sf reflect.StructField, tag string, parent []int, seen map[string]bool) error {
	if !sf.IsExported() || tag == "-" {
		return nil
	}
	index := append(append([]int{}, parent...), sf.Index...)

	// Handle embedded structs
	if sf.Anonymous && tag == "" && sf.Type.Kind() == reflect.Struct {
		for i := range sf.Type.NumField() {
			nested := sf.Type.Field(i)
			if err := p.addField(nested, nested.Tag.Get("skein"), index, seen); err != nil {
				return err
			}
		}
		return nil
	}

	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = sf.Name
	}
	if seen[name] {
		return fmt.Errorf("%w: %q on %s", ErrDuplicateProperty, name, p.typ)
	}
	seen[name] = true
	f := structField{name: name, index: index, typ: sf.Type, required: opts == "required"}
	p.fields = append(p.fields, f)
	if f.required {
		p.required = append(p.required, name)
	}
	return nil
}

// Fields returns the property names in emission order.
func (p *StructProvider[T]) Fields() []string {
	names := make([]string, len(p.fields))
	for i, f := range p.fields {
		names[i] = f.name
	}
	return names
}

func (p *StructProvider[T]) GetProperties(value *T, ctx *SerializationContext) PropertySeq {
	return func(yield func(Property, error) bool) {
		rv := reflect.ValueOf(value).Elem()
		for _, f := range p.fields {
			if !yieldValue(ctx, yield, f.name, rv.FieldByIndex(f.index)) {
				return
			}
		}
	}
}

func (p *StructProvider[T]) CreateObject(props []Property, ctx *SerializationContext) (*T, error) {
	byName, err := IndexProperties(p.typ, props, p.required...)
	if err != nil {
		return nil, err
	}
	obj := new(T)
	ctx.Track(obj)
	rv := reflect.ValueOf(obj).Elem()
	for _, f := range p.fields {
		tok, ok := byName[f.name]
		if !ok {
			continue
		}
		v, err := ctx.ExtractValue(tok, f.typ)
		if err != nil {
			return nil, err
		}
		rv.FieldByIndex(f.index).Set(v)
	}
	return obj, nil
}

// RegisterStruct registers a StructProvider for *T. A non-empty id also
// binds T to that identifier.
func RegisterStruct[T any](r *Registry, id string) error {
	p, err := NewStructProvider[T]()
	if err != nil {
		return err
	}
	if id != "" {
		if err := RegisterTypeFor[T](r, id); err != nil {
			return err
		}
	}
	return RegisterProvider[*T](r, p)
}
