package skein

import (
	"container/list"
	"errors"
	"net/url"
	"reflect"
	"slices"
	"testing"
)

func TestGraph_SharedReferences(t *testing.T) {
	reg := newTestRegistry(t)
	shared := &node{Name: "shared"}
	root := &node{Name: "root", Children: []*node{shared, shared}, Next: shared}

	got := roundTrip(t, reg, root)
	if got.Name != "root" || len(got.Children) != 2 {
		t.Fatalf("root = %+v", got)
	}
	if got.Children[0] != got.Children[1] || got.Next != got.Children[0] {
		t.Error("shared node should be one object after round trip")
	}
	if got.Children[0] == shared {
		t.Error("round trip should not return the original object")
	}
}

func TestGraph_Cycles(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("self", func(t *testing.T) {
		n := &node{Name: "self"}
		n.Next = n
		got := roundTrip(t, reg, n)
		if got.Next != got {
			t.Error("self reference lost")
		}
	})

	t.Run("ring", func(t *testing.T) {
		a := &node{Name: "a"}
		b := &node{Name: "b", Next: a}
		c := &node{Name: "c", Next: b}
		a.Next = c
		got := roundTrip(t, reg, a)
		if got.Next.Name != "c" || got.Next.Next.Name != "b" || got.Next.Next.Next != got {
			t.Error("ring not preserved")
		}
	})

	t.Run("child points at parent", func(t *testing.T) {
		root := &node{Name: "root"}
		root.Children = []*node{{Name: "kid", Next: root}}
		got := roundTrip(t, reg, root)
		if got.Children[0].Next != got {
			t.Error("back edge to parent lost")
		}
	})
}

func TestGraph_ObjectIndices(t *testing.T) {
	reg := newTestRegistry(t)
	shared := &node{Name: "shared"}
	root := &node{Name: "root", Children: []*node{shared, shared}}

	ctx := NewSerializationContext(reg)
	if _, err := Marshal(root, ctx); err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	// root, the children slice and shared; the second shared is a reference.
	if got := ctx.ObjectCount(); got != 3 {
		t.Errorf("ObjectCount() = %d, want 3", got)
	}
}

func TestGraph_SliceAndMapIdentity(t *testing.T) {
	reg := NewRegistry()

	backing := []int32{1, 2}
	slicesOut := roundTrip(t, reg, [][]int32{backing, backing})
	if &slicesOut[0][0] != &slicesOut[1][0] {
		t.Error("aliased slices should share a backing array")
	}

	m := map[string]int32{"a": 1}
	mapsOut := roundTrip(t, reg, []map[string]int32{m, m})
	mapsOut[0]["z"] = 26
	if mapsOut[1]["z"] != 26 {
		t.Error("aliased maps should be one map")
	}
}

func TestDeepClone(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("struct", func(t *testing.T) {
		in := &testObject{TestProperty: "Test string"}
		out, err := DeepClone(in, NewSerializationContext(reg))
		if err != nil {
			t.Fatalf("DeepClone() error: %v", err)
		}
		if out == in {
			t.Error("clone should be a new object")
		}
		if out.TestProperty != "Test string" {
			t.Errorf("TestProperty = %q", out.TestProperty)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		a := &node{Name: "a"}
		a.Next = &node{Name: "b", Next: a}
		out, err := DeepClone(a, NewSerializationContext(reg))
		if err != nil {
			t.Fatalf("DeepClone() error: %v", err)
		}
		if out == a || out.Next == a.Next {
			t.Error("clone shares objects with the original")
		}
		if out.Next.Next != out {
			t.Error("clone lost the cycle")
		}
	})

	t.Run("interface value", func(t *testing.T) {
		in := holder{Item: &derived{TestIntValue: 3}}
		out, err := DeepClone(&in, NewSerializationContext(reg))
		if err != nil {
			t.Fatalf("DeepClone() error: %v", err)
		}
		if out.Item == in.Item || out.Item.(*derived).TestIntValue != 3 {
			t.Errorf("Item = %#v", out.Item)
		}
	})
}

func TestPolymorphism(t *testing.T) {
	reg := newTestRegistry(t)
	in := &holder{Item: &derived{
		testObject:   testObject{TestProperty: "Test string"},
		TestIntValue: 42,
		TestPair:     NewPair("answer", int32(42)),
	}}

	got := roundTrip(t, reg, in)
	d, ok := got.Item.(*derived)
	if !ok {
		t.Fatalf("Item = %T, want *derived", got.Item)
	}
	if d.TestProperty != "Test string" || d.TestIntValue != 42 || d.TestPair != in.Item.(*derived).TestPair {
		t.Errorf("derived = %+v", d)
	}
	if d.Describe() != "derived" {
		t.Error("Item lost its dynamic type")
	}

	empty := roundTrip(t, reg, &holder{})
	if empty.Item != nil {
		t.Errorf("nil interface = %#v, want nil", empty.Item)
	}
}

func TestArrayProvider(t *testing.T) {
	ctx := NewSerializationContext(nil)
	tok, err := Serialize([]int32{10, 20, 30}, ctx)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	ct, err := tok.AsComplexType()
	if err != nil {
		t.Fatalf("AsComplexType() error: %v", err)
	}
	props, err := CollectProperties(ct.Properties)
	if err != nil {
		t.Fatalf("CollectProperties() error: %v", err)
	}
	want := []Property{
		{Name: PropertyCount, Value: NewToken(Index(3))},
		{Name: PropertyItem, Value: NewToken(int32(10))},
		{Name: PropertyItem, Value: NewToken(int32(20))},
		{Name: PropertyItem, Value: NewToken(int32(30))},
	}
	if !reflect.DeepEqual(props, want) {
		t.Errorf("properties = %v, want %v", props, want)
	}

	got := roundTrip(t, NewRegistry(), []int32{10, 20, 30})
	if !slices.Equal(got, []int32{10, 20, 30}) {
		t.Errorf("round trip = %v", got)
	}
	fixed := roundTrip(t, NewRegistry(), [3]string{"x", "", "z"})
	if fixed != [3]string{"x", "", "z"} {
		t.Errorf("fixed array round trip = %v", fixed)
	}
	if empty := roundTrip(t, NewRegistry(), []string{}); empty == nil || len(empty) != 0 {
		t.Errorf("empty slice round trip = %#v, want empty non-nil", empty)
	}
}

func TestArrayProvider_Contract(t *testing.T) {
	typ := reflect.TypeFor[[]int32]()
	tests := []struct {
		name  string
		props []Property
		want  error
	}{
		{"missing count", []Property{{Name: PropertyItem, Value: NewToken(int32(1))}}, ErrMissingRequiredProperty},
		{"duplicate count", []Property{
			{Name: PropertyCount, Value: NewToken(Index(0))},
			{Name: PropertyCount, Value: NewToken(Index(0))},
		}, ErrDuplicateProperty},
		{"count mismatch", []Property{
			{Name: PropertyCount, Value: NewToken(Index(2))},
			{Name: PropertyItem, Value: NewToken(int32(1))},
		}, ErrPropertyCountMismatch},
		{"more items than count", []Property{
			{Name: PropertyCount, Value: NewToken(Index(1))},
			{Name: PropertyItem, Value: NewToken(int32(1))},
			{Name: PropertyItem, Value: NewToken(int32(2))},
		}, ErrPropertyCountMismatch},
		{"count kind", []Property{{Name: PropertyCount, Value: NewToken(int32(0))}}, ErrTypeMismatch},
		{"item kind", []Property{
			{Name: PropertyCount, Value: NewToken(Index(1))},
			{Name: PropertyItem, Value: StringToken("one")},
		}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewSerializationContext(nil)
			_, err := Extract[[]int32](ComplexToken(NewComplexType(typ, 0, tt.props...)), ctx)
			if !errors.Is(err, tt.want) {
				t.Errorf("Extract() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDictionaryProvider(t *testing.T) {
	ctx := NewSerializationContext(nil)
	tok, err := Serialize(map[string]int32{"b": 2, "a": 1}, ctx)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	ct, _ := tok.AsComplexType()
	props, err := CollectProperties(ct.Properties)
	if err != nil {
		t.Fatalf("CollectProperties() error: %v", err)
	}
	want := []Property{
		{Name: PropertyKey, Value: StringToken("a")},
		{Name: PropertyValue, Value: NewToken(int32(1))},
		{Name: PropertyKey, Value: StringToken("b")},
		{Name: PropertyValue, Value: NewToken(int32(2))},
	}
	if !reflect.DeepEqual(props, want) {
		t.Errorf("properties = %v, want sorted %v", props, want)
	}

	got := roundTrip(t, NewRegistry(), map[int64][]string{3: {"c"}, 1: nil})
	if len(got) != 2 || got[3][0] != "c" || got[1] != nil {
		t.Errorf("round trip = %#v", got)
	}

	typ := reflect.TypeFor[map[string]int32]()
	orphan := NewComplexType(typ, 0, Property{Name: PropertyKey, Value: StringToken("k")})
	if _, err := Extract[map[string]int32](ComplexToken(orphan), NewSerializationContext(nil)); !errors.Is(err, ErrPropertyCountMismatch) {
		t.Errorf("key without value error = %v, want ErrPropertyCountMismatch", err)
	}
	stray := NewComplexType(typ, 0, Property{Name: PropertyValue, Value: NewToken(int32(1))})
	if _, err := Extract[map[string]int32](ComplexToken(stray), NewSerializationContext(nil)); !errors.Is(err, ErrPropertyCountMismatch) {
		t.Errorf("value without key error = %v, want ErrPropertyCountMismatch", err)
	}
}

func TestPairProvider(t *testing.T) {
	in := NewPair("k", int32(9))
	reg := NewRegistry()
	if got := roundTrip(t, reg, in); got != in {
		t.Errorf("round trip = %+v, want %+v", got, in)
	}

	data, err := Marshal(in, NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	fresh := NewRegistry()
	if _, err := Unmarshal[Pair[string, int32]](data, NewSerializationContext(fresh)); !errors.Is(err, ErrNoTypeMapping) {
		t.Errorf("Unmarshal() without RegisterPair error = %v, want ErrNoTypeMapping", err)
	}
	RegisterPair[string, int32](fresh)
	if got, err := Unmarshal[Pair[string, int32]](data, NewSerializationContext(fresh)); err != nil || got != in {
		t.Errorf("Unmarshal() after RegisterPair = %+v, %v", got, err)
	}

	typ := reflect.TypeFor[Pair[string, int32]]()
	half := NewComplexType(typ, 0, Property{Name: PropertyKey, Value: StringToken("k")})
	if _, err := Extract[Pair[string, int32]](ComplexToken(half), NewSerializationContext(nil)); !errors.Is(err, ErrMissingRequiredProperty) {
		t.Errorf("missing value error = %v, want ErrMissingRequiredProperty", err)
	}
}

func TestSetProvider(t *testing.T) {
	in := NewSet[int64](3, 1, 2)
	ctx := NewSerializationContext(nil)
	tok, err := Serialize(in, ctx)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	ct, _ := tok.AsComplexType()
	props, _ := CollectProperties(ct.Properties)
	var items []int64
	for _, p := range props {
		v, _ := ScalarValue[int64](p.Value)
		items = append(items, v)
	}
	if !slices.Equal(items, []int64{1, 2, 3}) {
		t.Errorf("items = %v, want sorted", items)
	}

	reg := NewRegistry()
	RegisterSet[int64](reg)
	got := roundTrip(t, reg, in)
	if got.Len() != 3 || !got.Has(1) || !got.Has(2) || !got.Has(3) {
		t.Errorf("round trip = %v", got)
	}
}

func TestListProvider(t *testing.T) {
	in := list.New()
	in.PushBack(int32(1))
	in.PushBack("two")
	in.PushBack(nil)

	got := roundTrip(t, NewRegistry(), in)
	var values []any
	for e := got.Front(); e != nil; e = e.Next() {
		values = append(values, e.Value)
	}
	if !reflect.DeepEqual(values, []any{int32(1), "two", nil}) {
		t.Errorf("list = %#v", values)
	}
}

func TestURLProvider(t *testing.T) {
	in, _ := url.Parse("https://example.com/a/b?c=d#e")
	got := roundTrip(t, NewRegistry(), in)
	if got.String() != in.String() {
		t.Errorf("url = %s, want %s", got, in)
	}

	typ := reflect.TypeFor[*url.URL]()
	if _, err := Extract[*url.URL](ComplexToken(NewComplexType(typ, 0)), NewSerializationContext(nil)); !errors.Is(err, ErrMissingRequiredProperty) {
		t.Errorf("empty url error = %v, want ErrMissingRequiredProperty", err)
	}
}

type record struct {
	ID     string `skein:"id,required"`
	Depth  int32
	Secret string `skein:"-"`
	hidden string
}

func TestStructProvider(t *testing.T) {
	p, err := NewStructProvider[record]()
	if err != nil {
		t.Fatalf("NewStructProvider() error: %v", err)
	}
	if got := p.Fields(); !slices.Equal(got, []string{"id", "Depth"}) {
		t.Errorf("Fields() = %v", got)
	}

	reg := NewRegistry()
	RegisterProvider[*record](reg, p)
	in := &record{ID: "x", Depth: 2, Secret: "s", hidden: "h"}
	got := roundTrip(t, reg, in)
	if got.Depth != 2 || got.ID != "x" || got.Secret != "" || got.hidden != "" {
		t.Errorf("round trip = %+v", got)
	}

	typ := reflect.TypeFor[*record]()
	tests := []struct {
		name  string
		props []Property
		want  error
	}{
		{"missing required", []Property{{Name: "Depth", Value: NewToken(int32(1))}}, ErrMissingRequiredProperty},
		{"duplicate", []Property{
			{Name: "id", Value: StringToken("a")},
			{Name: "id", Value: StringToken("b")},
		}, ErrDuplicateProperty},
		{"wrong kind", []Property{{Name: "id", Value: NewToken(true)}}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract[*record](ComplexToken(NewComplexType(typ, 0, tt.props...)), NewSerializationContext(reg))
			if !errors.Is(err, tt.want) {
				t.Errorf("Extract() error = %v, want %v", err, tt.want)
			}
		})
	}

	// Unknown properties are ignored.
	extra := NewComplexType(typ, 0, Property{Name: "id", Value: StringToken("y")}, Property{Name: "later", Value: NewToken(true)})
	if got, err := Extract[*record](ComplexToken(extra), NewSerializationContext(reg)); err != nil || got.ID != "y" {
		t.Errorf("Extract() with unknown property = %+v, %v", got, err)
	}
}

func TestSerialize_Values(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("nil", func(t *testing.T) {
		for _, v := range []any{nil, (*node)(nil), []int32(nil), map[string]int32(nil)} {
			tok, err := Serialize(v, NewSerializationContext(reg))
			if err != nil || !tok.IsNothing() {
				t.Errorf("Serialize(%#v) = %v, %v, want Nothing", v, tok, err)
			}
		}
	})

	t.Run("string and bytes", func(t *testing.T) {
		if got := roundTrip(t, reg, "héllo"); got != "héllo" {
			t.Errorf("string = %q", got)
		}
		if got := roundTrip(t, reg, []byte{0, 1, 2}); !slices.Equal(got, []byte{0, 1, 2}) {
			t.Errorf("bytes = %v", got)
		}
		if got := roundTrip(t, reg, []byte{}); got == nil {
			t.Error("empty bytes should stay non-nil")
		}
	})

	t.Run("named scalar", func(t *testing.T) {
		type celsius float64
		tok, err := Serialize(celsius(21.5), NewSerializationContext(reg))
		if err != nil || tok.Kind() != KindFloat64 {
			t.Fatalf("Serialize() = %v, %v", tok, err)
		}
		got, err := Extract[celsius](tok, NewSerializationContext(reg))
		if err != nil || got != 21.5 {
			t.Errorf("Extract() = %v, %v", got, err)
		}
	})

	t.Run("any target", func(t *testing.T) {
		got, err := Extract[any](NewToken(uint16(7)), NewSerializationContext(reg))
		if err != nil || got != uint16(7) {
			t.Errorf("Extract[any]() = %#v, %v", got, err)
		}
	})

	t.Run("no provider", func(t *testing.T) {
		type orphan struct{ A int }
		if _, err := Serialize(&orphan{}, NewSerializationContext(reg)); !errors.Is(err, ErrNoProviderFound) {
			t.Errorf("Serialize() error = %v, want ErrNoProviderFound", err)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		if _, err := Extract[string](NewToken(int32(1)), NewSerializationContext(reg)); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("Extract[string](int32) error = %v, want ErrTypeMismatch", err)
		}
		data, _ := Marshal(&testObject{}, NewSerializationContext(reg))
		if _, err := Unmarshal[*node](data, NewSerializationContext(reg)); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("Unmarshal[*node](testObject) error = %v, want ErrTypeMismatch", err)
		}
	})

	t.Run("dangling reference", func(t *testing.T) {
		if _, err := Extract[*node](ReferenceToken(3), NewSerializationContext(reg)); !errors.Is(err, ErrUnresolvedReference) {
			t.Errorf("Extract(ref) error = %v, want ErrUnresolvedReference", err)
		}
	})
}

func TestSerialize_ProviderErrorSurfacesLazily(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	reg.Register(NewProvider(
		func(*testObject, *SerializationContext) PropertySeq { return failed(boom) },
		func([]Property, *SerializationContext) (*testObject, error) { return nil, boom },
	))

	ctx := NewSerializationContext(reg)
	tok, err := Serialize(&testObject{}, ctx)
	if err != nil {
		t.Fatalf("Serialize() error = %v, want lazy failure", err)
	}
	if _, err := Extract[*testObject](tok, ctx); !errors.Is(err, boom) {
		t.Errorf("Extract() error = %v, want boom", err)
	}
	if _, err := Marshal(&testObject{}, NewSerializationContext(reg)); !errors.Is(err, boom) {
		t.Errorf("Marshal() error = %v, want boom", err)
	}
}

func TestContext_ActiveType(t *testing.T) {
	var seen []reflect.Type
	reg := NewRegistry()
	reg.Register(NewProvider(
		func(v *testObject, ctx *SerializationContext) PropertySeq {
			return func(yield func(Property, error) bool) {
				seen = append(seen, ctx.ActiveType())
				YieldProperty(ctx, yield, "TestProperty", v.TestProperty)
			}
		},
		func(props []Property, ctx *SerializationContext) (*testObject, error) {
			seen = append(seen, ctx.ActiveType())
			return &testObject{}, nil
		},
	))

	ctx := NewSerializationContext(reg)
	if ctx.ActiveType() != nil {
		t.Error("ActiveType() outside any complex type should be nil")
	}
	if _, err := DeepClone(&testObject{}, ctx); err != nil {
		t.Fatalf("DeepClone() error: %v", err)
	}
	want := reflect.TypeFor[*testObject]()
	if len(seen) != 2 || seen[0] != want || seen[1] != want {
		t.Errorf("active types = %v", seen)
	}
}
