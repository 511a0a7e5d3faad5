package skein

import (
	"fmt"
	"iter"
	"reflect"
)

// Kind identifies the payload carried by a Token. The numeric value is the
// tag byte written to the stream.
type Kind uint8

const (
	KindNothing Kind = iota
	KindByte
	KindInt8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindDecimal
	KindBool
	KindChar
	KindUUID
	KindInstant
	KindDuration
	KindTime
	KindIndex
	KindReference
	kindCount
)

var kindNames = [kindCount]string{
	KindNothing:   "nothing",
	KindByte:      "byte",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindUint16:    "uint16",
	KindInt32:     "int32",
	KindUint32:    "uint32",
	KindInt64:     "int64",
	KindUint64:    "uint64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindDecimal:   "decimal",
	KindBool:      "bool",
	KindChar:      "char",
	KindUUID:      "uuid",
	KindInstant:   "instant",
	KindDuration:  "duration",
	KindTime:      "time",
	KindIndex:     "index",
	KindReference: "reference",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsScalar reports whether k carries a fixed-width scalar payload.
func (k Kind) IsScalar() bool {
	return k > KindNothing && k < KindReference
}

// RefKind selects the payload of a KindReference token. The numeric value is
// the sub-kind byte written to the stream.
type RefKind uint8

const (
	RefNone RefKind = iota
	RefString
	RefComplexType
	RefComplexTypeReference
	RefByteArray
)

func (k RefKind) String() string {
	switch k {
	case RefNone:
		return "none"
	case RefString:
		return "string"
	case RefComplexType:
		return "complex"
	case RefComplexTypeReference:
		return "complex-ref"
	case RefByteArray:
		return "bytes"
	}
	return fmt.Sprintf("refkind(%d)", uint8(k))
}

// Token is the unit of the serialized form: a scalar, Nothing, or a
// reference. The kind fully determines which payload is meaningful.
// The zero Token is Nothing.
type Token struct {
	kind   Kind
	scalar any
	ref    any
}

// Nothing returns the null token.
func Nothing() Token { return Token{} }

// StringToken returns a reference token carrying s.
func StringToken(s string) Token {
	return Token{kind: KindReference, ref: s}
}

// BytesToken returns a reference token carrying b. A nil slice is carried as
// an empty one; use Nothing for null.
func BytesToken(b []byte) Token {
	if b == nil {
		b = []byte{}
	}
	return Token{kind: KindReference, ref: b}
}

// ReferenceToken returns a back-reference to the object registered at index.
func ReferenceToken(index int) Token {
	return Token{kind: KindReference, ref: ComplexTypeReference{Index: index}}
}

// ComplexToken returns a token carrying an inline complex type.
func ComplexToken(ct *ComplexType) Token {
	return Token{kind: KindReference, ref: ct}
}

// Kind returns the token's kind.
func (t Token) Kind() Kind { return t.kind }

// IsNothing reports whether t is the null token.
func (t Token) IsNothing() bool { return t.kind == KindNothing }

// RefKind returns the reference sub-kind, or RefNone for non-reference tokens.
func (t Token) RefKind() RefKind {
	if t.kind != KindReference {
		return RefNone
	}
	switch t.ref.(type) {
	case string:
		return RefString
	case []byte:
		return RefByteArray
	case ComplexTypeReference:
		return RefComplexTypeReference
	case *ComplexType:
		return RefComplexType
	}
	return RefNone
}

// Scalar returns the scalar payload in its canonical Go type, or nil when t
// is not a scalar token.
func (t Token) Scalar() any {
	if !t.kind.IsScalar() {
		return nil
	}
	return t.scalar
}

// AsString returns the string payload.
func (t Token) AsString() (string, error) {
	if s, ok := t.ref.(string); ok && t.kind == KindReference {
		return s, nil
	}
	return "", newTypeMismatchError(RefString.String(), t.describe())
}

// AsBytes returns the byte slice payload.
func (t Token) AsBytes() ([]byte, error) {
	if b, ok := t.ref.([]byte); ok && t.kind == KindReference {
		return b, nil
	}
	return nil, newTypeMismatchError(RefByteArray.String(), t.describe())
}

// AsComplexType returns the inline complex type payload.
func (t Token) AsComplexType() (*ComplexType, error) {
	if ct, ok := t.ref.(*ComplexType); ok && t.kind == KindReference && ct != nil {
		return ct, nil
	}
	return nil, newTypeMismatchError(RefComplexType.String(), t.describe())
}

// AsReference returns the back-reference payload.
func (t Token) AsReference() (ComplexTypeReference, error) {
	if r, ok := t.ref.(ComplexTypeReference); ok && t.kind == KindReference {
		return r, nil
	}
	return ComplexTypeReference{}, newTypeMismatchError(RefComplexTypeReference.String(), t.describe())
}

// describe names the token's kind for error messages.
func (t Token) describe() string {
	if t.kind == KindReference {
		return t.RefKind().String()
	}
	return t.kind.String()
}

func (t Token) String() string {
	switch t.RefKind() {
	case RefString:
		return fmt.Sprintf("string(%q)", t.ref)
	case RefByteArray:
		return fmt.Sprintf("bytes(%d)", len(t.ref.([]byte)))
	case RefComplexTypeReference:
		return fmt.Sprintf("ref(%d)", t.ref.(ComplexTypeReference).Index)
	case RefComplexType:
		ct := t.ref.(*ComplexType)
		return fmt.Sprintf("complex(%d %v)", ct.Index, ct.Type)
	}
	if t.kind.IsScalar() {
		return fmt.Sprintf("%s(%v)", t.kind, t.scalar)
	}
	return t.kind.String()
}

// Property is one named token of a complex type.
type Property struct {
	Name  string
	Value Token
}

// PropertySeq is a lazily produced, single-use sequence of properties. A
// producer that fails yields a zero Property with a non-nil error and stops.
type PropertySeq = iter.Seq2[Property, error]

// Properties returns a sequence over a fixed list of properties.
func Properties(props ...Property) PropertySeq {
	return func(yield func(Property, error) bool) {
		for _, p := range props {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// CollectProperties drains seq into a slice, stopping at the first error.
func CollectProperties(seq PropertySeq) ([]Property, error) {
	var props []Property
	if seq == nil {
		return props, nil
	}
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

// ComplexTypeReference points at an object already assigned an index in the
// current SerializationContext.
type ComplexTypeReference struct {
	Index int
}

// ComplexType is the inline form of a non-scalar value: its run-time type,
// its reference index and its properties.
type ComplexType struct {
	Type       reflect.Type
	Index      int
	Properties PropertySeq

	// collected is set once the properties have been fully materialised.
	collected []Property
	done      bool
}

// NewComplexType returns a complex type whose properties are already known.
func NewComplexType(t reflect.Type, index int, props ...Property) *ComplexType {
	return &ComplexType{
		Type:       t,
		Index:      index,
		Properties: Properties(props...),
		collected:  props,
		done:       true,
	}
}
