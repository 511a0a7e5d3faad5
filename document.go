package skein

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Codec marshals documents to and from a text or binary interchange format.
// The json, xml, yaml, msgpack, bson and cbor submodules provide
// implementations.
type Codec interface {
	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
}

// Document node kinds that are not scalar kind names.
const (
	NodeNothing = "nothing"
	NodeString  = "string"
	NodeBytes   = "bytes"
	NodeRef     = "ref"
	NodeComplex = "complex"
)

// timeLayout keeps offsets to the second, which RFC 3339 cannot.
const timeLayout = "2006-01-02T15:04:05.999999999Z07:00:00"

// Node is the document form of a Token. Scalars keep their kind and carry
// canonical text in Value. References and complex types carry their index in
// Value. Byte arrays are base64.
//
// Strings travel as text, so a string holding invalid UTF-8 survives the
// binary stream but not every document format.
type Node struct {
	Kind  string     `json:"kind" yaml:"kind" msgpack:"kind" bson:"kind" cbor:"kind" xml:"kind,attr"`
	Value string     `json:"value,omitempty" yaml:"value,omitempty" msgpack:"value,omitempty" bson:"value,omitempty" cbor:"value,omitempty" xml:"value,attr,omitempty"`
	Type  *TypeNode  `json:"type,omitempty" yaml:"type,omitempty" msgpack:"type,omitempty" bson:"type,omitempty" cbor:"type,omitempty" xml:"type,omitempty"`
	Props []PropNode `json:"props,omitempty" yaml:"props,omitempty" msgpack:"props,omitempty" bson:"props,omitempty" cbor:"props,omitempty" xml:"prop"`
}

// TypeNode is the document form of a TypeMapping.
type TypeNode struct {
	Kind   string     `json:"kind" yaml:"kind" msgpack:"kind" bson:"kind" cbor:"kind" xml:"kind,attr"`
	Type   string     `json:"type" yaml:"type" msgpack:"type" bson:"type" cbor:"type" xml:"type,attr"`
	Params []TypeNode `json:"params,omitempty" yaml:"params,omitempty" msgpack:"params,omitempty" bson:"params,omitempty" cbor:"params,omitempty" xml:"param"`
}

// PropNode is one named property of a complex node.
type PropNode struct {
	Name string `json:"name" yaml:"name" msgpack:"name" bson:"name" cbor:"name" xml:"name,attr"`
	Node Node   `json:"node" yaml:"node" msgpack:"node" bson:"node" cbor:"node" xml:"node"`
}

func typeNodeOf(m TypeMapping) *TypeNode {
	n := &TypeNode{Kind: m.Kind, Type: m.Type}
	for _, p := range m.Params {
		n.Params = append(n.Params, *typeNodeOf(p))
	}
	return n
}

// Mapping returns the TypeMapping n describes.
func (n *TypeNode) Mapping() TypeMapping {
	m := TypeMapping{Kind: n.Kind, Type: n.Type}
	for i := range n.Params {
		m.Params = append(m.Params, n.Params[i].Mapping())
	}
	return m
}

var scalarKindsByName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := KindNothing + 1; k < KindReference; k++ {
		m[k.String()] = k
	}
	return m
}()

// ExportDocument renders tok as a document tree. Lazily produced properties
// are consumed in the order a Writer would consume them.
func ExportDocument(tok Token, ctx *SerializationContext) (*Node, error) {
	n, err := exportToken(tok, ctx, 0)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func exportToken(tok Token, ctx *SerializationContext, depth int) (Node, error) {
	if tok.kind.IsScalar() {
		return Node{Kind: tok.kind.String(), Value: formatScalar(tok.scalar)}, nil
	}
	switch tok.RefKind() {
	case RefString:
		return Node{Kind: NodeString, Value: tok.ref.(string)}, nil
	case RefByteArray:
		return Node{Kind: NodeBytes, Value: base64.StdEncoding.EncodeToString(tok.ref.([]byte))}, nil
	case RefComplexTypeReference:
		return Node{Kind: NodeRef, Value: strconv.Itoa(tok.ref.(ComplexTypeReference).Index)}, nil
	case RefComplexType:
		return exportComplex(tok.ref.(*ComplexType), ctx, depth)
	}
	if tok.kind == KindNothing {
		return Node{Kind: NodeNothing}, nil
	}
	return Node{}, newFormatError(ErrUnknownTokenKind, -1, tok.describe())
}

func exportComplex(ct *ComplexType, ctx *SerializationContext, depth int) (Node, error) {
	if depth >= ctx.maxDepth {
		return Node{}, newFormatError(ErrDepthExceeded, -1, fmt.Sprintf("nesting deeper than %d", ctx.maxDepth))
	}
	if ct.Type == nil {
		return Node{}, newTypeError(ErrNoTypeMapping, fmt.Sprintf("complex type %d", ct.Index))
	}
	m, err := ctx.TypeName(ct.Type)
	if err != nil {
		return Node{}, err
	}
	n := Node{Kind: NodeComplex, Value: strconv.Itoa(ct.Index), Type: typeNodeOf(m)}

	props := ct.Properties
	if ct.done {
		props = Properties(ct.collected...)
	}
	if props == nil {
		return n, nil
	}
	for p, err := range props {
		if err != nil {
			return Node{}, err
		}
		child, err := exportToken(p.Value, ctx, depth+1)
		if err != nil {
			return Node{}, err
		}
		n.Props = append(n.Props, PropNode{Name: p.Name, Node: child})
	}
	return n, nil
}

// ImportDocument rebuilds the token tree n describes. Complex nodes are
// recorded in ctx so references resolve on extraction regardless of order.
func ImportDocument(n *Node, ctx *SerializationContext) (Token, error) {
	if n == nil {
		return Nothing(), nil
	}
	return importNode(n, ctx, 0)
}

func importNode(n *Node, ctx *SerializationContext, depth int) (Token, error) {
	switch n.Kind {
	case NodeNothing:
		return Nothing(), nil
	case NodeString:
		if len(n.Value) > ctx.maxPayload {
			return Token{}, newFormatError(ErrOversizedPayload, -1, fmt.Sprintf("string of %d bytes exceeds %d", len(n.Value), ctx.maxPayload))
		}
		return StringToken(n.Value), nil
	case NodeBytes:
		b, err := base64.StdEncoding.DecodeString(n.Value)
		if err != nil {
			return Token{}, newFormatError(ErrInvalidFormat, -1, fmt.Sprintf("bytes: %v", err))
		}
		if len(b) > ctx.maxPayload {
			return Token{}, newFormatError(ErrOversizedPayload, -1, fmt.Sprintf("bytes of %d exceed %d", len(b), ctx.maxPayload))
		}
		return BytesToken(b), nil
	case NodeRef:
		index, err := parseIndex(n.Value)
		if err != nil {
			return Token{}, err
		}
		return ReferenceToken(index), nil
	case NodeComplex:
		return importComplex(n, ctx, depth)
	}
	if k, ok := scalarKindsByName[n.Kind]; ok {
		v, err := parseScalar(k, n.Value)
		if err != nil {
			return Token{}, newFormatError(ErrInvalidFormat, -1, fmt.Sprintf("%s %q: %v", k, n.Value, err))
		}
		return Token{kind: k, scalar: v}, nil
	}
	return Token{}, newFormatError(ErrUnknownTokenKind, -1, fmt.Sprintf("document kind %q", n.Kind))
}

func importComplex(n *Node, ctx *SerializationContext, depth int) (Token, error) {
	if depth >= ctx.maxDepth {
		return Token{}, newFormatError(ErrDepthExceeded, -1, fmt.Sprintf("nesting deeper than %d", ctx.maxDepth))
	}
	index, err := parseIndex(n.Value)
	if err != nil {
		return Token{}, err
	}
	if n.Type == nil {
		return Token{}, newFormatError(ErrInvalidFormat, -1, fmt.Sprintf("complex %d has no type", index))
	}
	t, err := ctx.ResolveType(n.Type.Mapping())
	if err != nil {
		return Token{}, err
	}
	ct := &ComplexType{Type: t, Index: index, done: true}
	if err := ctx.define(ct); err != nil {
		return Token{}, err
	}
	props := make([]Property, 0, len(n.Props))
	for i := range n.Props {
		v, err := importNode(&n.Props[i].Node, ctx, depth+1)
		if err != nil {
			return Token{}, err
		}
		props = append(props, Property{Name: n.Props[i].Name, Value: v})
	}
	ct.collected = props
	ct.Properties = Properties(props...)
	return ComplexToken(ct), nil
}

func parseIndex(s string) (int, error) {
	index, err := strconv.Atoi(s)
	if err != nil || index < 0 || index > math.MaxInt32 {
		return 0, newFormatError(ErrInvalidFormat, -1, fmt.Sprintf("index %q", s))
	}
	return index, nil
}

// formatScalar returns the canonical text of a scalar payload.
func formatScalar(v any) string {
	switch v := v.(type) {
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case Decimal:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case Char:
		return strconv.FormatInt(int64(v), 10)
	case uuid.UUID:
		return v.String()
	case Instant:
		return v.Time.Format(time.RFC3339Nano)
	case time.Duration:
		return strconv.FormatInt(int64(v), 10)
	case time.Time:
		return v.Format(timeLayout)
	case Index:
		return strconv.FormatUint(uint64(v), 10)
	}
	return fmt.Sprint(v)
}

// parseScalar reverses formatScalar for kind k.
func parseScalar(k Kind, s string) (any, error) {
	switch k {
	case KindByte:
		v, err := strconv.ParseUint(s, 10, 8)
		return uint8(v), err
	case KindInt8:
		v, err := strconv.ParseInt(s, 10, 8)
		return int8(v), err
	case KindInt16:
		v, err := strconv.ParseInt(s, 10, 16)
		return int16(v), err
	case KindUint16:
		v, err := strconv.ParseUint(s, 10, 16)
		return uint16(v), err
	case KindInt32:
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	case KindUint32:
		v, err := strconv.ParseUint(s, 10, 32)
		return uint32(v), err
	case KindInt64:
		return strconv.ParseInt(s, 10, 64)
	case KindUint64:
		return strconv.ParseUint(s, 10, 64)
	case KindFloat32:
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	case KindFloat64:
		return strconv.ParseFloat(s, 64)
	case KindDecimal:
		return ParseDecimal(s)
	case KindBool:
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("bool must be true or false")
	case KindChar:
		v, err := strconv.ParseInt(s, 10, 32)
		return Char(v), err
	case KindUUID:
		return uuid.Parse(s)
	case KindInstant:
		t, err := time.Parse(time.RFC3339Nano, s)
		return InstantOf(t), err
	case KindDuration:
		v, err := strconv.ParseInt(s, 10, 64)
		return time.Duration(v), err
	case KindTime:
		t, err := time.Parse(timeLayout, s)
		if err != nil {
			return nil, err
		}
		_, offset := t.Zone()
		return withOffset(t, offset), nil
	case KindIndex:
		v, err := strconv.ParseUint(s, 10, 32)
		return Index(v), err
	}
	return nil, fmt.Errorf("not a scalar kind")
}

// EncodeDocument exports tok and marshals the document with c.
func EncodeDocument(c Codec, tok Token, ctx *SerializationContext) ([]byte, error) {
	n, err := ExportDocument(tok, ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.Marshal(n)
	if err != nil {
		return nil, newCodecError(ErrMarshal, err)
	}
	return data, nil
}

// DecodeDocument unmarshals a document with c and imports it.
func DecodeDocument(c Codec, data []byte, ctx *SerializationContext) (Token, error) {
	var n Node
	if err := c.Unmarshal(data, &n); err != nil {
		return Token{}, newCodecError(ErrUnmarshal, err)
	}
	return ImportDocument(&n, ctx)
}

// EncodeValue serializes value within ctx and marshals its document with c.
func EncodeValue(c Codec, value any, ctx *SerializationContext) ([]byte, error) {
	tok, err := Serialize(value, ctx)
	if err != nil {
		return nil, err
	}
	return EncodeDocument(c, tok, ctx)
}

// DecodeValue unmarshals a document with c and extracts a T from it.
func DecodeValue[T any](c Codec, data []byte, ctx *SerializationContext) (T, error) {
	tok, err := DecodeDocument(c, data, ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return Extract[T](tok, ctx)
}
