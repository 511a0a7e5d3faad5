package skein

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
)

// Reader decodes tokens from a byte stream. Complex type definitions and the
// string table are recorded on the SerializationContext as they are read.
type Reader struct {
	r     *bufio.Reader
	ctx   *SerializationContext
	off   int64
	depth int
	buf   [17]byte

	// references seen before their definition
	pending map[int]int64
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader, ctx *SerializationContext) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, ctx: ctx, pending: make(map[int]int64)}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.off }

func (r *Reader) truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return newFormatError(ErrTruncated, r.off, what)
	}
	return err
}

func (r *Reader) readFull(n int, what string) ([]byte, error) {
	got, err := io.ReadFull(r.r, r.buf[:n])
	r.off += int64(got)
	if err != nil {
		return nil, r.truncated(err, what)
	}
	return r.buf[:n], nil
}

func (r *Reader) readByte(what string) (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, r.truncated(err, what)
	}
	r.off++
	return b, nil
}

// readPayload reads n bytes into a fresh slice after checking the cap.
func (r *Reader) readPayload(n int, what string) ([]byte, error) {
	if n > r.ctx.maxPayload {
		return nil, newFormatError(ErrOversizedPayload, r.off, fmt.Sprintf("%s of %d bytes exceeds %d", what, n, r.ctx.maxPayload))
	}
	p := make([]byte, n)
	got, err := io.ReadFull(r.r, p)
	r.off += int64(got)
	if err != nil {
		return nil, r.truncated(err, what)
	}
	return p, nil
}

// ReadPreamble checks the magic and version.
func (r *Reader) ReadPreamble() error {
	b, err := r.readFull(6, "preamble")
	if err != nil {
		return err
	}
	if string(b[:4]) != Magic {
		return newFormatError(ErrInvalidFormat, 0, fmt.Sprintf("magic %q", b[:4]))
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != Version {
		return newFormatError(ErrUnsupportedVersion, 4, fmt.Sprintf("version %d, want %d", v, Version))
	}
	return nil
}

// ReadCompact reads a value in the compact index encoding.
func (r *Reader) ReadCompact() (int, error) {
	first, err := r.readByte("compact index")
	if err != nil {
		return 0, err
	}
	switch first {
	case compact16:
		b, err := r.readFull(2, "compact index")
		if err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint16(b)), nil
	case compact32:
		b, err := r.readFull(4, "compact index")
		if err != nil {
			return 0, err
		}
		v := int32(binary.LittleEndian.Uint32(b)) // #nosec G115 -- two's complement reinterpretation
		if v < 0 {
			return 0, newFormatError(ErrInvalidFormat, r.off-4, fmt.Sprintf("negative compact index %d", v))
		}
		return int(v), nil
	}
	return int(first), nil
}

// ReadToken reads one token and everything it contains.
func (r *Reader) ReadToken() (Token, error) {
	at := r.off
	tag, err := r.readByte("token kind")
	if err != nil {
		return Token{}, err
	}
	kind := Kind(tag)
	switch {
	case kind == KindNothing:
		return Nothing(), nil
	case kind == KindReference:
		return r.readReference()
	case kind.IsScalar():
		return r.readScalar(kind)
	}
	return Token{}, newFormatError(ErrUnknownTokenKind, at, fmt.Sprintf("tag %d", tag))
}

var scalarWidths = [kindCount]int{
	KindByte:     1,
	KindInt8:     1,
	KindBool:     1,
	KindInt16:    2,
	KindUint16:   2,
	KindInt32:    4,
	KindUint32:   4,
	KindFloat32:  4,
	KindChar:     4,
	KindInt64:    8,
	KindUint64:   8,
	KindFloat64:  8,
	KindDuration: 8,
	KindInstant:  12,
	KindTime:     16,
	KindUUID:     16,
	KindDecimal:  17,
}

func (r *Reader) readScalar(kind Kind) (Token, error) {
	if kind == KindIndex {
		v, err := r.ReadCompact()
		if err != nil {
			return Token{}, err
		}
		return NewToken(Index(v)), nil // #nosec G115 -- compact values are non-negative int32
	}
	b, err := r.readFull(scalarWidths[kind], kind.String())
	if err != nil {
		return Token{}, err
	}
	le := binary.LittleEndian
	var v any
	switch kind {
	case KindByte:
		v = b[0]
	case KindInt8:
		v = int8(b[0]) // #nosec G115 -- two's complement reinterpretation
	case KindBool:
		if b[0] > 1 {
			return Token{}, newFormatError(ErrInvalidFormat, r.off-1, fmt.Sprintf("bool byte %d", b[0]))
		}
		v = b[0] == 1
	case KindInt16:
		v = int16(le.Uint16(b)) // #nosec G115 -- two's complement reinterpretation
	case KindUint16:
		v = le.Uint16(b)
	case KindInt32:
		v = int32(le.Uint32(b)) // #nosec G115 -- two's complement reinterpretation
	case KindUint32:
		v = le.Uint32(b)
	case KindFloat32:
		v = math.Float32frombits(le.Uint32(b))
	case KindChar:
		v = Char(int32(le.Uint32(b))) // #nosec G115 -- two's complement reinterpretation
	case KindInt64:
		v = int64(le.Uint64(b)) // #nosec G115 -- two's complement reinterpretation
	case KindUint64:
		v = le.Uint64(b)
	case KindFloat64:
		v = math.Float64frombits(le.Uint64(b))
	case KindDuration:
		v = time.Duration(le.Uint64(b)) // #nosec G115 -- two's complement reinterpretation
	case KindInstant:
		v = InstantOf(readTime(b))
	case KindTime:
		offset := int(int32(le.Uint32(b[12:16]))) // #nosec G115 -- two's complement reinterpretation
		v = withOffset(readTime(b), offset)
	case KindUUID:
		var id uuid.UUID
		copy(id[:], b)
		v = id
	case KindDecimal:
		d := Decimal{lo: le.Uint64(b[0:8]), hi: int64(le.Uint64(b[8:16])), scale: b[16]} // #nosec G115 -- two's complement reinterpretation
		if d.scale > MaxDecimalScale {
			return Token{}, newFormatError(ErrInvalidFormat, r.off-1, fmt.Sprintf("decimal scale %d", d.scale))
		}
		v = d
	}
	return Token{kind: kind, scalar: v}, nil
}

func readTime(b []byte) time.Time {
	sec := int64(binary.LittleEndian.Uint64(b[0:8]))         // #nosec G115 -- two's complement reinterpretation
	nsec := int64(int32(binary.LittleEndian.Uint32(b[8:12]))) // #nosec G115 -- two's complement reinterpretation
	return time.Unix(sec, nsec)
}

func (r *Reader) readReference() (Token, error) {
	at := r.off
	sub, err := r.readByte("reference kind")
	if err != nil {
		return Token{}, err
	}
	switch RefKind(sub) {
	case RefString:
		s, err := r.readString()
		if err != nil {
			return Token{}, err
		}
		return StringToken(s), nil
	case RefByteArray:
		n, err := r.ReadCompact()
		if err != nil {
			return Token{}, err
		}
		p, err := r.readPayload(n, "byte array")
		if err != nil {
			return Token{}, err
		}
		return BytesToken(p), nil
	case RefComplexTypeReference:
		index, err := r.ReadCompact()
		if err != nil {
			return Token{}, err
		}
		if _, ok := r.ctx.defs[index]; !ok {
			if _, seen := r.pending[index]; !seen {
				r.pending[index] = at
			}
		}
		return ReferenceToken(index), nil
	case RefComplexType:
		ct, err := r.readComplex()
		if err != nil {
			return Token{}, err
		}
		return ComplexToken(ct), nil
	}
	return Token{}, newFormatError(ErrUnknownTokenKind, at, fmt.Sprintf("reference kind %d", sub))
}

func (r *Reader) readString() (string, error) {
	at := r.off
	flag, err := r.readByte("string flag")
	if err != nil {
		return "", err
	}
	index, err := r.ReadCompact()
	if err != nil {
		return "", err
	}
	table := r.ctx.strTable
	switch flag {
	case strRef:
		if index >= len(table) {
			return "", newFormatError(ErrInvalidFormat, at, fmt.Sprintf("string reference %d of %d", index, len(table)))
		}
		return table[index], nil
	case strNew:
		if index != len(table) {
			return "", newFormatError(ErrInvalidFormat, at, fmt.Sprintf("new string index %d, want %d", index, len(table)))
		}
		n, err := r.ReadCompact()
		if err != nil {
			return "", err
		}
		p, err := r.readPayload(n, "string")
		if err != nil {
			return "", err
		}
		s := string(p)
		r.ctx.strTable = append(table, s)
		return s, nil
	}
	return "", newFormatError(ErrInvalidFormat, at, fmt.Sprintf("string flag %d", flag))
}

func (r *Reader) readTypeMapping(level int) (TypeMapping, error) {
	if level >= r.ctx.maxDepth {
		return TypeMapping{}, newFormatError(ErrDepthExceeded, r.off, "type mapping nesting")
	}
	var (
		m   TypeMapping
		err error
	)
	if m.Kind, err = r.readString(); err != nil {
		return TypeMapping{}, err
	}
	if m.Type, err = r.readString(); err != nil {
		return TypeMapping{}, err
	}
	n, err := r.ReadCompact()
	if err != nil {
		return TypeMapping{}, err
	}
	for range n {
		p, err := r.readTypeMapping(level + 1)
		if err != nil {
			return TypeMapping{}, err
		}
		m.Params = append(m.Params, p)
	}
	return m, nil
}

func (r *Reader) readComplex() (*ComplexType, error) {
	if r.depth >= r.ctx.maxDepth {
		return nil, newFormatError(ErrDepthExceeded, r.off, fmt.Sprintf("nesting deeper than %d", r.ctx.maxDepth))
	}
	r.depth++
	defer func() { r.depth-- }()

	at := r.off
	index, err := r.ReadCompact()
	if err != nil {
		return nil, err
	}
	m, err := r.readTypeMapping(0)
	if err != nil {
		return nil, err
	}
	t, err := r.ctx.ResolveType(m)
	if err != nil {
		return nil, err
	}
	if _, dup := r.ctx.defs[index]; dup {
		return nil, newFormatError(ErrInvalidFormat, at, fmt.Sprintf("index %d defined twice", index))
	}
	ct := &ComplexType{Type: t, Index: index, done: true}
	r.ctx.defs[index] = ct
	delete(r.pending, index)

	var props []Property
	for {
		flag, err := r.readByte("property flag")
		if err != nil {
			return nil, err
		}
		if flag == propEnd {
			break
		}
		if flag != propMore {
			return nil, newFormatError(ErrInvalidFormat, r.off-1, fmt.Sprintf("property flag %d", flag))
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		tok, err := r.ReadToken()
		if err != nil {
			return nil, err
		}
		props = append(props, Property{Name: name, Value: tok})
	}
	ct.collected = props
	ct.Properties = Properties(props...)
	return ct, nil
}

// Unresolved returns the first reference read whose index was never defined,
// or nil.
func (r *Reader) Unresolved() error {
	first, at := -1, int64(math.MaxInt64)
	for index, off := range r.pending {
		if _, ok := r.ctx.defs[index]; ok {
			continue
		}
		if off < at {
			first, at = index, off
		}
	}
	if first < 0 {
		return nil
	}
	return newReferenceError(first)
}

// Read decodes a preamble and one token from in. Every back-reference in the
// token must resolve to a definition inside it.
func Read(in io.Reader, ctx *SerializationContext) (Token, error) {
	start := time.Now()
	r := NewReader(in, ctx)
	err := r.ReadPreamble()
	var tok Token
	if err == nil {
		tok, err = r.ReadToken()
	}
	if err == nil {
		err = r.Unresolved()
	}
	if err != nil {
		tok = Token{}
	}
	emitReadComplete(ctx, tokenTypeName(tok), r.Offset(), time.Since(start), err)
	return tok, err
}
