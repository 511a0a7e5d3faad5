package skein

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"
)

var preamble = []byte{'S', 'K', 'N', 'G', 0x01, 0x00}

func stream(body ...byte) []byte {
	return append(append([]byte{}, preamble...), body...)
}

func TestCompact(t *testing.T) {
	tests := []struct {
		value int
		want  []byte
	}{
		{0, []byte{0x00}},
		{253, []byte{0xFD}},
		{254, []byte{0xFE, 0xFE, 0x00}},
		{255, []byte{0xFE, 0xFF, 0x00}},
		{65535, []byte{0xFE, 0xFF, 0xFF}},
		{65536, []byte{0xFF, 0x00, 0x00, 0x01, 0x00}},
		{math.MaxInt32, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		w := NewWriter(&buf, NewSerializationContext(nil))
		if err := w.WriteCompact(tt.value); err != nil {
			t.Fatalf("WriteCompact(%d) error: %v", tt.value, err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush() error: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("WriteCompact(%d) = % x, want % x", tt.value, buf.Bytes(), tt.want)
		}

		got, err := NewReader(&buf, NewSerializationContext(nil)).ReadCompact()
		if err != nil || got != tt.value {
			t.Errorf("ReadCompact() = %d, %v, want %d", got, err, tt.value)
		}
	}
}

func TestCompact_Invalid(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, NewSerializationContext(nil))
	for _, v := range []int{-1, math.MaxInt32 + 1} {
		if err := w.WriteCompact(v); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("WriteCompact(%d) error = %v, want ErrInvalidFormat", v, err)
		}
	}

	r := NewReader(bytes.NewReader([]byte{0xFF, 0x00, 0x00, 0x00, 0x80}), NewSerializationContext(nil))
	if _, err := r.ReadCompact(); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("ReadCompact(negative) error = %v, want ErrInvalidFormat", err)
	}

	r = NewReader(bytes.NewReader([]byte{0xFE, 0x01}), NewSerializationContext(nil))
	if _, err := r.ReadCompact(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadCompact(short) error = %v, want ErrTruncated", err)
	}
}

func TestWrite_Int32Stream(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, NewToken(int32(-1024)), NewSerializationContext(nil)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	want := stream(byte(KindInt32), 0x00, 0xFC, 0xFF, 0xFF)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("Write() = % x, want % x", buf.Bytes(), want)
	}
}

func TestWrite_StringInterning(t *testing.T) {
	ctx := NewSerializationContext(nil)
	var buf bytes.Buffer
	w := NewWriter(&buf, ctx)
	for range 2 {
		if err := w.WriteToken(StringToken("ab")); err != nil {
			t.Fatalf("WriteToken() error: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	ref := byte(KindReference)
	want := []byte{
		ref, byte(RefString), strNew, 0, 2, 'a', 'b',
		ref, byte(RefString), strRef, 0,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("interned strings = % x, want % x", buf.Bytes(), want)
	}
	if ctx.StringCount() != 1 {
		t.Errorf("StringCount() = %d, want 1", ctx.StringCount())
	}

	rctx := NewSerializationContext(nil)
	r := NewReader(&buf, rctx)
	for i := range 2 {
		tok, err := r.ReadToken()
		if err != nil {
			t.Fatalf("ReadToken(%d) error: %v", i, err)
		}
		if s, _ := tok.AsString(); s != "ab" {
			t.Errorf("ReadToken(%d) = %v, want ab", i, tok)
		}
	}
	if rctx.StringCount() != 1 {
		t.Errorf("reader StringCount() = %d, want 1", rctx.StringCount())
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short preamble", []byte("SKN"), ErrTruncated},
		{"bad magic", []byte{'J', 'S', 'O', 'N', 1, 0, 0}, ErrInvalidFormat},
		{"future version", []byte{'S', 'K', 'N', 'G', 2, 0, 0}, ErrUnsupportedVersion},
		{"no token", stream(), ErrTruncated},
		{"unknown kind", stream(byte(kindCount)), ErrUnknownTokenKind},
		{"unknown reference kind", stream(byte(KindReference), 9), ErrUnknownTokenKind},
		{"truncated scalar", stream(byte(KindInt64), 1, 2, 3), ErrTruncated},
		{"bool byte", stream(byte(KindBool), 2), ErrInvalidFormat},
		{"decimal scale", stream(append([]byte{byte(KindDecimal)}, append(make([]byte, 16), MaxDecimalScale+1)...)...), ErrInvalidFormat},
		{"string flag", stream(byte(KindReference), byte(RefString), 7, 0), ErrInvalidFormat},
		{"string index skips", stream(byte(KindReference), byte(RefString), strNew, 3, 1, 'x'), ErrInvalidFormat},
		{"string reference unknown", stream(byte(KindReference), byte(RefString), strRef, 0), ErrInvalidFormat},
		{"truncated string", stream(byte(KindReference), byte(RefString), strNew, 0, 5, 'x'), ErrTruncated},
		{"truncated bytes", stream(byte(KindReference), byte(RefByteArray), 4, 1), ErrTruncated},
		{"unresolved reference", stream(byte(KindReference), byte(RefComplexTypeReference), 5), ErrUnresolvedReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data), NewSerializationContext(nil))
			if !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRead_FormatErrorOffset(t *testing.T) {
	_, err := Read(bytes.NewReader(stream(byte(kindCount))), NewSerializationContext(nil))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FormatError", err)
	}
	if fe.Offset != int64(len(preamble)) {
		t.Errorf("Offset = %d, want %d", fe.Offset, len(preamble))
	}
}

func TestWrite_UnknownKind(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Token{kind: kindCount}, NewSerializationContext(nil))
	if !errors.Is(err, ErrUnknownTokenKind) {
		t.Errorf("Write() error = %v, want ErrUnknownTokenKind", err)
	}
}

func TestPayloadCap(t *testing.T) {
	ctx := NewSerializationContext(nil, WithMaxPayload(4))
	if ctx.MaxPayload() != 4 {
		t.Fatalf("MaxPayload() = %d", ctx.MaxPayload())
	}

	var buf bytes.Buffer
	if err := Write(&buf, StringToken("hello"), ctx); !errors.Is(err, ErrOversizedPayload) {
		t.Errorf("Write(string) error = %v, want ErrOversizedPayload", err)
	}
	buf.Reset()
	if err := Write(&buf, BytesToken([]byte("hello")), NewSerializationContext(nil, WithMaxPayload(4))); !errors.Is(err, ErrOversizedPayload) {
		t.Errorf("Write(bytes) error = %v, want ErrOversizedPayload", err)
	}

	buf.Reset()
	if err := Write(&buf, StringToken("hello"), NewSerializationContext(nil)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	_, err := Read(bytes.NewReader(buf.Bytes()), NewSerializationContext(nil, WithMaxPayload(4)))
	if !errors.Is(err, ErrOversizedPayload) {
		t.Errorf("Read() error = %v, want ErrOversizedPayload", err)
	}

	// A declared length above the cap fails before any allocation.
	huge := stream(byte(KindReference), byte(RefByteArray), 0xFF, 0xFF, 0xFF, 0xFF, 0x7F)
	if _, err := Read(bytes.NewReader(huge), NewSerializationContext(nil)); !errors.Is(err, ErrOversizedPayload) {
		t.Errorf("Read(huge) error = %v, want ErrOversizedPayload", err)
	}
}

func TestTime_OffsetSurvives(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"utc", 0},
		{"east", 2 * 3600},
		{"west with seconds", -(3*3600 + 25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := time.Date(2001, 9, 9, 1, 46, 40, 123456789, time.FixedZone("", tt.offset))
			var buf bytes.Buffer
			if err := Write(&buf, NewToken(in), NewSerializationContext(nil)); err != nil {
				t.Fatalf("Write() error: %v", err)
			}
			if buf.Len() != len(preamble)+1+16 {
				t.Errorf("stream length = %d", buf.Len())
			}
			tok, err := Read(&buf, NewSerializationContext(nil))
			if err != nil {
				t.Fatalf("Read() error: %v", err)
			}
			out, err := ScalarValue[time.Time](tok)
			if err != nil {
				t.Fatalf("ScalarValue() error: %v", err)
			}
			if !out.Equal(in) {
				t.Errorf("time = %v, want %v", out, in)
			}
			if _, off := out.Zone(); off != tt.offset {
				t.Errorf("offset = %d, want %d", off, tt.offset)
			}
		})
	}
}

func TestDepthLimit(t *testing.T) {
	reg := newTestRegistry(t)
	var head *node
	for i := range 5 {
		head = &node{Name: string(rune('a' + i)), Next: head}
	}

	if _, err := Marshal(head, NewSerializationContext(reg, WithMaxDepth(3))); !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Marshal() error = %v, want ErrDepthExceeded", err)
	}

	data, err := Marshal(head, NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if _, err := Unmarshal[*node](data, NewSerializationContext(reg, WithMaxDepth(3))); !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Unmarshal() error = %v, want ErrDepthExceeded", err)
	}
	if _, err := Unmarshal[*node](data, NewSerializationContext(reg, WithMaxDepth(5))); err != nil {
		t.Errorf("Unmarshal() at depth 5 error: %v", err)
	}
}

func TestWrite_ComplexLayout(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := NewSerializationContext(reg)
	tok, err := Serialize(&testObject{TestProperty: "v"}, ctx)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, tok, ctx); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	ref := byte(KindReference)
	str := func(index byte, s string) []byte {
		return append([]byte{ref, byte(RefString), strNew, index, byte(len(s))}, s...)
	}
	name := func(index byte, s string) []byte {
		return append([]byte{strNew, index, byte(len(s))}, s...)
	}
	want := stream(ref, byte(RefComplexType), 0)
	want = append(want, name(0, MappingGeneric)...)
	want = append(want, name(1, ShapePointer)...)
	want = append(want, 1)
	want = append(want, name(2, MappingIdentity)...)
	want = append(want, name(3, "test-object")...)
	want = append(want, 0)
	want = append(want, propMore)
	want = append(want, name(4, "TestProperty")...)
	want = append(want, str(5, "v")...)
	want = append(want, propEnd)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("layout =\n% x\nwant\n% x", buf.Bytes(), want)
	}
}

func TestRead_OversizedVectorType(t *testing.T) {
	name := func(index byte, s string) []byte {
		return append([]byte{strNew, index, byte(len(s))}, s...)
	}
	for _, length := range []string{"9223372036854775807", "2147483648"} {
		t.Run(length, func(t *testing.T) {
			data := stream(byte(KindReference), byte(RefComplexType), 0)
			data = append(data, name(0, MappingGeneric)...)
			data = append(data, name(1, ShapeVector+"/"+length)...)
			data = append(data, 1)
			data = append(data, name(2, MappingPrimitive)...)
			data = append(data, name(3, "int64")...)
			data = append(data, 0, propEnd)
			if _, err := Read(bytes.NewReader(data), NewSerializationContext(NewRegistry())); !errors.Is(err, ErrNoTypeMapping) {
				t.Errorf("Read() error = %v, want ErrNoTypeMapping", err)
			}
		})
	}
}

func TestRead_TruncatedGraph(t *testing.T) {
	reg := newTestRegistry(t)
	shared := &node{Name: "shared"}
	root := &node{Name: "root", Next: shared, Children: []*node{shared, {Name: "leaf", Next: shared}}}
	data, err := Marshal(root, NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	for cut := range len(data) {
		ctx := NewSerializationContext(reg)
		tok, err := Read(bytes.NewReader(data[:cut]), ctx)
		if err == nil {
			_, err = Extract[*node](tok, ctx)
		}
		if err == nil {
			t.Fatalf("stream cut at %d of %d decoded without error", cut, len(data))
		}
	}
}
