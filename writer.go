package skein

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stream framing.
const (
	Magic   = "SKNG"
	Version = uint16(1)
)

// Compact index encoding markers.
const (
	compact16 = 0xFE
	compact32 = 0xFF
)

// Complex type property framing.
const (
	propEnd  = 0
	propMore = 1
)

// String framing.
const (
	strNew = 0
	strRef = 1
)

// Writer encodes tokens onto a byte stream. String interning state lives in
// the SerializationContext, so one context should feed one Writer.
type Writer struct {
	w     *bufio.Writer
	ctx   *SerializationContext
	n     int64
	depth int
	buf   [17]byte
}

// NewWriter returns a Writer encoding onto w.
func NewWriter(w io.Writer, ctx *SerializationContext) *Writer {
	return &Writer{w: bufio.NewWriter(w), ctx: ctx}
}

// Written returns the number of bytes encoded so far.
func (w *Writer) Written() int64 { return w.n }

// Flush writes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.n += int64(n)
	return err
}

func (w *Writer) writeByte(b byte) error {
	if err := w.w.WriteByte(b); err != nil {
		return err
	}
	w.n++
	return nil
}

// WritePreamble writes the magic and version.
func (w *Writer) WritePreamble() error {
	copy(w.buf[:4], Magic)
	binary.LittleEndian.PutUint16(w.buf[4:6], Version)
	return w.write(w.buf[:6])
}

// WriteCompact writes v in the compact index encoding.
func (w *Writer) WriteCompact(v int) error {
	switch {
	case v < 0 || v > math.MaxInt32:
		return fmt.Errorf("%w: compact index %d out of range", ErrInvalidFormat, v)
	case v < compact16:
		return w.writeByte(byte(v))
	case v < 0x10000:
		w.buf[0] = compact16
		binary.LittleEndian.PutUint16(w.buf[1:3], uint16(v)) // #nosec G115 -- bounded above
		return w.write(w.buf[:3])
	}
	w.buf[0] = compact32
	binary.LittleEndian.PutUint32(w.buf[1:5], uint32(v)) // #nosec G115 -- bounded above
	return w.write(w.buf[:5])
}

// WriteToken writes tok and everything it contains, depth first. Lazy
// property sequences are consumed here.
func (w *Writer) WriteToken(tok Token) error {
	if tok.kind >= kindCount {
		return newFormatError(ErrUnknownTokenKind, w.n, tok.kind.String())
	}
	if err := w.writeByte(byte(tok.kind)); err != nil {
		return err
	}
	switch {
	case tok.kind == KindNothing:
		return nil
	case tok.kind.IsScalar():
		return w.writeScalar(tok)
	}
	return w.writeReference(tok)
}

func (w *Writer) writeScalar(tok Token) error {
	b := w.buf[:]
	switch v := tok.scalar.(type) {
	case uint8:
		b[0] = v
		return w.write(b[:1])
	case int8:
		b[0] = byte(v) // #nosec G115 -- two's complement reinterpretation
		return w.write(b[:1])
	case bool:
		b[0] = 0
		if v {
			b[0] = 1
		}
		return w.write(b[:1])
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(v)) // #nosec G115 -- two's complement reinterpretation
		return w.write(b[:2])
	case uint16:
		binary.LittleEndian.PutUint16(b, v)
		return w.write(b[:2])
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(v)) // #nosec G115 -- two's complement reinterpretation
		return w.write(b[:4])
	case uint32:
		binary.LittleEndian.PutUint32(b, v)
		return w.write(b[:4])
	case Char:
		binary.LittleEndian.PutUint32(b, uint32(v)) // #nosec G115 -- two's complement reinterpretation
		return w.write(b[:4])
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		return w.write(b[:4])
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(v)) // #nosec G115 -- two's complement reinterpretation
		return w.write(b[:8])
	case uint64:
		binary.LittleEndian.PutUint64(b, v)
		return w.write(b[:8])
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return w.write(b[:8])
	case time.Duration:
		binary.LittleEndian.PutUint64(b, uint64(v)) // #nosec G115 -- two's complement reinterpretation
		return w.write(b[:8])
	case Decimal:
		binary.LittleEndian.PutUint64(b[0:8], v.lo)
		binary.LittleEndian.PutUint64(b[8:16], uint64(v.hi)) // #nosec G115 -- two's complement reinterpretation
		b[16] = v.scale
		return w.write(b[:17])
	case uuid.UUID:
		return w.write(v[:])
	case Instant:
		putTime(b, v.Time)
		return w.write(b[:12])
	case time.Time:
		putTime(b, v)
		_, offset := v.Zone()
		binary.LittleEndian.PutUint32(b[12:16], uint32(int32(offset))) // #nosec G115 -- zone offsets fit in 32 bits
		return w.write(b[:16])
	case Index:
		return w.WriteCompact(int(v))
	}
	return newTypeMismatchError(tok.kind.String(), fmt.Sprintf("%T", tok.scalar))
}

// putTime writes seconds then nanoseconds since the Unix epoch.
func putTime(b []byte, t time.Time) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(t.Unix()))             // #nosec G115 -- two's complement reinterpretation
	binary.LittleEndian.PutUint32(b[8:12], uint32(int32(t.Nanosecond()))) // #nosec G115 -- nanoseconds fit in 32 bits
}

func (w *Writer) writeReference(tok Token) error {
	switch ref := tok.ref.(type) {
	case string:
		if err := w.writeByte(byte(RefString)); err != nil {
			return err
		}
		return w.writeString(ref)
	case []byte:
		if len(ref) > w.ctx.maxPayload {
			return newFormatError(ErrOversizedPayload, w.n, fmt.Sprintf("%d bytes exceeds %d", len(ref), w.ctx.maxPayload))
		}
		if err := w.writeByte(byte(RefByteArray)); err != nil {
			return err
		}
		if err := w.WriteCompact(len(ref)); err != nil {
			return err
		}
		return w.write(ref)
	case ComplexTypeReference:
		if err := w.writeByte(byte(RefComplexTypeReference)); err != nil {
			return err
		}
		return w.WriteCompact(ref.Index)
	case *ComplexType:
		if ref == nil {
			break
		}
		if err := w.writeByte(byte(RefComplexType)); err != nil {
			return err
		}
		return w.writeComplex(ref)
	}
	return newFormatError(ErrUnknownTokenKind, w.n, tok.describe())
}

// writeString interns s: a string seen before is written as a reference to
// its table index.
func (w *Writer) writeString(s string) error {
	if len(s) > w.ctx.maxPayload {
		return newFormatError(ErrOversizedPayload, w.n, fmt.Sprintf("%d bytes exceeds %d", len(s), w.ctx.maxPayload))
	}
	index, isNew := w.ctx.internString(s)
	if !isNew {
		if err := w.writeByte(strRef); err != nil {
			return err
		}
		return w.WriteCompact(index)
	}
	if err := w.writeByte(strNew); err != nil {
		return err
	}
	if err := w.WriteCompact(index); err != nil {
		return err
	}
	if err := w.WriteCompact(len(s)); err != nil {
		return err
	}
	n, err := w.w.WriteString(s)
	w.n += int64(n)
	return err
}

func (w *Writer) writeTypeMapping(m TypeMapping) error {
	if err := w.writeString(m.Kind); err != nil {
		return err
	}
	if err := w.writeString(m.Type); err != nil {
		return err
	}
	if err := w.WriteCompact(len(m.Params)); err != nil {
		return err
	}
	for _, p := range m.Params {
		if err := w.writeTypeMapping(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeComplex(ct *ComplexType) error {
	if w.depth >= w.ctx.maxDepth {
		return newFormatError(ErrDepthExceeded, w.n, fmt.Sprintf("nesting deeper than %d", w.ctx.maxDepth))
	}
	w.depth++
	defer func() { w.depth-- }()

	if ct.Type == nil {
		return newTypeError(ErrNoTypeMapping, fmt.Sprintf("complex type %d", ct.Index))
	}
	m, err := w.ctx.TypeName(ct.Type)
	if err != nil {
		return err
	}
	if err := w.WriteCompact(ct.Index); err != nil {
		return err
	}
	if err := w.writeTypeMapping(m); err != nil {
		return err
	}

	props := ct.Properties
	if ct.done {
		props = Properties(ct.collected...)
	}
	if props != nil {
		for p, err := range props {
			if err != nil {
				return err
			}
			if err := w.writeByte(propMore); err != nil {
				return err
			}
			if err := w.writeString(p.Name); err != nil {
				return err
			}
			if err := w.WriteToken(p.Value); err != nil {
				return err
			}
		}
	}
	return w.writeByte(propEnd)
}

// Write encodes the preamble and tok onto out.
func Write(out io.Writer, tok Token, ctx *SerializationContext) error {
	start := time.Now()
	w := NewWriter(out, ctx)
	err := w.WritePreamble()
	if err == nil {
		err = w.WriteToken(tok)
	}
	if err == nil {
		err = w.Flush()
	}
	emitWriteComplete(ctx, tokenTypeName(tok), w.Written(), time.Since(start), err)
	return err
}

// tokenTypeName names the value a token carries for telemetry.
func tokenTypeName(tok Token) string {
	if ct, ok := tok.ref.(*ComplexType); ok && ct != nil && ct.Type != nil {
		return ct.Type.String()
	}
	return tok.describe()
}
