package skein

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Char is a single character scalar.
type Char rune

// Index is the compact non-negative scalar used for counts.
type Index uint32

// Instant is an absolute point in time. It carries no offset and is always
// normalised to UTC.
type Instant struct {
	time.Time
}

// InstantOf returns t as an Instant.
func InstantOf(t time.Time) Instant {
	return Instant{Time: t.UTC()}
}

// withOffset places t in a zone fixed at offset seconds east of UTC. A zero
// offset is UTC.
func withOffset(t time.Time, offset int) time.Time {
	if offset == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", offset))
}

// MaxDecimalScale is the largest number of fractional digits a Decimal holds.
const MaxDecimalScale = 28

// ErrDecimalRange indicates a decimal coefficient or scale out of range.
var ErrDecimalRange = errors.New("decimal out of range")

var (
	decimalMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	decimalMin = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	twoTo64    = new(big.Int).Lsh(big.NewInt(1), 64)
	twoTo128   = new(big.Int).Lsh(big.NewInt(1), 128)
)

// Decimal is a fixed-point number: a signed 128-bit coefficient scaled by
// 10^-scale. Two decimals compare equal with == only when both coefficient
// and scale match.
type Decimal struct {
	lo    uint64
	hi    int64
	scale uint8
}

// NewDecimal returns unscaled * 10^-scale.
func NewDecimal(unscaled *big.Int, scale uint8) (Decimal, error) {
	if scale > MaxDecimalScale {
		return Decimal{}, fmt.Errorf("%w: scale %d exceeds %d", ErrDecimalRange, scale, MaxDecimalScale)
	}
	if unscaled.Cmp(decimalMax) > 0 || unscaled.Cmp(decimalMin) < 0 {
		return Decimal{}, fmt.Errorf("%w: coefficient %s exceeds 128 bits", ErrDecimalRange, unscaled)
	}
	u := new(big.Int).Set(unscaled)
	if u.Sign() < 0 {
		u.Add(u, twoTo128)
	}
	lo := new(big.Int).Mod(u, twoTo64).Uint64()
	hi := new(big.Int).Rsh(u, 64).Uint64()
	return Decimal{lo: lo, hi: int64(hi), scale: scale}, nil // #nosec G115 -- two's complement reinterpretation
}

// DecimalFromInt64 returns v as a Decimal with scale 0.
func DecimalFromInt64(v int64) Decimal {
	d := Decimal{lo: uint64(v)} // #nosec G115 -- two's complement reinterpretation
	if v < 0 {
		d.hi = -1
	}
	return d
}

// ParseDecimal parses a plain decimal literal such as "-12.050".
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	digits := intPart + fracPart
	if digits == "" {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Decimal{}, fmt.Errorf("invalid decimal %q", s)
		}
	}
	if len(fracPart) > MaxDecimalScale {
		return Decimal{}, fmt.Errorf("%w: scale %d exceeds %d", ErrDecimalRange, len(fracPart), MaxDecimalScale)
	}
	coef, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	if neg {
		coef.Neg(coef)
	}
	return NewDecimal(coef, uint8(len(fracPart))) // #nosec G115 -- bounded by MaxDecimalScale
}

// Unscaled returns the signed coefficient.
func (d Decimal) Unscaled() *big.Int {
	u := new(big.Int).SetUint64(uint64(d.hi)) // #nosec G115 -- two's complement reinterpretation
	u.Lsh(u, 64)
	u.Or(u, new(big.Int).SetUint64(d.lo))
	if d.hi < 0 {
		u.Sub(u, twoTo128)
	}
	return u
}

// Scale returns the number of fractional digits.
func (d Decimal) Scale() uint8 { return d.scale }

func (d Decimal) String() string {
	u := d.Unscaled()
	neg := u.Sign() < 0
	digits := new(big.Int).Abs(u).String()
	if d.scale > 0 {
		scale := int(d.scale)
		if len(digits) <= scale {
			digits = strings.Repeat("0", scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// Scalar lists the Go types that map directly onto a scalar token kind.
type Scalar interface {
	uint8 | int8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | int | uint |
		float32 | float64 | bool | Char | Index | Decimal | uuid.UUID |
		Instant | time.Time | time.Duration
}

// scalarStrategy pairs the creation and extraction of one scalar kind for one
// Go type.
type scalarStrategy struct {
	kind    Kind
	create  func(rv reflect.Value) Token
	extract func(t Token, target reflect.Type) reflect.Value
}

// canonicalTypes is the Go type stored in Token.scalar for each kind.
var canonicalTypes = [kindCount]reflect.Type{
	KindByte:     reflect.TypeFor[uint8](),
	KindInt8:     reflect.TypeFor[int8](),
	KindInt16:    reflect.TypeFor[int16](),
	KindUint16:   reflect.TypeFor[uint16](),
	KindInt32:    reflect.TypeFor[int32](),
	KindUint32:   reflect.TypeFor[uint32](),
	KindInt64:    reflect.TypeFor[int64](),
	KindUint64:   reflect.TypeFor[uint64](),
	KindFloat32:  reflect.TypeFor[float32](),
	KindFloat64:  reflect.TypeFor[float64](),
	KindDecimal:  reflect.TypeFor[Decimal](),
	KindBool:     reflect.TypeFor[bool](),
	KindChar:     reflect.TypeFor[Char](),
	KindUUID:     reflect.TypeFor[uuid.UUID](),
	KindInstant:  reflect.TypeFor[Instant](),
	KindDuration: reflect.TypeFor[time.Duration](),
	KindTime:     reflect.TypeFor[time.Time](),
	KindIndex:    reflect.TypeFor[Index](),
}

// convertStrategy stores values converted to the kind's canonical type and
// converts back to the requested type on extraction.
func convertStrategy(kind Kind) scalarStrategy {
	canon := canonicalTypes[kind]
	return scalarStrategy{
		kind: kind,
		create: func(rv reflect.Value) Token {
			return Token{kind: kind, scalar: rv.Convert(canon).Interface()}
		},
		extract: func(t Token, target reflect.Type) reflect.Value {
			return reflect.ValueOf(t.scalar).Convert(target)
		},
	}
}

// exactStrategy stores values of the canonical type as they are.
func exactStrategy(kind Kind) scalarStrategy {
	return scalarStrategy{
		kind: kind,
		create: func(rv reflect.Value) Token {
			return Token{kind: kind, scalar: rv.Interface()}
		},
		extract: func(t Token, _ reflect.Type) reflect.Value {
			return reflect.ValueOf(t.scalar)
		},
	}
}

// scalarsByType resolves a Go type to its strategy in one lookup.
var scalarsByType = map[reflect.Type]scalarStrategy{
	reflect.TypeFor[uint8]():         exactStrategy(KindByte),
	reflect.TypeFor[int8]():          exactStrategy(KindInt8),
	reflect.TypeFor[int16]():         exactStrategy(KindInt16),
	reflect.TypeFor[uint16]():        exactStrategy(KindUint16),
	reflect.TypeFor[int32]():         exactStrategy(KindInt32),
	reflect.TypeFor[uint32]():        exactStrategy(KindUint32),
	reflect.TypeFor[int64]():         exactStrategy(KindInt64),
	reflect.TypeFor[uint64]():        exactStrategy(KindUint64),
	reflect.TypeFor[int]():           convertStrategy(KindInt64),
	reflect.TypeFor[uint]():          convertStrategy(KindUint64),
	reflect.TypeFor[float32]():       exactStrategy(KindFloat32),
	reflect.TypeFor[float64]():       exactStrategy(KindFloat64),
	reflect.TypeFor[bool]():          exactStrategy(KindBool),
	reflect.TypeFor[Char]():          exactStrategy(KindChar),
	reflect.TypeFor[Index]():         exactStrategy(KindIndex),
	reflect.TypeFor[Decimal]():       exactStrategy(KindDecimal),
	reflect.TypeFor[uuid.UUID]():     exactStrategy(KindUUID),
	reflect.TypeFor[time.Duration](): exactStrategy(KindDuration),
	reflect.TypeFor[Instant](): {
		kind: KindInstant,
		create: func(rv reflect.Value) Token {
			return Token{kind: KindInstant, scalar: InstantOf(rv.Interface().(Instant).Time)}
		},
		extract: func(t Token, _ reflect.Type) reflect.Value {
			return reflect.ValueOf(t.scalar)
		},
	},
	reflect.TypeFor[time.Time](): exactStrategy(KindTime),
}

// kindStrategies serve named types whose underlying kind is numeric or bool.
var kindStrategies = map[reflect.Kind]scalarStrategy{
	reflect.Bool:    convertStrategy(KindBool),
	reflect.Int8:    convertStrategy(KindInt8),
	reflect.Int16:   convertStrategy(KindInt16),
	reflect.Int32:   convertStrategy(KindInt32),
	reflect.Int:     convertStrategy(KindInt64),
	reflect.Int64:   convertStrategy(KindInt64),
	reflect.Uint8:   convertStrategy(KindByte),
	reflect.Uint16:  convertStrategy(KindUint16),
	reflect.Uint32:  convertStrategy(KindUint32),
	reflect.Uint:    convertStrategy(KindUint64),
	reflect.Uint64:  convertStrategy(KindUint64),
	reflect.Float32: convertStrategy(KindFloat32),
	reflect.Float64: convertStrategy(KindFloat64),
}

// lookupScalar returns the strategy serving t, if t is a scalar type.
func lookupScalar(t reflect.Type) (scalarStrategy, bool) {
	if s, ok := scalarsByType[t]; ok {
		return s, true
	}
	s, ok := kindStrategies[t.Kind()]
	return s, ok
}

// NewToken returns the scalar token for v. It never fails.
func NewToken[T Scalar](v T) Token {
	s, _ := lookupScalar(reflect.TypeFor[T]())
	return s.create(reflect.ValueOf(v))
}

// ScalarValue extracts a T from a scalar token. A token of any other kind
// fails with a *TypeMismatchError naming the expected kind.
func ScalarValue[T Scalar](t Token) (T, error) {
	var zero T
	typ := reflect.TypeFor[T]()
	s, _ := lookupScalar(typ)
	if t.kind != s.kind {
		return zero, newTypeMismatchError(s.kind.String(), t.describe())
	}
	out, _ := s.extract(t, typ).Interface().(T)
	return out, nil
}
