// Package value implements the engine's tagged-union scalar type.
//
// A Value is one of {null, int, big-int, float, short-text, text, timestamp,
// time}. Equality and ordering are total within a kind; comparisons across
// kinds follow the coercion table in Compare.
package value

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"storj.io/flowdb/pkg/wire"
)

// Kind tags the union discriminant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindBigInt
	KindFloat
	KindShortText
	KindText
	KindTimestamp
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "float"
	case KindShortText:
		return "shorttext"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Class is the error class for malformed values, surfaced as spec.md's
// DataError (§7) at call sites that parse external input.
var Class = errs.Class("value")

// shortTextCap is the inline threshold; text strings longer than this are
// stored as KindText and share their backing array across clones instead of
// being copied, per spec.md §3's row-cloning recommendation.
const shortTextCap = 32

// Value is a single scalar in a Row. The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	big  *big.Int
	f    float64
	s    string
	t    time.Time
}

// Null is the canonical null value.
var Null = Value{kind: KindNull}

// Int constructs an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// BigInt constructs an arbitrary-precision integer value. The argument is
// not retained by reference mutation: callers must not mutate it afterward.
func BigInt(v *big.Int) Value {
	if v == nil {
		return Null
	}
	return Value{kind: KindBigInt, big: v}
}

// Float constructs a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text constructs a text value, choosing the short-text or text
// representation transparently based on length.
func Text(v string) Value {
	if len(v) <= shortTextCap {
		return Value{kind: KindShortText, s: v}
	}
	return Value{kind: KindText, s: v}
}

// Timestamp constructs a monotonic-timestamp value (used for base-table
// write ordering per spec.md §3).
func Timestamp(v int64) Value { return Value{kind: KindTimestamp, i: v} }

// Time constructs a wall-clock time value.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload; only valid when Kind() == KindInt or
// KindTimestamp.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the float payload; only valid when Kind() == KindFloat.
func (v Value) Float64() float64 { return v.f }

// BigIntValue returns the big-int payload; only valid when Kind() == KindBigInt.
func (v Value) BigIntValue() *big.Int { return v.big }

// String returns the text payload; only valid when Kind() is KindShortText
// or KindText. For other kinds it renders a debug representation.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindBigInt:
		if v.big == nil {
			return "NULL"
		}
		return v.big.String()
	case KindFloat:
		return fmt.Sprintf("%v", v.f)
	case KindShortText, KindText:
		return v.s
	case KindTimestamp:
		return fmt.Sprintf("ts:%d", v.i)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

// TimeValue returns the time payload; only valid when Kind() == KindTime.
func (v Value) TimeValue() time.Time { return v.t }

// rank gives the coercion-table ordering used to compare values of
// different kinds: null sorts first, then numeric kinds by magnitude class,
// then text, then time-like kinds.
func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt, KindBigInt, KindFloat:
		return 1
	case KindShortText, KindText:
		return 2
	case KindTimestamp:
		return 3
	case KindTime:
		return 4
	default:
		return 5
	}
}

func asFloat(v Value) (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBigInt:
		if v.big == nil {
			return 0, false
		}
		f := new(big.Float).SetInt(v.big)
		out, _ := f.Float64()
		return out, true
	default:
		return 0, false
	}
}

// Compare orders a and b. Values of the same numeric class compare by
// magnitude; text compares lexically; time-like kinds compare
// chronologically; across classes the fixed rank() ordering applies.
func Compare(a, b Value) int {
	if a.kind == b.kind {
		switch a.kind {
		case KindNull:
			return 0
		case KindInt:
			switch {
			case a.i < b.i:
				return -1
			case a.i > b.i:
				return 1
			default:
				return 0
			}
		case KindBigInt:
			return a.big.Cmp(b.big)
		case KindFloat:
			switch {
			case a.f < b.f:
				return -1
			case a.f > b.f:
				return 1
			default:
				return 0
			}
		case KindShortText, KindText:
			return strings.Compare(a.s, b.s)
		case KindTimestamp:
			switch {
			case a.i < b.i:
				return -1
			case a.i > b.i:
				return 1
			default:
				return 0
			}
		case KindTime:
			return a.t.Compare(b.t)
		}
	}

	ra, rb := rank(a.kind), rank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	// same rank class but different concrete kind: only the numeric class
	// mixes (int/bigint/float), compare by coerced magnitude.
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a.String(), b.String())
}

// Equal reports whether a and b are byte-equal, including text
// representation, matching spec.md §8's twin-diff cancellation invariant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBigInt:
		if a.big == nil || b.big == nil {
			return a.big == b.big
		}
		return a.big.Cmp(b.big) == 0
	case KindTime:
		return a.t.Equal(b.t)
	default:
		return Compare(a, b) == 0
	}
}

// Value's wire fields, a closed set with no .proto source: Kind=1,
// I=2 (int/timestamp payload, zigzag), Big=3/Neg=4 (big.Int magnitude
// and sign), F=5 (float64, fixed64), S=6 (short-text/text payload),
// T=7 (time, zigzag UnixNano).

// Size returns the length Marshal would produce.
func (v Value) Size() int { return len(v.appendTo(nil)) }

// Marshal encodes v the way protoc-gen-gogofaster would for a message
// with the field layout documented above.
func (v Value) Marshal() ([]byte, error) {
	return v.appendTo(nil), nil
}

// MarshalTo writes v into dAtA, which must have at least v.Size()
// bytes of capacity, and returns the number of bytes written.
func (v Value) MarshalTo(dAtA []byte) (int, error) {
	return copy(dAtA, v.appendTo(nil)), nil
}

func (v Value) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(v.kind))
	buf = wire.AppendZigzagField(buf, 2, v.i)
	if v.big != nil {
		buf = wire.AppendBytesField(buf, 3, v.big.Bytes())
		buf = wire.AppendBoolField(buf, 4, v.big.Sign() < 0)
	}
	buf = wire.AppendFloat64Field(buf, 5, v.f)
	buf = wire.AppendStringField(buf, 6, v.s)
	if !v.t.IsZero() {
		buf = wire.AppendZigzagField(buf, 7, v.t.UnixNano())
	}
	return buf
}

// Unmarshal decodes a Value written by Marshal, skipping fields it
// doesn't recognize (a future field added to one side of a rolling
// deploy doesn't break the other).
func (v *Value) Unmarshal(dAtA []byte) error {
	*v = Value{}

	var bigBytes []byte
	var neg, haveBig, haveTime bool
	var nanos int64

	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]

		switch f.Num {
		case 1:
			v.kind = Kind(f.Varint)
		case 2:
			v.i = wire.UnzigzagInt64(f.Varint)
		case 3:
			bigBytes = f.Bytes
			haveBig = true
		case 4:
			neg = f.Bool()
		case 5:
			v.f = f.Float64()
		case 6:
			v.s = string(f.Bytes)
		case 7:
			nanos = wire.UnzigzagInt64(f.Varint)
			haveTime = true
		}
	}

	if haveBig {
		n := new(big.Int).SetBytes(bigBytes)
		if neg {
			n.Neg(n)
		}
		v.big = n
	}
	if haveTime {
		v.t = time.Unix(0, nanos).UTC()
	}
	return nil
}
