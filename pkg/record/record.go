// Package record implements the signed-row diff that flows along every
// edge of the dataflow graph: a Record is a Row annotated with a Sign,
// and an update is always expressed as a Negative/Positive pair rather
// than as an in-place mutation (spec.md §3).
package record

import (
	"storj.io/flowdb/pkg/value"
	"storj.io/flowdb/pkg/wire"
)

// Sign marks a Record as an insertion or deletion.
type Sign int8

const (
	// Positive records an insertion.
	Positive Sign = 1
	// Negative records a deletion.
	Negative Sign = -1
)

func (s Sign) String() string {
	if s == Positive {
		return "+"
	}
	return "-"
}

// Record is a signed row.
type Record struct {
	Row  value.Row
	Sign Sign
}

// NewPositive wraps row as an insertion.
func NewPositive(row value.Row) Record { return Record{Row: row, Sign: Positive} }

// NewNegative wraps row as a deletion.
func NewNegative(row value.Row) Record { return Record{Row: row, Sign: Negative} }

// IsPositive reports whether the record is an insertion.
func (r Record) IsPositive() bool { return r.Sign == Positive }

// IsNegative reports whether the record is a deletion.
func (r Record) IsNegative() bool { return r.Sign == Negative }

// Negate returns the twin record with the opposite sign over the same row,
// the pairing spec.md §8 requires for cancellation: "the -r row equals
// exactly one prior +r row's value".
func (r Record) Negate() Record {
	return Record{Row: r.Row, Sign: -r.Sign}
}

// WithRow returns a copy of r carrying a different row but the same sign,
// used by operators that project or transform rows while preserving the
// insert/delete direction of the input diff.
func (r Record) WithRow(row value.Row) Record {
	return Record{Row: row, Sign: r.Sign}
}

// Batch is an ordered sequence of Records, the payload of a Message or
// Input packet.
type Batch []Record

// Clone deep-copies the batch (and every row within it).
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = Record{Row: r.Row.Clone(), Sign: r.Sign}
	}
	return out
}

// Record's wire fields, hand-written in the shape protoc-gen-gogofaster
// would emit for `repeated Value row = 1; sint32 sign = 2;`: Row=1
// (one length-delimited entry per value, in order), Sign=2 (zigzag).

// Size returns the length Marshal would produce.
func (r Record) Size() int { return len(r.appendTo(nil)) }

// Marshal encodes r.
func (r Record) Marshal() ([]byte, error) { return r.appendTo(nil), nil }

// MarshalTo writes r into dAtA, which must have at least r.Size()
// bytes of capacity.
func (r Record) MarshalTo(dAtA []byte) (int, error) {
	return copy(dAtA, r.appendTo(nil)), nil
}

func (r Record) appendTo(buf []byte) []byte {
	for _, v := range r.Row {
		data, _ := v.Marshal()
		buf = wire.AppendRepeatedBytesField(buf, 1, data)
	}
	buf = wire.AppendZigzagField(buf, 2, int64(r.Sign))
	return buf
}

// Unmarshal decodes a Record written by Marshal.
func (r *Record) Unmarshal(dAtA []byte) error {
	*r = Record{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]

		switch f.Num {
		case 1:
			var v value.Value
			if err := v.Unmarshal(f.Bytes); err != nil {
				return err
			}
			r.Row = append(r.Row, v)
		case 2:
			r.Sign = Sign(wire.UnzigzagInt64(f.Varint))
		}
	}
	return nil
}

// Size returns the length Marshal would produce for the whole batch.
func (b Batch) Size() int { return len(b.appendTo(nil)) }

// Marshal encodes b as a length-delimited sequence of Records, the
// shape `repeated Record batch = 1;` would generate.
func (b Batch) Marshal() ([]byte, error) { return b.appendTo(nil), nil }

func (b Batch) appendTo(buf []byte) []byte {
	for _, r := range b {
		data, _ := r.Marshal()
		buf = wire.AppendRepeatedBytesField(buf, 1, data)
	}
	return buf
}

// Unmarshal decodes a Batch written by Marshal. *b is reset first.
func (b *Batch) Unmarshal(dAtA []byte) error {
	*b = nil
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]

		if f.Num != 1 {
			continue
		}
		var r Record
		if err := r.Unmarshal(f.Bytes); err != nil {
			return err
		}
		*b = append(*b, r)
	}
	return nil
}
