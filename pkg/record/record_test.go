package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/pkg/value"
)

func TestNegate(t *testing.T) {
	r := NewPositive(value.Row{value.Int(1)})
	n := r.Negate()
	assert.True(t, n.IsNegative())
	assert.True(t, n.Row.Equal(r.Row))
}

func TestWithRow(t *testing.T) {
	r := NewNegative(value.Row{value.Int(1)})
	w := r.WithRow(value.Row{value.Int(2)})
	assert.True(t, w.IsNegative())
	assert.Equal(t, value.Row{value.Int(2)}, w.Row)
}

func TestBatchClone(t *testing.T) {
	b := Batch{NewPositive(value.Row{value.Int(1)}), NewNegative(value.Row{value.Int(2)})}
	c := b.Clone()
	require := assert.New(t)
	require.Equal(len(b), len(c))
	c[0].Row[0] = value.Int(99)
	require.Equal(int64(1), b[0].Row[0].Int64())
}

func TestBatchMarshalRoundTrip(t *testing.T) {
	b := Batch{
		NewPositive(value.Row{value.Int(1), value.Text("a"), value.Null}),
		NewNegative(value.Row{value.Int(2), value.Text("")}),
	}

	data, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, b.Size(), len(data))

	var out Batch
	require.NoError(t, out.Unmarshal(data))
	require.Len(t, out, len(b))
	for i := range b {
		assert.Equal(t, b[i].Sign, out[i].Sign)
		assert.True(t, b[i].Row.Equal(out[i].Row), "row %d mismatch", i)
	}
}
