package value

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAcrossKinds(t *testing.T) {
	assert.True(t, Compare(Int(1), Int(2)) < 0)
	assert.True(t, Compare(Int(2), Int(1)) > 0)
	assert.Equal(t, 0, Compare(Int(1), Int(1)))
	assert.Equal(t, 0, Compare(Int(1), Float(1.0)))
	assert.True(t, Compare(Null, Int(1)) < 0)
	assert.Equal(t, 0, Compare(Null, Null))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Text("a"), Text("a")))
	assert.False(t, Equal(Text("a"), Text("b")))
	assert.False(t, Equal(Int(5), Float(5)), "byte equality: different kinds are never equal")
}

func TestBigIntRoundTrip(t *testing.T) {
	n := new(big.Int).SetInt64(-123456789012345)
	v := BigInt(n)
	assert.Equal(t, KindBigInt, v.Kind())
	assert.Equal(t, 0, n.Cmp(v.BigIntValue()))
}

func TestMarshalRoundTrip(t *testing.T) {
	values := []Value{
		Null,
		Int(42),
		Int(0),
		BigInt(new(big.Int).SetInt64(-99)),
		Float(3.5),
		Text("hello"),
		Timestamp(100),
		Time(time.Unix(1000, 0).UTC()),
	}
	for _, v := range values {
		data, err := v.Marshal()
		require.NoError(t, err)
		assert.Equal(t, v.Size(), len(data))

		var out Value
		require.NoError(t, out.Unmarshal(data))
		assert.True(t, Equal(v, out), "round trip mismatch for kind %v", v.Kind())
		assert.Equal(t, v.Kind(), out.Kind())
	}
}

func TestRowEqualAndProject(t *testing.T) {
	r := Row{Int(1), Text("a"), Float(2.5)}
	assert.True(t, r.Equal(r.Clone()))

	projected := r.Project([]int{2, 0})
	assert.Equal(t, Row{Float(2.5), Int(1)}, projected)

	outOfRange := r.Project([]int{5})
	assert.True(t, outOfRange[0].IsNull())
}

func TestMakeKeyDistinguishesColumns(t *testing.T) {
	a := Row{Int(1), Text("x")}
	b := Row{Int(1), Text("y")}
	assert.NotEqual(t, MakeKey(a, []int{0, 1}), MakeKey(b, []int{0, 1}))
	assert.Equal(t, MakeKey(a, []int{0}), MakeKey(b, []int{0}))
}
