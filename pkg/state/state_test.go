package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/flowdb/pkg/value"
)

func row(id int64, name string) value.Row {
	return value.Row{value.Int(id), value.Text(name)}
}

func TestFullStateInsertLookupRemove(t *testing.T) {
	s := New([][]int{{0}}, false)
	key := value.MakeKey(row(1, "a"), []int{0})

	dropped := s.Insert(row(1, "a"), false)
	assert.False(t, dropped)

	res := s.Lookup(0, key)
	require.True(t, res.Hit)
	assert.False(t, res.Hole)
	assert.Len(t, res.Rows, 1)

	require.NoError(t, s.Remove(row(1, "a")))
	res = s.Lookup(0, key)
	assert.Empty(t, res.Rows)

	assert.ErrorIs(t, s.Remove(row(1, "a")), ErrRowAbsent)
}

func TestPartialStateHoleUntilFilled(t *testing.T) {
	s := New([][]int{{0}}, true)
	key := value.MakeKey(row(1, "a"), []int{0})

	res := s.Lookup(0, key)
	assert.True(t, res.Hole)

	dropped := s.Insert(row(1, "a"), false)
	assert.True(t, dropped, "a regular write to an unfilled key must be dropped")

	s.MarkFilled(0, key)
	assert.True(t, s.IsFilled(0, key))

	dropped = s.Insert(row(1, "a"), true)
	assert.False(t, dropped, "a replay write fills the now-marked key")

	res = s.Lookup(0, key)
	require.True(t, res.Hit)
	assert.Len(t, res.Rows, 1)
}

func TestMarkHoleDiscardsRows(t *testing.T) {
	s := New([][]int{{0}}, true)
	key := value.MakeKey(row(1, "a"), []int{0})
	s.MarkFilled(0, key)
	s.Insert(row(1, "a"), true)

	freed := s.MarkHole(0, key)
	assert.Greater(t, freed, int64(0))

	res := s.Lookup(0, key)
	assert.True(t, res.Hole)
}

func TestEvictKeysBoundsToFilledCount(t *testing.T) {
	s := New([][]int{{0}}, true)
	for i := int64(0); i < 3; i++ {
		k := value.MakeKey(row(i, "x"), []int{0})
		s.MarkFilled(0, k)
	}
	_, evicted := s.EvictKeys(0, 10)
	assert.Len(t, evicted, 3)
	assert.Empty(t, s.FilledKeys(0))
}

func TestHoleColumnsOnlyForPartial(t *testing.T) {
	full := New([][]int{{0}}, false)
	assert.Equal(t, -1, full.HoleColumns(row(1, "a")))

	partial := New([][]int{{0}}, true)
	assert.Equal(t, 0, partial.HoleColumns(row(1, "a")))
}
