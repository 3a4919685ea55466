// Package state implements per-node materialization: a keyed mapping from
// (index-columns, key-tuple) to a multiset of rows, with the partial-hole
// semantics of spec.md §3/§4.2. A state is either full (holds every row
// that has ever flowed through) or partial (holds rows only for keys
// explicitly filled by a replay; unfilled keys are holes).
package state

import (
	"math/rand"

	"github.com/zeebo/errs"

	"storj.io/flowdb/pkg/value"
)

// Class classifies state-layer errors for spec.md §7's error taxonomy.
var Class = errs.Class("state")

// ErrRowAbsent is returned by Remove when the row is not present at a
// filled key (spec.md §3 invariant: "Negative records may only be applied
// to rows that currently exist").
var ErrRowAbsent = Class.New("row absent from state")

// LookupResult is the outcome of Lookup: either a hit carrying the
// multiset of rows for the key, or a hole (partial states only).
type LookupResult struct {
	Hit  bool
	Hole bool
	Rows []value.Row
}

// bucket is a multiset of rows for one key, tracking per-row counts so
// that a Negative record cancels exactly one matching Positive.
type bucket struct {
	rows   []value.Row
	counts []int
}

func (b *bucket) add(row value.Row) {
	for i, r := range b.rows {
		if r.Equal(row) {
			b.counts[i]++
			return
		}
	}
	b.rows = append(b.rows, row)
	b.counts = append(b.counts, 1)
}

// remove returns true if a matching row was found and decremented/removed.
func (b *bucket) remove(row value.Row) bool {
	for i, r := range b.rows {
		if r.Equal(row) {
			b.counts[i]--
			if b.counts[i] <= 0 {
				b.rows = append(b.rows[:i], b.rows[i+1:]...)
				b.counts = append(b.counts[:i], b.counts[i+1:]...)
			}
			return true
		}
	}
	return false
}

func (b *bucket) materialized() []value.Row {
	if b == nil {
		return nil
	}
	out := make([]value.Row, 0, len(b.rows))
	for i, r := range b.rows {
		for c := 0; c < b.counts[i]; c++ {
			out = append(out, r)
		}
	}
	return out
}

func (b *bucket) bytes() int64 {
	var n int64
	for i, r := range b.rows {
		n += int64(len(r)) * 16 * int64(b.counts[i])
	}
	return n
}

// index is one declared lookup index: a set of columns plus, for a
// partial state, which keys under those columns are currently filled.
type index struct {
	columns []int
	buckets map[value.Key]*bucket
	filled  map[value.Key]struct{} // nil when the owning state is full
}

func newIndex(columns []int, partial bool) *index {
	idx := &index{columns: columns, buckets: make(map[value.Key]*bucket)}
	if partial {
		idx.filled = make(map[value.Key]struct{})
	}
	return idx
}

func (ix *index) key(row value.Row) value.Key { return value.MakeKey(row, ix.columns) }

func (ix *index) isHole(k value.Key) bool {
	if ix.filled == nil { // full state: never a hole
		return false
	}
	_, ok := ix.filled[k]
	return !ok
}

// State is a per-node materialization, holding one or more declared
// indexes over the same underlying rows.
type State struct {
	partial bool
	indexes []*index
	bytes   int64
}

// New creates a state over the given declared index column sets. partial
// selects whether the state starts with every key a hole (true) or
// behaves as a full state that materializes everything written to it
// (false), per spec.md §3.
func New(indexColumns [][]int, partial bool) *State {
	s := &State{partial: partial}
	for _, cols := range indexColumns {
		s.indexes = append(s.indexes, newIndex(cols, partial))
	}
	if len(s.indexes) == 0 {
		s.indexes = append(s.indexes, newIndex(nil, partial))
	}
	return s
}

// IsPartial reports whether this is a partial state.
func (s *State) IsPartial() bool { return s.partial }

// Bytes reports the estimated memory footprint, used by the eviction
// worker's byte-weighted node selection (spec.md §4.8).
func (s *State) Bytes() int64 { return s.bytes }

// HoleColumns returns, for the given row, the declared index (by its
// position in indexColumns) whose key is currently a hole, or -1 if none
// is. This implements spec.md §4.2's "Hole detection during write".
func (s *State) HoleColumns(row value.Row) int {
	if !s.partial {
		return -1
	}
	for i, ix := range s.indexes {
		if ix.isHole(ix.key(row)) {
			return i
		}
	}
	return -1
}

// Insert applies a positive record to every declared index bucket. For a
// full state this always materializes the row. For a partial state, a
// regular write (isReplay false) is dropped for any key that is a hole in
// any declared index; a replay write (isReplay true) inserts only into the
// buckets for keys already filled by that replay (the caller is
// responsible for having called MarkFilled first).
func (s *State) Insert(row value.Row, isReplay bool) (dropped bool) {
	if s.partial && !isReplay {
		if s.HoleColumns(row) >= 0 {
			return true
		}
	}
	for _, ix := range s.indexes {
		k := ix.key(row)
		if s.partial && ix.isHole(k) {
			// replay into a still-unfilled index: caller must mark filled
			// first (spec.md §4.7 step 5); until then, skip this bucket
			// rather than materializing into a hole.
			continue
		}
		b, ok := ix.buckets[k]
		if !ok {
			b = &bucket{}
			ix.buckets[k] = b
		}
		before := b.bytes()
		b.add(row)
		s.bytes += b.bytes() - before
	}
	return false
}

// Remove applies a negative record: it removes one occurrence from each
// declared index bucket where the key is present. It returns
// ErrRowAbsent if the row is absent from a filled key in a partial state
// (spec.md §3 invariant), matching the full-state case too since a
// missing row there is equally a caller bug.
func (s *State) Remove(row value.Row) error {
	var missing bool
	for _, ix := range s.indexes {
		k := ix.key(row)
		if s.partial && ix.isHole(k) {
			continue // nothing to remove from an unfilled key
		}
		b, ok := ix.buckets[k]
		if !ok {
			missing = true
			continue
		}
		before := b.bytes()
		if !b.remove(row) {
			missing = true
		}
		s.bytes += b.bytes() - before
	}
	if missing {
		return ErrRowAbsent
	}
	return nil
}

// Lookup queries the declared index at position idx for key. Hole is only
// ever returned by partial states (spec.md §4.2).
func (s *State) Lookup(idx int, key value.Key) LookupResult {
	ix := s.indexes[idx]
	if ix.isHole(key) {
		return LookupResult{Hole: true}
	}
	b := ix.buckets[key]
	return LookupResult{Hit: true, Rows: b.materialized()}
}

// LookupRow is a convenience that derives the key from a row's columns
// under the declared index.
func (s *State) LookupRow(idx int, row value.Row) LookupResult {
	return s.Lookup(idx, s.indexes[idx].key(row))
}

// MarkFilled transitions key from Hole to Hit(empty) on the index at idx.
// Per spec.md §3, a key is filled by exactly one successful replay;
// calling this twice for the same key is an idempotent no-op.
func (s *State) MarkFilled(idx int, key value.Key) {
	ix := s.indexes[idx]
	if ix.filled == nil {
		return
	}
	if _, already := ix.filled[key]; already {
		return
	}
	ix.filled[key] = struct{}{}
	if _, ok := ix.buckets[key]; !ok {
		ix.buckets[key] = &bucket{}
	}
}

// IsFilled reports whether key is currently filled on the index at idx.
func (s *State) IsFilled(idx int, key value.Key) bool {
	ix := s.indexes[idx]
	if ix.filled == nil {
		return true
	}
	_, ok := ix.filled[key]
	return ok
}

// MarkHole transitions key back to Hole on the index at idx and discards
// its materialized rows, used by eviction (spec.md §4.2).
func (s *State) MarkHole(idx int, key value.Key) (bytesFreed int64) {
	ix := s.indexes[idx]
	if ix.filled == nil {
		return 0
	}
	if b, ok := ix.buckets[key]; ok {
		bytesFreed = b.bytes()
		delete(ix.buckets, key)
		s.bytes -= bytesFreed
	}
	delete(ix.filled, key)
	return bytesFreed
}

// FilledKeys returns the currently filled keys on the index at idx, for
// eviction sampling and tests. Only meaningful for partial states.
func (s *State) FilledKeys(idx int) []value.Key {
	ix := s.indexes[idx]
	if ix.filled == nil {
		return nil
	}
	keys := make([]value.Key, 0, len(ix.filled))
	for k := range ix.filled {
		keys = append(keys, k)
	}
	return keys
}

// EvictKeys picks keys by uniform-random sampling over filled keys on the
// index at idx and marks them holes, returning the bytes freed and the
// evicted keys. LRU is deliberately not used: spec.md §4.2/§9 commits to
// randomized eviction to avoid per-key metadata overhead and cache
// pathologies.
func (s *State) EvictKeys(idx int, n int) (bytesFreed int64, evicted []value.Key) {
	keys := s.FilledKeys(idx)
	if n > len(keys) {
		n = len(keys)
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	evicted = keys[:n]
	for _, k := range evicted {
		bytesFreed += s.MarkHole(idx, k)
	}
	return bytesFreed, evicted
}

// NumIndexes reports how many declared indexes this state tracks.
func (s *State) NumIndexes() int { return len(s.indexes) }
