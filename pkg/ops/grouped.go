package ops

import (
	"fmt"
	"strings"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// Accumulator holds the per-group "reconstruction of the input multiset"
// spec.md §4.4 requires for concat-style aggregates, alongside the
// current aggregate Value.
type Accumulator interface {
	// Value returns the current aggregate.
	Value() value.Value
	// Add folds row (the full input row) into the accumulator.
	Add(row value.Row, col int)
	// Remove undoes a prior Add of an equal row. It reports an error,
	// which the caller treats as a DataError (spec.md §7), when there is
	// nothing to cancel: GroupConcat when no member has row's value, Count
	// and Sum (which keep only a member count) when the group is empty.
	Remove(row value.Row, col int) error
	// Empty reports whether the group currently has zero members.
	Empty() bool
}

// Aggregator constructs a fresh Accumulator for a new group.
type Aggregator interface {
	NewAccumulator() Accumulator
	Name() string
}

// --- Count -----------------------------------------------------------

type countAcc struct{ n int64 }

func (a *countAcc) Value() value.Value { return value.Int(a.n) }
func (a *countAcc) Add(value.Row, int) { a.n++ }
func (a *countAcc) Remove(value.Row, int) error {
	if a.n == 0 {
		return errEmptyGroup
	}
	a.n--
	return nil
}
func (a *countAcc) Empty() bool { return a.n == 0 }

// CountAggregator implements COUNT(*) over a group.
type CountAggregator struct{}

func (CountAggregator) NewAccumulator() Accumulator { return &countAcc{} }
func (CountAggregator) Name() string                { return "count" }

// --- Sum ---------------------------------------------------------------

type sumAcc struct {
	n   int
	sum float64
}

func (a *sumAcc) Value() value.Value { return value.Float(a.sum) }
func (a *sumAcc) Add(row value.Row, col int) {
	a.n++
	a.sum += numeric(row, col)
}
func (a *sumAcc) Remove(row value.Row, col int) error {
	if a.n == 0 {
		return errEmptyGroup
	}
	a.n--
	a.sum -= numeric(row, col)
	return nil
}
func (a *sumAcc) Empty() bool { return a.n == 0 }

func numeric(row value.Row, col int) float64 {
	if col < 0 || col >= len(row) {
		return 0
	}
	v := row[col]
	switch v.Kind() {
	case value.KindInt, value.KindTimestamp:
		return float64(v.Int64())
	case value.KindFloat:
		return v.Float64()
	default:
		return 0
	}
}

// SumAggregator implements SUM(col) over a group.
type SumAggregator struct{ Column int }

func (s SumAggregator) NewAccumulator() Accumulator { return &sumAcc{} }
func (s SumAggregator) Name() string                { return "sum" }

// --- GroupConcat ---------------------------------------------------------

type concatAcc struct {
	sep     string
	members []string
}

func (a *concatAcc) Value() value.Value { return value.Text(strings.Join(a.members, a.sep)) }

func (a *concatAcc) Add(row value.Row, col int) {
	a.members = append(a.members, cellString(row, col))
}

func (a *concatAcc) Remove(row value.Row, col int) error {
	s := cellString(row, col)
	for i, m := range a.members {
		if m == s {
			a.members = append(a.members[:i], a.members[i+1:]...)
			return nil
		}
	}
	return errEmptyGroup
}

func (a *concatAcc) Empty() bool { return len(a.members) == 0 }

func cellString(row value.Row, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col].String()
}

// GroupConcatAggregator implements GROUP_CONCAT(col, sep).
type GroupConcatAggregator struct {
	Column    int
	Separator string
}

func (g GroupConcatAggregator) NewAccumulator() Accumulator {
	return &concatAcc{sep: g.Separator}
}
func (g GroupConcatAggregator) Name() string { return "group_concat" }

var errEmptyGroup = fmt.Errorf("ops: negative record has no matching member in group")

// --- Grouped kernel ------------------------------------------------------

// Grouped is the stateful grouped/aggregate kernel of spec.md §4.4: keyed
// by GroupCols, it loads the current aggregate for a group, applies the
// positive/negative diff to its private reconstruction of the group's
// input multiset, and emits the -old/+new aggregate pair (or the
// single-sided initial/empty-group cases).
type Grouped struct {
	Parent    graph.NodeIndex
	GroupCols []int
	AggColumn int
	Agg       Aggregator
	Partial   bool

	self   graph.NodeIndex
	groups map[value.Key]Accumulator
}

func (g *Grouped) OnConnected(gr *graph.Graph, self graph.NodeIndex) {
	g.self = self
	if g.groups == nil {
		g.groups = make(map[value.Key]Accumulator)
	}
}

func (g *Grouped) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if to, ok := remap[g.Parent]; ok {
		g.Parent = to
	}
}

func (g *Grouped) groupRow(key value.Row, agg value.Value) value.Row {
	out := make(value.Row, len(key)+1)
	copy(out, key)
	out[len(key)] = agg
	return out
}

// OnInput implements the per-diff aggregate update. Presence of a key in
// g.groups doubles as its "filled" marker (spec.md §4.2's filled/hole
// distinction, applied to this kernel's private aux-store instead of a
// declared state index): a partial kernel that has never seen (or has
// forgotten, via Forget) a group treats an incoming diff for it as a
// Miss on its own node rather than silently starting from zero.
func (g *Grouped) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	var out record.Batch
	var misses []Miss

	for _, r := range data {
		key := r.Row.Project(g.GroupCols)
		k := value.MakeKey(r.Row, g.GroupCols)

		acc, ok := g.groups[k]
		if !ok && g.Partial {
			misses = append(misses, Miss{Node: g.self, Columns: g.GroupCols, Key: key})
			continue
		}

		firstTime := !ok
		if !ok {
			acc = g.Agg.NewAccumulator()
			g.groups[k] = acc
		}

		oldVal := acc.Value()
		var dataErr error
		if r.IsPositive() {
			acc.Add(r.Row, g.AggColumn)
		} else {
			dataErr = acc.Remove(r.Row, g.AggColumn)
		}
		if dataErr != nil {
			// malformed diff (spec.md §7 DataError): no matching member
			// to cancel. Drop the record, leave the group unchanged.
			continue
		}
		newVal := acc.Value()

		switch {
		case firstTime:
			out = append(out, record.NewPositive(g.groupRow(key, newVal)))
		case acc.Empty():
			out = append(out, record.NewNegative(g.groupRow(key, oldVal)))
			delete(g.groups, k)
		default:
			out = append(out, record.NewNegative(g.groupRow(key, oldVal)))
			out = append(out, record.NewPositive(g.groupRow(key, newVal)))
		}
	}
	return Result{Records: out, Misses: misses}
}

// Forget evicts a group's private aux-state. Nothing in this module calls
// it: evicting this node's materialized state (spec.md §4.8) does not
// reach the aux-state.
func (g *Grouped) Forget(key value.Row) {
	delete(g.groups, value.MakeKey(key, indicesUpTo(len(g.GroupCols))))
}

func indicesUpTo(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Fill seeds a group's aux-state from replayed member rows and marks it
// filled, implementing the "upgrade to replay" path of spec.md §4.4.
func (g *Grouped) Fill(key value.Row, members record.Batch) {
	k := value.MakeKey(key, indicesUpTo(len(g.GroupCols)))
	acc := g.Agg.NewAccumulator()
	for _, m := range members {
		if m.IsPositive() {
			acc.Add(m.Row, g.AggColumn)
		}
	}
	g.groups[k] = acc
}

func (g *Grouped) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int {
	return map[graph.NodeIndex][][]int{self: {g.GroupCols}}
}

func (g *Grouped) Resolve(col int) []Ancestor {
	if col < len(g.GroupCols) {
		return []Ancestor{{Node: g.Parent, Column: g.GroupCols[col]}}
	}
	return nil // the aggregate column is generated
}

func (g *Grouped) Description() string {
	return fmt.Sprintf("%s(group=%v)", g.Agg.Name(), g.GroupCols)
}
