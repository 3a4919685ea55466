package ops

import (
	"fmt"
	"sort"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// topKEntry is one member of a group's bounded sorted set, tracking the
// member's own multiplicity so that two equal-sorting rows are still
// distinct members (a later negative must cancel the correct occurrence).
type topKEntry struct {
	row   value.Row
	count int
}

// topKGroup is the private per-group bookkeeping a TopK kernel keeps,
// mirroring Grouped's presence-as-filled-marker convention.
type topKGroup struct {
	members []topKEntry // sorted by the kernel's Less, best first
}

// TopK maintains a bounded sorted set per group (spec.md §4.4's Top-K /
// Order kernel): members beyond K are held out of the emitted output, and
// evicting a member from the top-K set on a remove/demote emits a
// negative for it, same as Grouped's −old/+new emission pattern.
type TopK struct {
	Parent    graph.NodeIndex
	GroupCols []int
	SortCol   int
	Desc      bool
	K         int
	Partial   bool

	self   graph.NodeIndex
	groups map[value.Key]*topKGroup
}

func (t *TopK) OnConnected(g *graph.Graph, self graph.NodeIndex) {
	t.self = self
	if t.groups == nil {
		t.groups = make(map[value.Key]*topKGroup)
	}
}

func (t *TopK) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if to, ok := remap[t.Parent]; ok {
		t.Parent = to
	}
}

// less reports whether a ranks ahead of (belongs closer to the top than) b.
func (t *TopK) less(a, b value.Row) bool {
	c := value.Compare(a[t.SortCol], b[t.SortCol])
	if t.Desc {
		return c > 0
	}
	return c < 0
}

func (t *TopK) insertSorted(g *topKGroup, row value.Row) {
	i := sort.Search(len(g.members), func(i int) bool {
		return t.less(row, g.members[i].row) || row.Equal(g.members[i].row)
	})
	if i < len(g.members) && g.members[i].row.Equal(row) {
		g.members[i].count++
		return
	}
	g.members = append(g.members, topKEntry{})
	copy(g.members[i+1:], g.members[i:])
	g.members[i] = topKEntry{row: row, count: 1}
}

func (t *TopK) removeFromSorted(g *topKGroup, row value.Row) bool {
	for i := range g.members {
		if g.members[i].row.Equal(row) {
			g.members[i].count--
			if g.members[i].count <= 0 {
				g.members = append(g.members[:i], g.members[i+1:]...)
			}
			return true
		}
	}
	return false
}

func (t *TopK) topRows(g *topKGroup) []value.Row {
	n := t.K
	if n > len(g.members) {
		n = len(g.members)
	}
	out := make([]value.Row, n)
	for i := 0; i < n; i++ {
		out[i] = g.members[i].row
	}
	return out
}

func containsRow(rows []value.Row, row value.Row) bool {
	for _, r := range rows {
		if r.Equal(row) {
			return true
		}
	}
	return false
}

// OnInput updates each affected group's sorted member set and diffs the
// visible top-K window before and after the change, emitting exactly the
// rows that entered or left the window (a member shifting position
// within the window produces no output).
func (t *TopK) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	touched := make(map[value.Key][]value.Row)
	var misses []Miss

	for _, r := range data {
		key := r.Row.Project(t.GroupCols)
		k := value.MakeKey(r.Row, t.GroupCols)

		g, ok := t.groups[k]
		if !ok && t.Partial {
			misses = append(misses, Miss{Node: t.self, Columns: t.GroupCols, Key: key})
			continue
		}
		if !ok {
			g = &topKGroup{}
			t.groups[k] = g
		}

		if _, seen := touched[k]; !seen {
			touched[k] = t.topRows(g)
		}

		if r.IsPositive() {
			t.insertSorted(g, r.Row)
		} else if !t.removeFromSorted(g, r.Row) {
			continue // DataError (spec.md §7): no matching member to cancel
		}
	}

	var out record.Batch
	for k, before := range touched {
		g := t.groups[k]
		after := t.topRows(g)
		for _, row := range before {
			if !containsRow(after, row) {
				out = append(out, record.NewNegative(row))
			}
		}
		for _, row := range after {
			if !containsRow(before, row) {
				out = append(out, record.NewPositive(row))
			}
		}
	}
	return Result{Records: out, Misses: misses}
}

// Forget evicts a group's private sorted-set state, mirroring Grouped.Forget.
func (t *TopK) Forget(key value.Row) {
	delete(t.groups, value.MakeKey(key, indicesUpTo(len(t.GroupCols))))
}

func (t *TopK) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int {
	return map[graph.NodeIndex][][]int{self: {t.GroupCols}}
}

func (t *TopK) Resolve(col int) []Ancestor {
	return []Ancestor{{Node: t.Parent, Column: col}}
}

func (t *TopK) Description() string {
	return fmt.Sprintf("topk[%d](group=%v, sort=%d)", t.K, t.GroupCols, t.SortCol)
}
