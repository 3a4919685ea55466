package ops

import (
	"fmt"
	"sort"
	"strings"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
)

// Union emits the projection of each incoming record per its source's
// emit list; it holds no state. A key present in more than one source
// appears once per contributing source — union is multiset, not set
// (spec.md §8 scenario 6).
type Union struct {
	Emit map[graph.NodeIndex][]int
}

func (u *Union) OnConnected(g *graph.Graph, self graph.NodeIndex) {}

func (u *Union) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if len(remap) == 0 {
		return
	}
	next := make(map[graph.NodeIndex][]int, len(u.Emit))
	for from, cols := range u.Emit {
		to := from
		if mapped, ok := remap[from]; ok {
			to = mapped
		}
		next[to] = cols
	}
	u.Emit = next
}

func (u *Union) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	cols, ok := u.Emit[from]
	if !ok {
		return Result{}
	}
	out := make(record.Batch, len(data))
	for i, r := range data {
		out[i] = r.WithRow(r.Row.Project(cols))
	}
	return Result{Records: out}
}

func (u *Union) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int { return nil }

// Resolve returns all ancestors, one per source, since a union's output
// column is determined independently by every source (spec.md §4.9:
// "Union resolves to all ancestors (one row per ancestor)").
func (u *Union) Resolve(col int) []Ancestor {
	out := make([]Ancestor, 0, len(u.Emit))
	for src, cols := range u.Emit {
		if col < len(cols) {
			out = append(out, Ancestor{Node: src, Column: cols[col]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

func (u *Union) Description() string {
	parts := make([]string, 0, len(u.Emit))
	for src, cols := range u.Emit {
		parts = append(parts, fmt.Sprintf("%v:%v", src, cols))
	}
	sort.Strings(parts)
	return "∪[" + strings.Join(parts, "; ") + "]"
}
