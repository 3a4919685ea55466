package ops

import (
	"fmt"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// JoinSide names which parent an emitted column comes from.
type JoinSide struct {
	Node   graph.NodeIndex
	Column int
}

// Join is a 2-way inner or left join, grounded on
// original_source/src/ops/join.rs's Joiner (emit list + per-side join
// columns), generalized from the original's hardcoded two views to a
// named left/right pair with an explicit StateView lookup instead of a
// direct state/domain borrow.
type Join struct {
	Left, Right         graph.NodeIndex
	LeftCols, RightCols []int // join columns, paired index-for-index
	Outer               bool  // true => LEFT JOIN semantics
	Emit                []JoinSide

	// LeftIndex/RightIndex are this join's declared index positions on
	// the respective side's state, filled in by the domain at
	// PrepareState time and needed to call StateView.Lookup.
	LeftIndex, RightIndex int
}

func (j *Join) OnConnected(g *graph.Graph, self graph.NodeIndex) {}

func (j *Join) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if to, ok := remap[j.Left]; ok {
		j.Left = to
	}
	if to, ok := remap[j.Right]; ok {
		j.Right = to
	}
	for i := range j.Emit {
		if to, ok := remap[j.Emit[i].Node]; ok {
			j.Emit[i].Node = to
		}
	}
}

func (j *Join) otherSide(from graph.NodeIndex) (other graph.NodeIndex, fromCols, otherCols []int, otherIdx int, outerTriggerIsOther bool) {
	if from == j.Left {
		return j.Right, j.LeftCols, j.RightCols, j.RightIndex, true
	}
	return j.Left, j.RightCols, j.LeftCols, j.LeftIndex, false
}

func (j *Join) emitRow(from graph.NodeIndex, fromRow value.Row, other graph.NodeIndex, otherRow value.Row, matched bool) value.Row {
	out := make(value.Row, len(j.Emit))
	for i, e := range j.Emit {
		switch {
		case e.Node == from:
			out[i] = fromRow[e.Column]
		case e.Node == other && matched:
			out[i] = otherRow[e.Column]
		default:
			out[i] = value.Null
		}
	}
	return out
}

// OnInput implements spec.md §4.4's join semantics: for each incoming
// record from side `from`, look up the other side's state on the join
// key; a Hole yields a Miss keyed on the side that was looked up. The
// side is not chosen by outer-ness: a left join fed from the left misses
// on the right, and a left join fed from the right misses on the left
// (outer) side when that side's key is a hole.
func (j *Join) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	other, fromCols, _, otherIdx, fromIsLeft := j.otherSide(from)
	_ = fromIsLeft

	var out record.Batch
	var misses []Miss
	for _, r := range data {
		key := r.Row.Project(fromCols)
		res := view.Lookup(other, otherIdx, key)
		if res.Hole {
			misses = append(misses, Miss{Node: other, Columns: otherIdxCols(j, other), Key: key})
			continue
		}
		if len(res.Rows) == 0 {
			if j.Outer && from == j.Left {
				row := j.emitRow(from, r.Row, other, nil, false)
				out = append(out, r.WithRow(row))
			}
			// inner join (or left join fed from the right with no
			// match): no output for this input record.
			continue
		}
		// stable order: iterate res.Rows in the order state returns them
		// (insertion order), so negative propagation finds its twin.
		for _, otherRow := range res.Rows {
			row := j.emitRow(from, r.Row, other, otherRow, true)
			out = append(out, r.WithRow(row))
		}
	}
	return Result{Records: out, Misses: misses}
}

func otherIdxCols(j *Join, other graph.NodeIndex) []int {
	if other == j.Left {
		return j.LeftCols
	}
	return j.RightCols
}

func (j *Join) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int {
	return map[graph.NodeIndex][][]int{
		j.Left:  {j.LeftCols},
		j.Right: {j.RightCols},
	}
}

func (j *Join) Resolve(col int) []Ancestor {
	if col >= len(j.Emit) {
		return nil
	}
	e := j.Emit[col]
	return []Ancestor{{Node: e.Node, Column: e.Column}}
}

func (j *Join) Description() string {
	op := "⋈"
	if j.Outer {
		op = "⋉"
	}
	return fmt.Sprintf("[%v %s %v]", j.Left, op, j.Right)
}
