package ops

import (
	"fmt"
	"strings"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// Project reorders and subsets a parent's columns, and may additionally
// append literal (generated) columns. It is stateless.
type Project struct {
	Parent   graph.NodeIndex
	Columns  []int // indices into the parent's row; may reorder/subset
	Literals []value.Value
}

func (p *Project) OnConnected(g *graph.Graph, self graph.NodeIndex) {}
func (p *Project) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if to, ok := remap[p.Parent]; ok {
		p.Parent = to
	}
}

func (p *Project) project(row value.Row) value.Row {
	out := make(value.Row, 0, len(p.Columns)+len(p.Literals))
	out = append(out, row.Project(p.Columns)...)
	out = append(out, p.Literals...)
	return out
}

func (p *Project) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	out := make(record.Batch, len(data))
	for i, r := range data {
		out[i] = r.WithRow(p.project(r.Row))
	}
	return Result{Records: out}
}

func (p *Project) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int { return nil }

func (p *Project) Resolve(col int) []Ancestor {
	if col < len(p.Columns) {
		return []Ancestor{{Node: p.Parent, Column: p.Columns[col]}}
	}
	// literal/generated column: resolves to None at every ancestor
	// (spec.md §4.9).
	return nil
}

func (p *Project) Description() string {
	cols := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		cols[i] = fmt.Sprintf("%d", c)
	}
	lits := make([]string, len(p.Literals))
	for i, l := range p.Literals {
		lits[i] = l.String()
	}
	return fmt.Sprintf("π[%s%s]", strings.Join(cols, ","), strings.Join(lits, ","))
}

// Identity passes every input record through unchanged. It is stateless
// and is just Project with the identity column mapping, kept as a
// distinct named kernel because migrations frequently insert it as a
// domain-boundary placeholder.
type Identity struct {
	Parent graph.NodeIndex
}

func (id *Identity) OnConnected(g *graph.Graph, self graph.NodeIndex) {}
func (id *Identity) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if to, ok := remap[id.Parent]; ok {
		id.Parent = to
	}
}
func (id *Identity) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	return Result{Records: data}
}
func (id *Identity) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int { return nil }
func (id *Identity) Resolve(col int) []Ancestor {
	return []Ancestor{{Node: id.Parent, Column: col}}
}
func (id *Identity) Description() string { return "≡" }
