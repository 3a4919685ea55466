package ops

import (
	"fmt"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// CompareOp is a comparison operator used by a Compare predicate leaf.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Predicate is a small recursive boolean expression tree evaluated
// directly against a row (no bytecode compilation — out of scope per
// spec.md's SQL-completeness non-goal).
type Predicate interface {
	eval(row value.Row) bool
	String() string
}

// Compare is a predicate leaf: row[Column] `Op` Literal.
type Compare struct {
	Column  int
	Op      CompareOp
	Literal value.Value
}

func (c Compare) eval(row value.Row) bool {
	if c.Column < 0 || c.Column >= len(row) {
		return false
	}
	cmp := value.Compare(row[c.Column], c.Literal)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}

func (c Compare) String() string {
	ops := map[CompareOp]string{OpEq: "=", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}
	return fmt.Sprintf("col%d %s %s", c.Column, ops[c.Op], c.Literal.String())
}

// And is a conjunction of predicates.
type And []Predicate

func (a And) eval(row value.Row) bool {
	for _, p := range a {
		if !p.eval(row) {
			return false
		}
	}
	return true
}
func (a And) String() string { return joinPreds(a, "AND") }

// Or is a disjunction of predicates.
type Or []Predicate

func (o Or) eval(row value.Row) bool {
	for _, p := range o {
		if p.eval(row) {
			return true
		}
	}
	return false
}
func (o Or) String() string { return joinPreds(o, "OR") }

// Not negates a predicate.
type Not struct{ Inner Predicate }

func (n Not) eval(row value.Row) bool { return !n.Inner.eval(row) }
func (n Not) String() string          { return "NOT " + n.Inner.String() }

func joinPreds(ps []Predicate, op string) string {
	s := ""
	for i, p := range ps {
		if i > 0 {
			s += " " + op + " "
		}
		s += p.String()
	}
	return s
}

// Filter drops rows that do not satisfy Pred. It is stateless.
type Filter struct {
	Parent graph.NodeIndex
	Pred   Predicate
}

func (f *Filter) OnConnected(g *graph.Graph, self graph.NodeIndex) {}
func (f *Filter) OnCommit(remap map[graph.NodeIndex]graph.NodeIndex) {
	if to, ok := remap[f.Parent]; ok {
		f.Parent = to
	}
}

func (f *Filter) OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result {
	out := make(record.Batch, 0, len(data))
	for _, r := range data {
		if f.Pred.eval(r.Row) {
			out = append(out, r)
		}
	}
	return Result{Records: out}
}

func (f *Filter) SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int { return nil }

func (f *Filter) Resolve(col int) []Ancestor {
	return []Ancestor{{Node: f.Parent, Column: col}}
}

func (f *Filter) Description() string {
	return fmt.Sprintf("σ[%s]", f.Pred.String())
}
