// Package ops implements the stateless and stateful operator kernels of
// spec.md §4.4: Identity, Project, Filter, Union, Join, Grouped/Aggregate,
// and TopK. Each kernel is a plain struct implementing Kernel directly —
// no virtual dispatch through an abstract base, per spec.md §9's redesign
// flag — and the domain executor invokes it through the Kernel interface.
package ops

import (
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

// Miss is emitted by on_input when a lookup against another node's state
// hit a Hole; the domain executor turns this into a
// RequestPartialReplay and suppresses propagation of the record that
// missed (spec.md §4.6).
type Miss struct {
	Node    graph.NodeIndex
	Columns []int
	Key     value.Row
}

// Result is the outcome of processing one batch of input records.
type Result struct {
	Records record.Batch
	Misses  []Miss
}

// StateView lets a kernel look up another node's materialized state
// during on_input, without giving it direct access to the domain's
// internal bookkeeping.
type StateView interface {
	// Lookup returns the rows for key on the given node's declared index
	// idx, or reports a hole.
	Lookup(node graph.NodeIndex, idx int, key value.Row) state.LookupResult
}

// Kernel is implemented by every Internal operator node (spec.md §4.4).
type Kernel interface {
	// OnConnected is called once the graph is final for this migration
	// generation, letting the kernel cache ancestor schema information.
	OnConnected(g *graph.Graph, self graph.NodeIndex)
	// OnCommit lets the kernel fix up any node indices that were
	// remapped during migration planning.
	OnCommit(remap map[graph.NodeIndex]graph.NodeIndex)
	// OnInput processes a batch of records arriving from the given
	// upstream node.
	OnInput(from graph.NodeIndex, data record.Batch, view StateView) Result
	// SuggestIndexes reports, for each ancestor node, which column sets
	// this kernel will query by — used at migration time to decide
	// declared state indexes.
	SuggestIndexes(self graph.NodeIndex) map[graph.NodeIndex][][]int
	// Resolve returns the ancestor (node, column) pairs that determine
	// output column col, or nil if it is generated.
	Resolve(col int) []Ancestor
	// Description is a short human-readable summary, used in logs and
	// the engine's introspection surface.
	Description() string
}

// Ancestor names one (node, column) provenance target.
type Ancestor struct {
	Node   graph.NodeIndex
	Column int
}

// GroupedStateLost names the condition where the prior aggregate for a
// group could not be found in state (e.g. after eviction), spec.md
// §4.4's "Key invariant for grouped operators". No kernel returns this
// type: Grouped and TopK report the condition as an ordinary Miss whose
// Node is their own index, which the domain and the replay manager
// handle like any other miss.
type GroupedStateLost struct {
	Key value.Row
}

func (GroupedStateLost) Error() string { return "grouped operator state lost for key" }
