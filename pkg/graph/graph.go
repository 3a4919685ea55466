// Package graph models the dataflow graph as an arena of nodes with
// adjacency lists of indices (spec.md §9's "Patterns requiring
// re-architecture": no pointer cycles, the executor uses local indices
// only).
package graph

import "fmt"

// NodeIndex is an opaque graph-wide node identifier.
type NodeIndex uint64

// LocalNodeIndex is a domain-local node identifier, used as the state map
// key within a single domain.
type LocalNodeIndex uint32

func (n NodeIndex) String() string      { return fmt.Sprintf("n%d", uint64(n)) }
func (n LocalNodeIndex) String() string { return fmt.Sprintf("ln%d", uint32(n)) }

// Kind discriminates the operator node variants of spec.md §3.
type Kind uint8

const (
	KindSource Kind = iota
	KindBase
	KindIngress
	KindEgress
	KindSharder
	KindReader
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindBase:
		return "base"
	case KindIngress:
		return "ingress"
	case KindEgress:
		return "egress"
	case KindSharder:
		return "sharder"
	case KindReader:
		return "reader"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Column describes one column of a node's input schema.
type Column struct {
	Name string
	// Kind mirrors value.Kind but graph does not depend on package value
	// to avoid an import cycle with kernels that import graph; callers
	// use value.Kind(Column.Kind) when needed.
	Kind uint8
}

// Schema is the ordered column list of a node.
type Schema []Column

// Node is one vertex of the dataflow graph.
type Node struct {
	Index    NodeIndex
	Local    LocalNodeIndex
	Domain   uint32
	Name     string
	Kind     Kind
	Schema   Schema
	Indexes  [][]int // declared index column sets for stateful kinds
	Partial  bool
	Children []NodeIndex // same-domain successors only, per spec.md §3
	Parents  []NodeIndex
}

// IsStateful reports whether a node kind ever owns materialized state.
func (n *Node) IsStateful() bool {
	switch n.Kind {
	case KindIngress, KindReader, KindInternal:
		return true
	default:
		return false
	}
}

// Graph is the arena of nodes plus adjacency, built once per migration
// generation and frozen thereafter (spec.md §3's Lifecycle invariant:
// "edges do not change thereafter for a given generation").
type Graph struct {
	nodes map[NodeIndex]*Node
	next  NodeIndex
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeIndex]*Node)}
}

// AddNode allocates a new node and returns its index.
func (g *Graph) AddNode(name string, kind Kind, schema Schema) *Node {
	idx := g.next
	g.next++
	n := &Node{Index: idx, Name: name, Kind: kind, Schema: schema}
	g.nodes[idx] = n
	return n
}

// AddEdge records a directed edge; if src and dst share a domain, dst is
// appended to src's local Children list (spec.md §3: "child list
// restricted to same-domain successors for local dispatch").
func (g *Graph) AddEdge(src, dst NodeIndex) {
	s, d := g.nodes[src], g.nodes[dst]
	if s == nil || d == nil {
		return
	}
	d.Parents = append(d.Parents, src)
	if s.Domain == d.Domain {
		s.Children = append(s.Children, dst)
	}
}

// Node returns the node at idx, or nil.
func (g *Graph) Node(idx NodeIndex) *Node { return g.nodes[idx] }

// Parents returns the direct ancestors of idx.
func (g *Graph) Parents(idx NodeIndex) []NodeIndex {
	if n := g.nodes[idx]; n != nil {
		return n.Parents
	}
	return nil
}

// Len reports the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Freeze is a no-op marker call sites use to document that a generation's
// topology is now immutable; kept explicit rather than implicit because
// spec.md's Lifecycle invariant is a correctness requirement, not just
// documentation.
func (g *Graph) Freeze() {}
