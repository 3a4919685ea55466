// Package domain implements the single-threaded domain executor of
// spec.md §4.6: one dispatch loop per domain, a priority mailbox, and
// per-node processing grounded on
// original_source/src/flow/domain/single.rs's NodeDescriptor.process.
package domain

import (
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/ops"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/reader"
	"storj.io/flowdb/pkg/state"
)

// EgressRoute is one downstream target of an Egress or Sharder node: the
// global child node and the domain-local link destination at the
// child's domain. The channel itself is addressed indirectly, through
// the Domain's Outbox, since the wire transport (internal/channel) is a
// separate concern from routing.
type EgressRoute struct {
	Child graph.NodeIndex
	Dst   packet.LocalNodeIndex
}

// NodeDescriptor is the domain-local runtime wrapper around a
// *graph.Node: its kernel (Internal nodes), materialized state (Ingress/
// Internal/Reader nodes), and routing table (Egress/Sharder nodes).
// Grounded directly on
// original_source/src/flow/domain/single.rs's NodeDescriptor, generalized
// from a Rust enum-matched Node::Type to a Kind-tagged struct with
// optional fields per spec.md §9's redesign away from trait objects.
type NodeDescriptor struct {
	Node *graph.Node

	Kernel  ops.Kernel      // set only for Kind == KindInternal
	State   *state.State    // materialized state, for stateful kinds
	Backlog *reader.Backlog // set only for Kind == KindReader

	// Egress routing: a regular packet clones to every route but the
	// last, which takes the original (spec.md §4.5's broadcast rule); a
	// ReplayPiece looks up its single destination in TagRoute.
	Routes   []EgressRoute
	TagRoute map[packet.Tag]int // index into Routes

	// Sharder configuration (spec.md §4.5): partitions by a hash of
	// ShardColumn across ShardCount routes.
	ShardColumn int
	ShardCount  int
	Shards      []EgressRoute

	// StateIndexOf maps an ancestor node this descriptor's kernel may
	// look up (via ops.StateView) to which declared index position on
	// that ancestor's own State to query. Filled at PrepareState time,
	// since a kernel only knows columns, not index positions.
	StateIndexOf map[graph.NodeIndex]int
}

// isStateHolder reports whether this descriptor owns a State the
// dispatch loop should run hole-detection against for regular writes.
func (d *NodeDescriptor) isStateHolder() bool {
	return d.State != nil
}
