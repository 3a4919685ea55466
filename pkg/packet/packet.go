// Package packet defines the closed set of packet variants that flow
// through the engine's domains (spec.md §4.1). Packet is a tagged-union
// interface with one struct per variant and an unexported marker method,
// matching the "tagged variant of kernel kinds" dispatch pattern mandated
// by spec.md §9 instead of virtual dispatch through an abstract base.
package packet

import "storj.io/flowdb/pkg/record"

// NodeIndex mirrors graph.NodeIndex without importing package graph, to
// keep packet free of a dependency on graph's node bookkeeping.
type NodeIndex uint64

// LocalNodeIndex mirrors graph.LocalNodeIndex.
type LocalNodeIndex uint32

// Tag identifies a pre-planned replay path (spec.md §4.7). Every node on
// the path knows its predecessor and successor for a given Tag.
type Tag uint32

// Link names the domain-local edge a packet travels: src is the node that
// emitted it, dst is the node it is headed for. A packet entering a domain
// has dst equal to that domain's ingress node (spec.md §4.1).
type Link struct {
	Src LocalNodeIndex
	Dst LocalNodeIndex
}

// Tracer is an explicit per-packet handle for tracing/span context,
// threaded by value instead of relying on thread-local ambient state
// (spec.md §9's redesign flag).
type Tracer struct {
	SpanID uint64
	Hook   func(event string)
}

func (t *Tracer) fire(event string) {
	if t != nil && t.Hook != nil {
		t.Hook(event)
	}
}

// Fire records a tracer event if a tracer is attached; safe to call on a
// nil *Tracer.
func (t *Tracer) Fire(event string) { t.fire(event) }

// Packet is the sum type of everything a domain mailbox can carry.
type Packet interface {
	isPacket()
	// Kind returns a short stable name for logging/metrics labels.
	Kind() string
}

// ReplayContext discriminates the two kinds of ReplayPiece payload
// (spec.md §4.1).
type ReplayContext interface {
	isReplayContext()
}

// PartialContext marks a ReplayPiece as filling a single key.
type PartialContext struct {
	ForKey record.Batch // carries the key as a one-column-tuple row when needed by callers
	Key    []byte       // serialized key this piece fills (value.Key bytes)
	Ignore bool
}

func (PartialContext) isReplayContext() {}

// RegularContext marks a ReplayPiece as a chunk of a full replay; Last
// marks the terminal chunk.
type RegularContext struct {
	Last bool
}

func (RegularContext) isReplayContext() {}

// Message is a regular update: data is a sequence of Records traveling
// downstream along Link.
type Message struct {
	Link   Link
	Data   record.Batch
	Tracer *Tracer
}

func (Message) isPacket()    {}
func (Message) Kind() string { return "message" }

// Input is an external write landing at a base table.
type Input struct {
	Link   Link
	Data   record.Batch
	Tracer *Tracer
	Token  []byte // opaque optimistic-concurrency ticket, echoed back verbatim
}

func (Input) isPacket()    {}
func (Input) Kind() string { return "input" }

// ReplayPiece carries rows for a specific Tag, either a single-key partial
// fill or a chunk of a full replay.
type ReplayPiece struct {
	Link    Link
	Tag     Tag
	Data    record.Batch
	Context ReplayContext
}

func (ReplayPiece) isPacket()    {}
func (ReplayPiece) Kind() string { return "replay_piece" }

// RequestPartialReplay asks an upstream node to fill a specific key along
// Tag.
type RequestPartialReplay struct {
	Link     Link
	Tag      Tag
	Key      []byte
	Unishard bool
}

func (RequestPartialReplay) isPacket()    {}
func (RequestPartialReplay) Kind() string { return "request_partial_replay" }

// RequestReaderReplay is a reader-originated miss: the client read missed
// in the reader backlog.
type RequestReaderReplay struct {
	Node LocalNodeIndex
	Cols []int
	Keys [][]byte
}

func (RequestReaderReplay) isPacket()    {}
func (RequestReaderReplay) Kind() string { return "request_reader_replay" }

// StartReplay begins a full replay of a node's state along Tag.
type StartReplay struct {
	Tag  Tag
	From LocalNodeIndex
}

func (StartReplay) isPacket()    {}
func (StartReplay) Kind() string { return "start_replay" }

// Finish terminates a full replay along Tag for node ni.
type Finish struct {
	Tag Tag
	NI  LocalNodeIndex
}

func (Finish) isPacket()    {}
func (Finish) Kind() string { return "finish" }

// Evict shrinks a partial state, either by an explicit key set or by a
// byte budget (spec.md §4.8).
type Evict struct {
	Node  LocalNodeIndex
	Keys  [][]byte
	Bytes int64
}

func (Evict) isPacket()    {}
func (Evict) Kind() string { return "evict" }

// Control packet variants (spec.md §4.1, §6).

type Ready struct{ Domain uint32 }

func (Ready) isPacket()    {}
func (Ready) Kind() string { return "ready" }

type AddNode struct {
	Node LocalNodeIndex
}

func (AddNode) isPacket()    {}
func (AddNode) Kind() string { return "add_node" }

type UpdateEgress struct {
	Egress LocalNodeIndex
	Tag    Tag
	Child  NodeIndex
}

func (UpdateEgress) isPacket()    {}
func (UpdateEgress) Kind() string { return "update_egress" }

type PrepareState struct {
	Node    LocalNodeIndex
	Indices [][]int
	Partial bool
}

func (PrepareState) isPacket()    {}
func (PrepareState) Kind() string { return "prepare_state" }

type SetupReplayPath struct {
	Tag     Tag
	Nodes   []LocalNodeIndex
	Trigger []int
}

func (SetupReplayPath) isPacket()    {}
func (SetupReplayPath) Kind() string { return "setup_replay_path" }

type Captured struct{}

func (Captured) isPacket()    {}
func (Captured) Kind() string { return "captured" }

type None struct{}

func (None) isPacket()    {}
func (None) Kind() string { return "none" }

// Priority buckets the mailbox scheduling order of spec.md §4.6:
// control > replay-ack > input-from-readers > regular.
type Priority int

const (
	PriorityRegular Priority = iota
	PriorityReaderInput
	PriorityReplayAck
	PriorityControl
)

// PriorityOf classifies a packet for mailbox ordering.
func PriorityOf(p Packet) Priority {
	switch p.(type) {
	case Ready, AddNode, UpdateEgress, PrepareState, SetupReplayPath, Captured:
		return PriorityControl
	case ReplayPiece, RequestPartialReplay, RequestReaderReplay, StartReplay, Finish, Evict:
		return PriorityReplayAck
	case Input:
		return PriorityReaderInput
	default:
		return PriorityRegular
	}
}
