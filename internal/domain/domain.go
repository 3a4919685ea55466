package domain

import (
	"context"

	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/ops"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/reader"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

// Outbox hands a packet to whatever owns the wire-level send for a
// remote domain; internal/channel supplies the real implementation.
// Kept as an interface here so this package has no dependency on the
// transport layer.
type Outbox interface {
	Send(toDomain uint32, p packet.Packet)
}

// MissSink is notified of every kernel-reported Miss so the replay
// protocol (internal/replay's Manager) can turn it into a
// RequestPartialReplay along the tag registered for that node/column
// set. Left as an injected callback, rather than this package reaching
// into a tag registry directly, so the domain executor has no
// compile-time dependency on replay-path bookkeeping.
type MissSink interface {
	OnMiss(domain *Domain, from graph.NodeIndex, miss ops.Miss)
}

// ReplayHandler receives the four replay-control packet variants this
// package has no orchestration logic of its own for (spec.md §4.7);
// internal/replay implements it. Left as an injected callback for the
// same reason as MissSink: the executor dispatches packets, it does not
// own tag bookkeeping.
type ReplayHandler interface {
	OnRequestPartialReplay(d *Domain, p packet.RequestPartialReplay)
	OnRequestReaderReplay(d *Domain, p packet.RequestReaderReplay)
	OnStartReplay(d *Domain, p packet.StartReplay)
	OnFinish(d *Domain, p packet.Finish)
}

// Domain is the single-threaded executor of spec.md §4.6: one goroutine
// processes exactly one packet at a time from a priority Mailbox,
// dispatching it to the target NodeDescriptor and forwarding whatever
// that node produces to its children.
type Domain struct {
	ID      uint32
	Graph   *graph.Graph
	Nodes   map[graph.LocalNodeIndex]*NodeDescriptor
	LocalOf map[graph.NodeIndex]graph.LocalNodeIndex
	DomainOf map[graph.NodeIndex]uint32 // which domain owns a (possibly remote) node, for Outbox routing

	Mailbox *Mailbox
	Outbox  Outbox
	Misses  MissSink
	Replay  ReplayHandler
}

// New returns an empty Domain ready to have nodes registered via AddNode.
func New(id uint32, g *graph.Graph, mailboxCapacity int) *Domain {
	return &Domain{
		ID:       id,
		Graph:    g,
		Nodes:    make(map[graph.LocalNodeIndex]*NodeDescriptor),
		LocalOf:  make(map[graph.NodeIndex]graph.LocalNodeIndex),
		DomainOf: make(map[graph.NodeIndex]uint32),
		Mailbox:  NewMailbox(mailboxCapacity),
	}
}

// AddNode registers a node's runtime descriptor under its domain-local
// index.
func (d *Domain) AddNode(desc *NodeDescriptor) {
	d.Nodes[desc.Node.Local] = desc
	d.LocalOf[desc.Node.Index] = desc.Node.Local
	d.DomainOf[desc.Node.Index] = d.ID
}

// Run processes packets from the Mailbox until ctx is done or the
// Mailbox is closed. It is the domain's one executor goroutine: exactly
// one packet is ever in flight (spec.md §4.6's "cooperative, not
// preemptive" scheduling).
func (d *Domain) Run(ctx context.Context) {
	for {
		p, ok := d.Mailbox.Recv(ctx)
		if !ok {
			return
		}
		d.handle(ctx, p)
	}
}

func (d *Domain) handle(ctx context.Context, p packet.Packet) {
	switch m := p.(type) {
	case packet.Message:
		d.dispatchData(ctx, m.Link, m.Data, m.Tracer)
	case packet.Input:
		d.dispatchData(ctx, m.Link, m.Data, m.Tracer)
	case packet.ReplayPiece:
		d.dispatchReplay(ctx, m)
	case packet.Evict:
		d.handleEvict(m)
	case packet.PrepareState:
		d.handlePrepareState(m)
	case packet.RequestPartialReplay:
		if d.Replay != nil {
			d.Replay.OnRequestPartialReplay(d, m)
		}
	case packet.RequestReaderReplay:
		if d.Replay != nil {
			d.Replay.OnRequestReaderReplay(d, m)
		}
	case packet.StartReplay:
		if d.Replay != nil {
			d.Replay.OnStartReplay(d, m)
		}
	case packet.Finish:
		if d.Replay != nil {
			d.Replay.OnFinish(d, m)
		}
	case packet.AddNode, packet.Ready, packet.UpdateEgress, packet.SetupReplayPath, packet.Captured, packet.None:
		// UpdateEgress/SetupReplayPath name a (Tag, Child) route that only
		// the migration controller can resolve to a concrete
		// NodeDescriptor.Routes/TagRoute entry, since the controller is
		// the one party that knows every domain's local index assignment;
		// by the time one of these reaches a running Domain, AddNode has
		// already constructed that NodeDescriptor with routing filled in.
		// The remaining variants carry no per-domain state at all. This
		// case exists so Run's switch is exhaustive over every packet.Packet
		// variant.
	}
}

// dispatchData implements spec.md §4.6's dispatch algorithm for a
// regular Message/Input, including the batching step: it folds in every
// contiguous regular packet addressed to the same link before
// processing, to amortize state mutation cost.
func (d *Domain) dispatchData(ctx context.Context, link packet.Link, data record.Batch, tracer *packet.Tracer) {
	batch := append(record.Batch(nil), data...)
	for {
		next, ok := d.Mailbox.TryNextRegular()
		if !ok {
			break
		}
		msg, isMessage := next.(packet.Message)
		if !isMessage || msg.Link != link {
			// not part of this batch: stop batching and process it as its
			// own dispatch once this batch is done, preserving arrival order.
			defer d.handle(ctx, next)
			break
		}
		batch = append(batch, msg.Data...)
	}

	desc := d.Nodes[graph.LocalNodeIndex(link.Dst)]
	if desc == nil {
		return
	}
	tracer.Fire("process:" + desc.Node.Name)

	switch desc.Node.Kind {
	case graph.KindBase:
		d.processBase(desc, batch, nil)
	case graph.KindIngress:
		d.processIngress(desc, link, batch, nil)
	case graph.KindInternal:
		d.processInternal(desc, link, batch, nil)
	case graph.KindEgress:
		d.processEgress(desc, packet.Message{Link: link, Data: batch, Tracer: tracer})
	case graph.KindSharder:
		d.processSharder(desc, packet.Message{Link: link, Data: batch, Tracer: tracer})
	case graph.KindReader:
		d.processReader(desc, batch, false)
	}
}

// replayInfo carries the replay tag and (for a partial fill) the key
// being filled across a forward() hop, so a ReplayPiece keeps its
// identity as it crosses zero or more local stateless nodes on its way
// to the node that actually missed — without it, a second local hop
// would see a plain Message and treat a partial-state fill as an
// ordinary write, dropping it at any hole it still has (spec.md §4.7).
type replayInfo struct {
	Tag packet.Tag
	Key []byte // nil for a full-replay chunk; set for a single-key partial fill
}

// processBase materializes a write directly (a base table has no
// upstream to miss against) and forwards to local children unchanged.
func (d *Domain) processBase(desc *NodeDescriptor, batch record.Batch, replay *replayInfo) {
	if desc.State != nil {
		for _, r := range batch {
			if r.IsPositive() {
				desc.State.Insert(r.Row, replay != nil)
			} else {
				_ = desc.State.Remove(r.Row)
			}
		}
	}
	d.forward(desc, batch, replay)
}

// processIngress materializes an incoming cross-domain packet into
// local state if declared, then forwards to the ingress's local
// successors, per spec.md §4.5.
func (d *Domain) processIngress(desc *NodeDescriptor, link packet.Link, batch record.Batch, replay *replayInfo) {
	if desc.State != nil {
		for _, r := range batch {
			if r.IsPositive() {
				desc.State.Insert(r.Row, replay != nil)
			} else {
				_ = desc.State.Remove(r.Row)
			}
		}
	}
	d.forward(desc, batch, replay)
}

// processInternal runs the node's kernel, turns every reported Miss into
// a replay request via MissSink, and forwards only the records the
// kernel actually emitted (spec.md §4.6 step 3: "do not forward the
// record that missed").
func (d *Domain) processInternal(desc *NodeDescriptor, link packet.Link, batch record.Batch, replay *replayInfo) {
	view := &stateView{d: d, desc: desc}
	fromGlobal := d.globalOf(link.Src)
	result := desc.Kernel.OnInput(fromGlobal, batch, view)

	for _, miss := range result.Misses {
		if d.Misses != nil {
			d.Misses.OnMiss(d, desc.Node.Index, miss)
		}
	}

	if desc.State != nil {
		for _, r := range result.Records {
			if r.IsPositive() {
				desc.State.Insert(r.Row, replay != nil)
			} else {
				_ = desc.State.Remove(r.Row)
			}
		}
	}

	d.forward(desc, result.Records, replay)
}

// processEgress clones a regular message to every route but the last,
// which takes the original, and hands each off to Outbox for the
// owning remote domain (spec.md §4.5).
func (d *Domain) processEgress(desc *NodeDescriptor, m packet.Message) {
	if d.Outbox == nil || len(desc.Routes) == 0 {
		return
	}
	for i, route := range desc.Routes {
		out := packet.Message{Link: packet.Link{Src: m.Link.Src, Dst: route.Dst}, Data: m.Data, Tracer: m.Tracer}
		if i < len(desc.Routes)-1 {
			out.Data = append(record.Batch(nil), m.Data...)
		}
		d.Outbox.Send(d.DomainOf[route.Child], out)
	}
}

// processSharder partitions the batch by a hash of ShardColumn across
// ShardCount routes (spec.md §4.5).
func (d *Domain) processSharder(desc *NodeDescriptor, m packet.Message) {
	if d.Outbox == nil || len(desc.Shards) == 0 {
		return
	}
	byShard := make([]record.Batch, len(desc.Shards))
	for _, r := range m.Data {
		s := shardOf(r, desc.ShardColumn, len(desc.Shards))
		byShard[s] = append(byShard[s], r)
	}
	for i, route := range desc.Shards {
		if len(byShard[i]) == 0 {
			continue
		}
		out := packet.Message{Link: packet.Link{Src: m.Link.Src, Dst: route.Dst}, Data: byShard[i], Tracer: m.Tracer}
		d.Outbox.Send(d.DomainOf[route.Child], out)
	}
}

func shardOf(r record.Record, col int, n int) int {
	if col < 0 || col >= len(r.Row) || n <= 0 {
		return 0
	}
	k := value.MakeKey(r.Row, []int{col})
	var h uint32 = 2166136261
	for i := 0; i < len(k); i++ {
		h ^= uint32(k[i])
		h *= 16777619
	}
	return int(h % uint32(n))
}

// processReader updates the reader's write-side backlog; the domain's
// swap policy (batch boundary, since dispatchData already folded
// contiguous Messages together) applies the swap once per call.
func (d *Domain) processReader(desc *NodeDescriptor, batch record.Batch, isReplay bool) {
	if desc.Backlog == nil {
		return
	}
	records := make([]reader.Record, len(batch))
	for i, r := range batch {
		records[i] = reader.Record{Row: r.Row, Sign: int8(r.Sign), IsReplay: isReplay}
	}
	desc.Backlog.Apply(records)
	desc.Backlog.Swap()
}

// forward sends every local child its own copy of the batch, matching
// the egress broadcast convention: all but the last child get a clone.
// When replay is non-nil the batch continues downstream as a
// ReplayPiece instead of a Message, carrying replay's Tag (and Key, for
// a single-key partial fill) so a multi-hop same-domain replay chain
// keeps being treated as a replay at every hop, not just the first.
func (d *Domain) forward(desc *NodeDescriptor, batch record.Batch, replay *replayInfo) {
	if len(batch) == 0 {
		return
	}
	children := desc.Node.Children
	for i, child := range children {
		local, ok := d.LocalOf[child]
		if !ok {
			continue // not in this domain; reaching it is an Egress's job
		}
		data := batch
		if i < len(children)-1 {
			data = append(record.Batch(nil), batch...)
		}
		link := packet.Link{Src: packet.LocalNodeIndex(desc.Node.Local), Dst: packet.LocalNodeIndex(local)}
		if replay == nil {
			d.Mailbox.Send(packet.Message{Link: link, Data: data})
			continue
		}
		var rctx packet.ReplayContext = packet.RegularContext{}
		if replay.Key != nil {
			rctx = packet.PartialContext{Key: replay.Key}
		}
		d.Mailbox.Send(packet.ReplayPiece{Link: link, Tag: replay.Tag, Data: data, Context: rctx})
	}
}

// dispatchReplay routes a ReplayPiece the same way dispatchData routes a
// Message, except every write is flagged as a replay (so partial state
// fills a key rather than silently dropping the write) and an Egress
// node consults its tag-routing table instead of broadcasting (spec.md
// §4.5: "a replay piece is forwarded to exactly one channel").
func (d *Domain) dispatchReplay(ctx context.Context, rp packet.ReplayPiece) {
	desc := d.Nodes[graph.LocalNodeIndex(rp.Link.Dst)]
	if desc == nil {
		return
	}
	replay := &replayInfo{Tag: rp.Tag}
	if pc, ok := rp.Context.(packet.PartialContext); ok {
		replay.Key = pc.Key
	}
	switch desc.Node.Kind {
	case graph.KindBase:
		d.processBase(desc, rp.Data, replay)
	case graph.KindIngress:
		d.processIngress(desc, rp.Link, rp.Data, replay)
	case graph.KindInternal:
		d.processInternal(desc, rp.Link, rp.Data, replay)
	case graph.KindEgress:
		d.forwardReplay(desc, rp)
	case graph.KindSharder:
		d.processSharder(desc, packet.Message{Link: rp.Link, Data: rp.Data})
	case graph.KindReader:
		d.processReader(desc, rp.Data, true)
	}
}

// forwardReplay looks up rp.Tag in the egress's tag-routing table and
// sends to that single route only.
func (d *Domain) forwardReplay(desc *NodeDescriptor, rp packet.ReplayPiece) {
	if d.Outbox == nil || desc.TagRoute == nil {
		return
	}
	i, ok := desc.TagRoute[rp.Tag]
	if !ok || i >= len(desc.Routes) {
		return
	}
	route := desc.Routes[i]
	out := packet.ReplayPiece{
		Link:    packet.Link{Src: rp.Link.Src, Dst: route.Dst},
		Tag:     rp.Tag,
		Data:    rp.Data,
		Context: rp.Context,
	}
	d.Outbox.Send(d.DomainOf[route.Child], out)
}

func (d *Domain) globalOf(local packet.LocalNodeIndex) graph.NodeIndex {
	if desc, ok := d.Nodes[graph.LocalNodeIndex(local)]; ok {
		return desc.Node.Index
	}
	return 0
}

func (d *Domain) handleEvict(e packet.Evict) {
	desc := d.Nodes[graph.LocalNodeIndex(e.Node)]
	if desc == nil {
		return
	}
	if desc.Backlog != nil {
		for _, k := range e.Keys {
			desc.Backlog.MarkHole(value.Key(k))
		}
		return
	}
	if desc.State == nil {
		return
	}
	for idx := 0; idx < desc.State.NumIndexes(); idx++ {
		if e.Bytes > 0 {
			desc.State.EvictKeys(idx, estimateCount(desc.State, idx, e.Bytes))
		}
		for _, k := range e.Keys {
			desc.State.MarkHole(idx, value.Key(k))
		}
	}
}

func estimateCount(s *state.State, idx int, budget int64) int {
	keys := s.FilledKeys(idx)
	if len(keys) == 0 || s.Bytes() == 0 {
		return 0
	}
	perKey := s.Bytes() / int64(len(keys))
	if perKey <= 0 {
		return len(keys)
	}
	n := int(budget / perKey)
	if n < 1 {
		n = 1
	}
	return n
}

func (d *Domain) handlePrepareState(p packet.PrepareState) {
	desc := d.Nodes[graph.LocalNodeIndex(p.Node)]
	if desc == nil {
		return
	}
	desc.State = state.New(p.Indices, p.Partial)
}
