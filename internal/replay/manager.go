package replay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/internal/metrics"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/ops"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// Manager is the domain.MissSink and domain.ReplayHandler implementation
// that turns a kernel's Miss into the partial-replay walk of spec.md
// §4.7: resolve the registered path for (node, columns), suppress a
// duplicate request for a key already being filled, then walk the path
// upstream hop by hop until a non-hole state is found, and stream the
// result back down.
//
// Grounded on spec.md §4.7's five-step walkthrough directly; there is no
// dedicated replay file in original_source to adapt (see this package's
// doc comment), so the walk below is original design reasoning from that
// prose rather than a port. Internally every key is carried as the same
// opaque value.Key the wire packets (RequestPartialReplay.Key,
// PartialContext.Key) already use, rather than decoded back into a
// value.Row, since value.Key's encoding is one-way by design (pkg/value
// treats it as a comparable bucket key, not a serialization format).
type Manager struct {
	registry *Registry
	dir      *Directory
	outbox   domain.Outbox
	log      *zap.Logger

	mu      sync.Mutex
	pending map[packet.Tag]map[value.Key]struct{} // in-flight partial-fill keys, per tag
}

// NewManager returns a Manager. log may be nil, in which case a no-op
// logger is used — matching the teacher's convention of an optional
// *zap.Logger parameter defaulting quietly rather than requiring every
// caller to wire one.
func NewManager(registry *Registry, dir *Directory, outbox domain.Outbox, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		dir:      dir,
		outbox:   outbox,
		log:      log,
		pending:  make(map[packet.Tag]map[value.Key]struct{}),
	}
}

func identityCols(n int) []int {
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}
	return cols
}

// OnMiss implements domain.MissSink. miss.Node is either a genuine
// ancestor (an ordinary cross-node miss) or the reporting node's own
// index (a GroupedStateLost self-miss, per DESIGN.md's Open Question
// resolution) — both resolve through the same registry lookup, since a
// self-miss is registered as a single-hop path pointing at the node
// itself.
func (m *Manager) OnMiss(d *domain.Domain, from graph.NodeIndex, miss ops.Miss) {
	tag, hopIdx, ok := m.registry.Locate(miss.Node, miss.Columns)
	if !ok {
		m.log.Warn("no replay path registered for miss",
			zap.Uint64("node", uint64(miss.Node)),
			zap.Ints("columns", miss.Columns))
		return
	}
	metrics.RecordMiss()
	key := value.MakeKey(miss.Key, identityCols(len(miss.Key)))
	m.request(tag, hopIdx, key)
}

// request dedupes key against any partial fill already in flight for tag
// before starting a new upstream walk (spec.md §4.7's "a second miss for
// the same key is folded into the first requester's wait").
func (m *Manager) request(tag packet.Tag, hopIdx int, key value.Key) {
	m.mu.Lock()
	set := m.pending[tag]
	if set == nil {
		set = make(map[value.Key]struct{})
		m.pending[tag] = set
	}
	if _, dup := set[key]; dup {
		m.mu.Unlock()
		return
	}
	set[key] = struct{}{}
	m.mu.Unlock()

	m.resolve(tag, hopIdx, key)
}

func (m *Manager) clearPending(tag packet.Tag, key value.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set := m.pending[tag]; set != nil {
		delete(set, key)
	}
}

// resolve walks the path for tag upstream starting at hopIdx, looking
// for a hit. A hole at hopIdx 0 (the path's ultimate source) means there
// is nowhere further to ask; the miss is dropped until a future write or
// retry repopulates it, matching spec.md §4.7's "replays do not time
// out; a requester that misses again re-sends."
func (m *Manager) resolve(tag packet.Tag, hopIdx int, key value.Key) {
	ctx := context.Background()
	defer metrics.TaskResolve(&ctx)(nil)

	path, ok := m.registry.Path(tag)
	if !ok || hopIdx < 0 || hopIdx >= len(path.Hops) {
		m.clearPending(tag, key)
		return
	}
	hop := path.Hops[hopIdx]

	loc, ok := m.dir.lookup(hop.Node)
	if !ok {
		m.log.Warn("replay hop has no known location", zap.Uint64("node", uint64(hop.Node)))
		m.clearPending(tag, key)
		return
	}

	if loc.D == nil {
		// Owned by a domain in another process: ask it to continue the
		// walk from its side. Its own Manager's OnRequestPartialReplay
		// resumes exactly this same resolve() call against its local
		// NodeDescriptor.
		if m.outbox != nil {
			m.outbox.Send(loc.DomainID, packet.RequestPartialReplay{Tag: tag, Key: []byte(key)})
		}
		return
	}

	desc := loc.D.Nodes[loc.Local]
	if desc == nil || desc.State == nil {
		m.clearPending(tag, key)
		return
	}
	idx := indexOf(desc.Node, hop.TriggerColumns)
	if idx < 0 {
		m.log.Warn("no declared index matches replay trigger columns",
			zap.Uint64("node", uint64(hop.Node)), zap.Ints("columns", hop.TriggerColumns))
		m.clearPending(tag, key)
		return
	}

	res := desc.State.Lookup(idx, key)
	if res.Hole {
		if hopIdx == 0 {
			metrics.RecordReplayUnresolved()
			m.clearPending(tag, key)
			return
		}
		m.resolve(tag, hopIdx-1, key)
		return
	}

	metrics.RecordReplayHit()
	m.emit(loc, tag, key, res.Rows)
	m.clearPending(tag, key)
}

func indexOf(n *graph.Node, triggerColumns []int) int {
	for i, cols := range n.Indexes {
		if len(cols) != len(triggerColumns) {
			continue
		}
		match := true
		for j := range cols {
			if cols[j] != triggerColumns[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// emit turns a hit at loc into a ReplayPiece sent to every local child of
// that node, reusing the same Mailbox/dispatchReplay machinery a regular
// write already goes through: each child materializes into its own
// state (if stateful) and keeps forwarding downstream via forward()'s
// replay-aware path, so a multi-hop chain resolves itself without this
// package tracking anything past the first hop.
func (m *Manager) emit(loc nodeLocation, tag packet.Tag, key value.Key, rows []value.Row) {
	if len(rows) == 0 {
		return
	}
	batch := make(record.Batch, len(rows))
	for i, row := range rows {
		batch[i] = record.NewPositive(row)
	}
	desc := loc.D.Nodes[loc.Local]
	if desc == nil {
		return
	}
	for _, child := range desc.Node.Children {
		childLocal, ok := loc.D.LocalOf[child]
		if !ok {
			continue // reached via that child's own Egress, already a Children entry
		}
		loc.D.Mailbox.Send(packet.ReplayPiece{
			Link:    packet.Link{Src: packet.LocalNodeIndex(loc.Local), Dst: packet.LocalNodeIndex(childLocal)},
			Tag:     tag,
			Data:    batch,
			Context: packet.PartialContext{Key: []byte(key)},
		})
	}
}

// OnRequestPartialReplay implements domain.ReplayHandler: a remote
// domain asked this one to continue the walk for tag/key, because the
// local directory said this domain owns the next hop upstream.
func (m *Manager) OnRequestPartialReplay(d *domain.Domain, p packet.RequestPartialReplay) {
	path, ok := m.registry.Path(p.Tag)
	if !ok {
		return
	}
	hopIdx := len(path.Hops) - 1
	if desc := d.Nodes[graph.LocalNodeIndex(p.Link.Dst)]; desc != nil {
		for i, h := range path.Hops {
			if h.Node == desc.Node.Index {
				hopIdx = i
				break
			}
		}
	}
	m.resolve(p.Tag, hopIdx, value.Key(p.Key))
}

// OnRequestReaderReplay implements domain.ReplayHandler: a reader's
// client-facing adapter missed in the backlog and asks for one replay
// per key along this reader's own tag (spec.md §4.7's "reader-originated
// misses").
func (m *Manager) OnRequestReaderReplay(d *domain.Domain, p packet.RequestReaderReplay) {
	readerDesc := d.Nodes[graph.LocalNodeIndex(p.Node)]
	if readerDesc == nil {
		return
	}
	tag, hopIdx, ok := m.registry.Locate(readerDesc.Node.Index, p.Cols)
	if !ok {
		m.log.Warn("no replay path for reader miss", zap.Uint64("node", uint64(readerDesc.Node.Index)))
		return
	}
	for _, k := range p.Keys {
		m.request(tag, hopIdx, value.Key(k))
	}
}

// OnStartReplay implements domain.ReplayHandler: begins a full replay of
// a node's entire state along Tag (spec.md §4.7's "full replay" case),
// streamed as RegularContext chunks rather than the per-key
// PartialContext the miss-driven path above uses.
func (m *Manager) OnStartReplay(d *domain.Domain, p packet.StartReplay) {
	desc := d.Nodes[graph.LocalNodeIndex(p.From)]
	if desc == nil || desc.State == nil {
		return
	}
	keys := desc.State.FilledKeys(0)
	if len(keys) == 0 {
		m.sendChunk(d, desc, p, nil, true)
		return
	}
	for i, k := range keys {
		res := desc.State.Lookup(0, k)
		if len(res.Rows) == 0 {
			continue
		}
		batch := make(record.Batch, len(res.Rows))
		for j, row := range res.Rows {
			batch[j] = record.NewPositive(row)
		}
		m.sendChunk(d, desc, p, batch, i == len(keys)-1)
	}
}

func (m *Manager) sendChunk(d *domain.Domain, desc *domain.NodeDescriptor, p packet.StartReplay, batch record.Batch, last bool) {
	for _, child := range desc.Node.Children {
		childLocal, ok := d.LocalOf[child]
		if !ok {
			continue
		}
		d.Mailbox.Send(packet.ReplayPiece{
			Link:    packet.Link{Src: packet.LocalNodeIndex(p.From), Dst: packet.LocalNodeIndex(childLocal)},
			Tag:     p.Tag,
			Data:    batch,
			Context: packet.RegularContext{Last: last},
		})
	}
}

// OnFinish implements domain.ReplayHandler: spec.md §4.7 describes
// Finish as a path-closing terminator with no state of its own to act
// on beyond what the RegularContext{Last: true} chunk already signaled;
// kept as a named no-op so Domain's switch stays exhaustive and a future
// path-teardown hook (freeing the tag's Registry entry once every
// Finish for it has arrived) has a single place to land.
func (m *Manager) OnFinish(d *domain.Domain, p packet.Finish) {}
