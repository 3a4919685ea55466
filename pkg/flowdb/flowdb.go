// Package flowdb is the engine's public API — spec.md §6's write
// ingress, read surface, and control surface, implemented directly
// against internal/domain, internal/replay, internal/channel, and
// internal/persist rather than introducing another abstraction layer
// over them.
package flowdb

import (
	"sync"
	"sync/atomic"

	"github.com/zeebo/errs"

	"storj.io/flowdb/internal/channel"
	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/internal/errs2"
	"storj.io/flowdb/internal/eviction"
	"storj.io/flowdb/internal/persist"
	"storj.io/flowdb/internal/replay"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/packet"
	"storj.io/flowdb/pkg/reader"
	"storj.io/flowdb/pkg/record"
	"storj.io/flowdb/pkg/value"
)

// Class is this package's error class, the teacher's zeebo/errs
// convention used throughout the rest of this module.
var Class = errs.Class("flowdb")

// ErrServiceUnavailable is returned by Write/Lookup/Subscribe when the
// view or base they target is hosted in a domain currently marked dead
// (spec.md §7: "domain failure translates to ServiceUnavailable on all
// views hosted in that domain until recovery").
var ErrServiceUnavailable = Class.New("service unavailable")

// ErrUnknownBase / ErrUnknownView are returned when the caller names a
// base or view that was never bound with BindBase/BindView.
var (
	ErrUnknownBase = Class.New("unknown base table")
	ErrUnknownView = Class.New("unknown view")
)

// Status is a write acknowledgment's outcome, spec.md §6's Ok/Rejected/
// Dropped.
type Status int

const (
	// StatusOk means the write was accepted and assigned a timestamp.
	StatusOk Status = iota
	// StatusRejected means the write failed validation; Reason explains
	// why. Not a domain failure — the engine remains usable.
	StatusRejected
	// StatusDropped means the write landed on a poisoned channel
	// (spec.md §7's ProtocolViolation handling) and was discarded.
	StatusDropped
)

// AckResult is the write-ingress acknowledgment of spec.md §6.
type AckResult struct {
	Timestamp int64
	Status    Status
	Reason    string
	Token     []byte // echoed back verbatim from the Input
}

// Outcome is a read-surface lookup's result kind.
type Outcome int

const (
	// OutcomeHit means Rows holds the view's current rows for the key.
	OutcomeHit Outcome = iota
	// OutcomeMiss means the key is a genuine hole with no replay to
	// wait on (e.g. the view has no replay path registered for it).
	OutcomeMiss
	// OutcomeBlockOn means the key is a hole a replay is already (or
	// about to be) resolving; Ticket fires once it is filled.
	OutcomeBlockOn
)

// LookupResult is the read-surface result of spec.md §6's
// `lookup(view_id, key) → Hit(rows) | Miss | BlockOn(ticket)`.
type LookupResult struct {
	Outcome Outcome
	Rows    []value.Row
	Ticket  *reader.MissTicket
}

type baseBinding struct {
	domainID uint32
	local    graph.LocalNodeIndex
	mailbox  *domain.Mailbox
	log      *persist.Log
}

type viewBinding struct {
	domainID uint32
	local    graph.LocalNodeIndex
	mailbox  *domain.Mailbox
	backlog  *reader.Backlog
	keyCols  []int
}

// Engine is the running dataflow instance: every domain it supervises,
// the replay/eviction/persistence machinery wired to them, and the
// name-to-node bindings Write/Lookup/Subscribe resolve through.
type Engine struct {
	Router   *channel.Router
	Replay   *replay.Manager
	Eviction *eviction.Worker

	seq uint64 // monotonic assigned_timestamp source

	mu    sync.RWMutex
	bases map[string]baseBinding
	views map[string]viewBinding
	dead  map[uint32]bool
}

// New returns an Engine. router/rep/evictor may be nil if this
// deployment has no cross-process domains, no replay-capable views, or
// no eviction policy respectively — each is optional machinery wired
// in by the caller's migration/startup code, not a requirement of
// every Engine.
func New(router *channel.Router, rep *replay.Manager, evictor *eviction.Worker) *Engine {
	return &Engine{
		Router:   router,
		Replay:   rep,
		Eviction: evictor,
		bases:    make(map[string]baseBinding),
		views:    make(map[string]viewBinding),
		dead:     make(map[uint32]bool),
	}
}

// BindBase registers name as a base table living at (domainID, local),
// writable through mailbox and durable through log (nil for an
// unpersisted base).
func (e *Engine) BindBase(name string, domainID uint32, local graph.LocalNodeIndex, mailbox *domain.Mailbox, log *persist.Log) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bases[name] = baseBinding{domainID: domainID, local: local, mailbox: mailbox, log: log}
}

// BindView registers viewID as a reader view living at (domainID,
// local), whose backlog is keyed on keyCols.
func (e *Engine) BindView(viewID string, domainID uint32, local graph.LocalNodeIndex, mailbox *domain.Mailbox, backlog *reader.Backlog, keyCols []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.views[viewID] = viewBinding{domainID: domainID, local: local, mailbox: mailbox, backlog: backlog, keyCols: keyCols}
}

// MarkDomainDead records domainID as failed (spec.md §7's Fatal error
// handling: "domain terminates; controller marks domain dead"), so
// every base/view hosted there reports ErrServiceUnavailable until a
// matching MarkDomainRecovered.
func (e *Engine) MarkDomainDead(domainID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dead[domainID] = true
}

// MarkDomainRecovered clears a prior MarkDomainDead.
func (e *Engine) MarkDomainRecovered(domainID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.dead, domainID)
}

func (e *Engine) isDead(domainID uint32) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dead[domainID]
}

// Write implements spec.md §6's write ingress: rows land at the named
// base table as a single Input packet, stamped with a fresh monotonic
// timestamp and persisted (if the base is bound to a persist.Log)
// before being handed to the domain.
func (e *Engine) Write(baseName string, rows []value.Row, token []byte) (AckResult, error) {
	e.mu.RLock()
	b, ok := e.bases[baseName]
	e.mu.RUnlock()
	if !ok {
		return AckResult{}, ErrUnknownBase
	}
	if e.isDead(b.domainID) {
		return AckResult{Status: StatusDropped, Reason: "service unavailable", Token: token}, ErrServiceUnavailable
	}

	ts := atomic.AddUint64(&e.seq, 1)
	batch := make(record.Batch, len(rows))
	for i, row := range rows {
		batch[i] = record.NewPositive(row)
	}

	if b.log != nil {
		if err := b.log.Append(batch); err != nil {
			return AckResult{Status: StatusRejected, Reason: err.Error(), Token: token}, nil
		}
	}

	b.mailbox.Send(packet.Input{
		Link:  packet.Link{Dst: packet.LocalNodeIndex(b.local)},
		Data:  batch,
		Token: token,
	})

	return AckResult{Timestamp: int64(ts), Status: StatusOk, Token: token}, nil
}

// Lookup implements spec.md §6's read surface. On a hole it also kicks
// off (or joins, via internal/replay's own dedup) a reader-originated
// replay for key so a subsequent retry after Ticket fires is likely to
// hit.
func (e *Engine) Lookup(viewID string, key value.Row) (LookupResult, error) {
	e.mu.RLock()
	v, ok := e.views[viewID]
	e.mu.RUnlock()
	if !ok {
		return LookupResult{}, ErrUnknownView
	}
	if e.isDead(v.domainID) {
		return LookupResult{}, ErrServiceUnavailable
	}

	rows, hole, ticket := v.backlog.Lookup(key)
	if !hole {
		return LookupResult{Outcome: OutcomeHit, Rows: rows}, nil
	}
	if ticket == nil {
		return LookupResult{Outcome: OutcomeMiss}, nil
	}

	if v.mailbox != nil {
		v.mailbox.Send(packet.RequestReaderReplay{
			Node: packet.LocalNodeIndex(v.local),
			Cols: v.keyCols,
			Keys: [][]byte{[]byte(value.MakeKey(key, identity(len(key))))},
		})
	}
	return LookupResult{Outcome: OutcomeBlockOn, Ticket: ticket}, nil
}

// Subscribe implements spec.md §6's `subscribe(view_id) → stream of
// records`.
func (e *Engine) Subscribe(viewID string, buffer int) (reader.Listener, func(), error) {
	e.mu.RLock()
	v, ok := e.views[viewID]
	e.mu.RUnlock()
	if !ok {
		return nil, nil, ErrUnknownView
	}
	if e.isDead(v.domainID) {
		return nil, nil, ErrServiceUnavailable
	}
	l, cancel := v.backlog.Subscribe(buffer)
	return l, cancel, nil
}

// Shutdown closes every bound base's persistence log and every
// domain's mailbox concurrently, returning every error any of them
// produced. It deliberately uses errs2.Group rather than
// golang.org/x/sync/errgroup: errgroup cancels the remaining closers
// on the first error, which would leave a second domain's mailbox (or
// a second base's log) unclosed just because an earlier one failed.
func (e *Engine) Shutdown() []error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[*domain.Mailbox]bool)
	var group errs2.Group

	for _, b := range e.bases {
		if b.log != nil {
			log := b.log
			group.Go(func() error { return log.Close() })
		}
		if b.mailbox != nil && !seen[b.mailbox] {
			seen[b.mailbox] = true
			mailbox := b.mailbox
			group.Go(func() error { mailbox.Close(); return nil })
		}
	}
	for _, v := range e.views {
		if v.mailbox != nil && !seen[v.mailbox] {
			seen[v.mailbox] = true
			mailbox := v.mailbox
			group.Go(func() error { mailbox.Close(); return nil })
		}
	}

	return group.Wait()
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
