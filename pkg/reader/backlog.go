// Package reader implements the reader backlog: a double-buffered
// read-side store that gives readers lock-free point lookups while a
// single writer (the owning domain) applies updates, per spec.md §4.3.
package reader

import (
	"sync"
	"sync/atomic"

	"storj.io/flowdb/pkg/state"
	"storj.io/flowdb/pkg/value"
)

// MissTicket is handed back on a read Miss; the caller blocks on it (or
// polls) until the corresponding replay fills the key, per spec.md §6's
// BlockOn(ticket).
type MissTicket struct {
	ch chan struct{}
}

// Wait blocks until the ticket is released.
func (t *MissTicket) Wait() { <-t.ch }

// Done reports whether the ticket has already been released, without
// blocking.
func (t *MissTicket) Done() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

func newTicket() *MissTicket { return &MissTicket{ch: make(chan struct{})} }

func (t *MissTicket) release() { close(t.ch) }

// Listener receives a best-effort copy of every batch published by a
// swap, matching spec.md §4.3's "streaming subscribers" under
// best-effort delivery.
type Listener chan value.Row

// generation is one immutable snapshot of the read-side store.
type generation struct {
	s *state.State
}

// Backlog is the reader-facing view of a Reader node: a write-side state
// mutated by the owning domain, and a read-side pointer published by Swap.
type Backlog struct {
	keyCols []int

	mu        sync.Mutex // guards write-side + tickets + listeners only
	write     *state.State
	tickets   map[value.Key][]*MissTicket
	listeners map[int]Listener
	nextLID   int

	read atomic.Pointer[generation]
}

// New creates a backlog keyed on keyCols. partial mirrors the
// corresponding node's State partiality (spec.md §3's "Reader nodes may
// only be partial if every ancestor ... is reachable via a replay path").
func New(keyCols []int, partial bool) *Backlog {
	b := &Backlog{
		keyCols:   keyCols,
		write:     state.New([][]int{keyCols}, partial),
		tickets:   make(map[value.Key][]*MissTicket),
		listeners: make(map[int]Listener),
	}
	b.read.Store(&generation{s: b.write})
	return b
}

// Apply writes records into the write-side state. This must only be
// called by the owning domain (single-writer, per spec.md §5).
func (b *Backlog) Apply(records []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range records {
		if r.Sign > 0 {
			b.write.Insert(r.Row, r.IsReplay)
		} else {
			_ = b.write.Remove(r.Row)
		}
	}
	b.fanout(records)
}

// Record is the minimal shape Backlog.Apply needs; kept local to avoid a
// dependency on package record from package reader's public surface.
type Record struct {
	Row      value.Row
	Sign     int8
	IsReplay bool
}

// Swap publishes the current write-side contents as the new read-side
// snapshot. Readers observe either the old or the new generation
// atomically, never a torn mix (spec.md §4.3).
func (b *Backlog) Swap() {
	b.mu.Lock()
	g := &generation{s: b.write}
	b.mu.Unlock()
	b.read.Store(g)
}

// Lookup performs a lock-free read against the published generation. A
// Hole yields a fresh MissTicket registered against key so that a later
// MarkFilled/Fill can release any readers blocked on it.
func (b *Backlog) Lookup(key value.Row) (rows []value.Row, hole bool, ticket *MissTicket) {
	g := b.read.Load()
	k := value.MakeKey(key, indices(len(b.keyCols)))
	res := g.s.Lookup(0, k)
	if res.Hole {
		b.mu.Lock()
		t := newTicket()
		b.tickets[k] = append(b.tickets[k], t)
		b.mu.Unlock()
		return nil, true, t
	}
	return res.Rows, false, nil
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// MarkFilled marks key filled on the write-side state (and, once swapped,
// on the read-side) and releases any MissTickets waiting on it. Reader
// partial fills mark the key regardless of whether the replay brought
// zero rows, per spec.md §4.7.
func (b *Backlog) MarkFilled(key value.Key) {
	b.mu.Lock()
	b.write.MarkFilled(0, key)
	waiters := b.tickets[key]
	delete(b.tickets, key)
	b.mu.Unlock()
	for _, t := range waiters {
		t.release()
	}
}

// MarkHole reverts key to a hole, used when eviction targets this reader.
func (b *Backlog) MarkHole(key value.Key) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write.MarkHole(0, key)
}

// Subscribe registers a best-effort streaming listener and returns an
// unsubscribe func.
func (b *Backlog) Subscribe(buffer int) (Listener, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextLID
	b.nextLID++
	l := make(Listener, buffer)
	b.listeners[id] = l
	return l, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// fanout delivers to listeners with a non-blocking send; a full or closed
// channel prunes the listener (spec.md §4.3/§5).
func (b *Backlog) fanout(records []Record) {
	for id, l := range b.listeners {
		for _, r := range records {
			select {
			case l <- r.Row:
			default:
				delete(b.listeners, id)
				goto next
			}
		}
	next:
	}
}
