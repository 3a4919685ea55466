package domain

import (
	"context"

	"storj.io/flowdb/pkg/packet"
)

// Mailbox is a domain's single inbound queue, split into four
// underlying channels by packet.Priority so Recv can enforce the strict
// ordering spec.md §4.6 requires: control > replay-ack > input-from-
// readers > regular. A plain priority heap over one channel cannot give
// that guarantee under concurrent senders without extra locking, so this
// uses one channel per priority band and drains higher bands first.
type Mailbox struct {
	control  chan packet.Packet
	replay   chan packet.Packet
	readerIn chan packet.Packet
	regular  chan packet.Packet
	done     chan struct{}
}

// NewMailbox returns a Mailbox whose bands each buffer up to capacity
// packets before Send blocks.
func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{
		control:  make(chan packet.Packet, capacity),
		replay:   make(chan packet.Packet, capacity),
		readerIn: make(chan packet.Packet, capacity),
		regular:  make(chan packet.Packet, capacity),
		done:     make(chan struct{}),
	}
}

// Send enqueues p on the band its Priority selects, blocking if that
// band is full.
func (m *Mailbox) Send(p packet.Packet) {
	switch packet.PriorityOf(p) {
	case packet.PriorityControl:
		select {
		case m.control <- p:
		case <-m.done:
		}
	case packet.PriorityReplayAck:
		select {
		case m.replay <- p:
		case <-m.done:
		}
	case packet.PriorityReaderInput:
		select {
		case m.readerIn <- p:
		case <-m.done:
		}
	default:
		select {
		case m.regular <- p:
		case <-m.done:
		}
	}
}

// TrySend is Send's non-blocking form: it never waits on a full band.
// It reports whether p was enqueued.
func (m *Mailbox) TrySend(p packet.Packet) bool {
	var ch chan packet.Packet
	switch packet.PriorityOf(p) {
	case packet.PriorityControl:
		ch = m.control
	case packet.PriorityReplayAck:
		ch = m.replay
	case packet.PriorityReaderInput:
		ch = m.readerIn
	default:
		ch = m.regular
	}
	select {
	case ch <- p:
		return true
	default:
		return false
	}
}

// Recv returns the next packet in strict priority order: it first
// drains whichever highest band has anything queued, and only blocks
// across all bands (plus ctx and Close) once every band was observed
// empty. It reports false once ctx is done or Close has been called
// with nothing left to deliver.
func (m *Mailbox) Recv(ctx context.Context) (packet.Packet, bool) {
	for _, ch := range []chan packet.Packet{m.control, m.replay, m.readerIn, m.regular} {
		select {
		case p := <-ch:
			return p, true
		default:
		}
	}

	select {
	case p := <-m.control:
		return p, true
	case p := <-m.replay:
		return p, true
	case p := <-m.readerIn:
		return p, true
	case p := <-m.regular:
		return p, true
	case <-ctx.Done():
		return nil, false
	case <-m.done:
		return nil, false
	}
}

// TryNextRegular is a non-blocking read of only the regular band, used
// by the dispatch loop to batch contiguous Messages addressed to the
// same local path (spec.md §4.6) without waiting on, or reordering
// past, higher-priority bands. Because it never looks at the other
// bands, a control/replay/reader packet that arrives mid-batch simply
// waits for the next Recv rather than interrupting the batch early.
func (m *Mailbox) TryNextRegular() (packet.Packet, bool) {
	select {
	case p := <-m.regular:
		return p, true
	default:
		return nil, false
	}
}

// Close unblocks every pending and future Send/Recv call.
func (m *Mailbox) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
