package channel

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/pkg/packet"
)

// Router is the domain.Outbox every Domain and internal/replay.Manager
// sends through: it resolves a destination domain ID to that domain's
// Mailbox and delivers a packet there. Today every registered domain
// lives in this process, so Send's encode/Decode round trip through the
// wire codec is a loopback rather than a socket write — but it is a
// genuine round trip, not a passthrough, so a Router-registered domain
// sees exactly the bytes a future network Link would produce and
// consume. Swapping in a real connection only means replacing the
// Mailbox lookup with a net.Conn write and a matching reader goroutine
// on the far end; nothing above this package changes.
type Router struct {
	log *zap.Logger

	mu    sync.RWMutex
	boxes map[uint32]*domain.Mailbox
	seq   map[uint32]*uint64
}

// NewRouter returns an empty Router.
func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		log:   log,
		boxes: make(map[uint32]*domain.Mailbox),
		seq:   make(map[uint32]*uint64),
	}
}

// Register makes domain id reachable through the Router.
func (r *Router) Register(id uint32, mailbox *domain.Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxes[id] = mailbox
	if r.seq[id] == nil {
		var n uint64
		r.seq[id] = &n
	}
}

// Send implements domain.Outbox.
func (r *Router) Send(toDomain uint32, p packet.Packet) {
	r.mu.RLock()
	mailbox, ok := r.boxes[toDomain]
	seqp := r.seq[toDomain]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("send to unregistered domain", zap.Uint32("domain", toDomain), zap.String("kind", p.Kind()))
		return
	}

	var seq uint64
	if seqp != nil {
		seq = atomic.AddUint64(seqp, 1)
	}

	frame, err := Encode(PacketID{Domain: toDomain, Seq: seq}, p)
	if err != nil {
		r.log.Error("encode outbound packet", zap.Error(err), zap.String("kind", p.Kind()))
		return
	}
	decoded, err := Decode(frame)
	if err != nil {
		r.log.Error("decode inbound packet", zap.Error(err), zap.String("kind", p.Kind()))
		return
	}
	mailbox.Send(decoded)
}
