// Package metrics wraps the domain packet loop, the replay protocol,
// and the eviction worker with monkit instrumentation, the teacher's
// own convention (`var mon = monkit.Package()` plus `mon.Task()` at
// the top of a traced method, seen throughout pkg/overlay,
// pkg/telemetry, pkg/miniogw) rather than a bespoke metrics surface.
package metrics

import (
	"context"

	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// TaskDispatch traces one Domain.handle() iteration.
func TaskDispatch(ctx *context.Context) func(*error) { return mon.Task()(ctx) }

// TaskResolve traces one internal/replay.Manager.resolve() upstream
// walk (a single hop, since resolve recurses hop by hop and each hop
// is its own unit of replay latency).
func TaskResolve(ctx *context.Context) func(*error) { return mon.Task()(ctx) }

// TaskEvictTick traces one internal/eviction.Worker.tick() pass.
func TaskEvictTick(ctx *context.Context) func(*error) { return mon.Task()(ctx) }

var (
	misses       = mon.Counter("replay_misses")
	replayHits   = mon.Counter("replay_hits")
	replayDrops  = mon.Counter("replay_unresolved")
	evictedKeys  = mon.Counter("evicted_keys")
	evictedBytes = mon.Counter("evicted_bytes")
	dataErrors   = mon.Counter("data_errors")
	protoErrors  = mon.Counter("protocol_violations")
)

// RecordMiss counts one kernel-reported Miss entering the replay path.
func RecordMiss() { misses.Inc(1) }

// RecordReplayHit counts one resolve() walk that found a non-hole
// state and emitted rows downstream.
func RecordReplayHit() { replayHits.Inc(1) }

// RecordReplayUnresolved counts one resolve() walk that reached the
// path's source and found a hole there too (spec.md §4.7: dropped
// until a future write or retry repopulates it).
func RecordReplayUnresolved() { replayDrops.Inc(1) }

// RecordEviction counts one Evict packet's effect: how many keys it
// marked as holes and how many bytes that freed.
func RecordEviction(keys int, bytes int64) {
	evictedKeys.Inc(int64(keys))
	evictedBytes.Inc(bytes)
}

// RecordDataError counts one dropped malformed row (spec.md §7's
// DataError: not fatal, just counted).
func RecordDataError() { dataErrors.Inc(1) }

// RecordProtocolViolation counts one channel poisoned by an
// out-of-order replay piece, duplicate mark-filled, or write to an
// unknown node (spec.md §7's ProtocolViolation).
func RecordProtocolViolation() { protoErrors.Inc(1) }
