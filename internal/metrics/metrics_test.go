package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// These are smoke tests: monkit counters don't expose a simple snapshot
// API worth asserting against here, so the coverage that matters is that
// every recorder and traced-task wrapper is callable and returns a task
// closer that itself doesn't panic.
func TestRecordersDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordMiss()
		RecordReplayHit()
		RecordReplayUnresolved()
		RecordEviction(3, 1024)
		RecordDataError()
		RecordProtocolViolation()
	})
}

func TestTracedTasksCloseCleanly(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		done := TaskDispatch(&ctx)
		done(nil)
	})
	assert.NotPanics(t, func() {
		done := TaskResolve(&ctx)
		var err error
		done(&err)
	})
	assert.NotPanics(t, func() {
		done := TaskEvictTick(&ctx)
		done(nil)
	})
}
