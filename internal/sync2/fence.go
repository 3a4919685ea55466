// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sync2

import "sync"

// Fence is a one-shot gate: goroutines calling Wait block until some
// goroutine calls Release, then all of them proceed. The zero value
// is ready to use. A second Release is a no-op.
type Fence struct {
	setupOnce   sync.Once
	releaseOnce sync.Once
	release     chan struct{}
}

func (fence *Fence) init() {
	fence.setupOnce.Do(func() {
		fence.release = make(chan struct{})
	})
}

// Wait blocks until Release has been called.
func (fence *Fence) Wait() {
	fence.init()
	<-fence.release
}

// Release opens the fence, waking every current and future Wait.
func (fence *Fence) Release() {
	fence.init()
	fence.releaseOnce.Do(func() {
		close(fence.release)
	})
}
