// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package errs2

import "sync"

// Group runs a set of functions concurrently and collects every
// non-nil error they return, unlike golang.org/x/sync/errgroup which
// only keeps the first.
type Group struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Go runs fn in a goroutine and records its error, if any.
func (group *Group) Go(fn func() error) {
	group.wg.Add(1)
	go func() {
		defer group.wg.Done()
		if err := fn(); err != nil {
			group.mu.Lock()
			group.errs = append(group.errs, err)
			group.mu.Unlock()
		}
	}()
}

// Wait blocks until every Go'd function has returned, then reports
// every error they returned, in completion order.
func (group *Group) Wait() []error {
	group.wg.Wait()
	return group.errs
}
