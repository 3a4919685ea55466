// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package errs2

import (
	"time"

	"github.com/zeebo/errs"
)

// Collect drains errchan until quiet is left entirely elapsed
// without a new error arriving, then combines whatever arrived into
// a single error (nil if nothing did). Used to gather the shutdown
// errors of several goroutines writing to a shared channel without
// knowing in advance how many of them there are.
func Collect(errchan <-chan error, quiet time.Duration) error {
	timer := time.NewTimer(quiet)
	defer timer.Stop()

	var collected []error
	for {
		select {
		case err := <-errchan:
			collected = append(collected, err)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)

		case <-timer.C:
			return errs.Combine(collected...)
		}
	}
}
