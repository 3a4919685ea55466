// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type cycleControl int

const (
	cyclePause cycleControl = iota
	cycleRestart
	cycleStop
	cycleTrigger
)

type cycleMessage struct {
	control cycleControl
	// done, when set, is closed once a cycleTrigger message's run of
	// fn has completed; nil means fire-and-forget.
	done chan struct{}
}

// Cycle implements a controllable repeating event: every interval,
// unless paused, it runs fn once. The zero value is valid for use
// after a call to SetInterval, exactly like NewCycle returns.
type Cycle struct {
	interval time.Duration

	startOnce sync.Once
	control   chan cycleMessage
	stopped   chan struct{}
	stopOnce  sync.Once
}

// NewCycle creates a new cycle with the specified interval. An
// interval of zero means the cycle never fires on its own and only
// runs in response to Trigger/TriggerWait.
func NewCycle(interval time.Duration) *Cycle {
	cycle := &Cycle{}
	cycle.SetInterval(interval)
	return cycle
}

// SetInterval changes the interval. Must be called before Start.
func (cycle *Cycle) SetInterval(interval time.Duration) {
	cycle.interval = interval
}

// Start runs fn with the cycle's interval until the context is
// canceled or Stop is called.
func (cycle *Cycle) Start(ctx context.Context, group *errgroup.Group, fn func(ctx context.Context) error) {
	cycle.startOnce.Do(func() {
		cycle.control = make(chan cycleMessage)
		cycle.stopped = make(chan struct{})
	})

	group.Go(func() error {
		return cycle.run(ctx, fn)
	})
}

func (cycle *Cycle) run(ctx context.Context, fn func(ctx context.Context) error) error {
	defer close(cycle.stopped)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if cycle.interval > 0 {
		ticker = time.NewTicker(cycle.interval)
		defer ticker.Stop()
	}

	paused := false

	for {
		if ticker != nil && !paused {
			tick = ticker.C
		} else {
			tick = nil
		}

		select {
		case <-ctx.Done():
			return nil

		case msg := <-cycle.control:
			switch msg.control {
			case cycleStop:
				return nil
			case cyclePause:
				paused = true
			case cycleRestart:
				paused = false
				if ticker != nil {
					ticker.Stop()
					ticker = time.NewTicker(cycle.interval)
				}
			case cycleTrigger:
				err := fn(ctx)
				if msg.done != nil {
					close(msg.done)
				}
				if err != nil {
					return err
				}
			}

		case <-tick:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

// Pause suspends automatic ticking until Restart is called. Manual
// runs via Trigger/TriggerWait still work while paused.
func (cycle *Cycle) Pause() {
	cycle.send(cycleMessage{control: cyclePause})
}

// Restart resumes automatic ticking from a fresh interval.
func (cycle *Cycle) Restart() {
	cycle.send(cycleMessage{control: cycleRestart})
}

// Trigger asks for one more run as soon as possible, without waiting
// for it to complete. It waits only until the running loop accepts the
// request (which can be after a run in progress finishes), and returns
// at once after the cycle stopped.
func (cycle *Cycle) Trigger() {
	select {
	case cycle.control <- cycleMessage{control: cycleTrigger}:
	case <-cycle.stopped:
	}
}

// TriggerWait asks for one more run and blocks until it completes.
func (cycle *Cycle) TriggerWait() {
	done := make(chan struct{})
	select {
	case cycle.control <- cycleMessage{control: cycleTrigger, done: done}:
	case <-cycle.stopped:
		return
	}
	select {
	case <-done:
	case <-cycle.stopped:
	}
}

// Stop ends the cycle permanently; Start's goroutine returns nil.
func (cycle *Cycle) Stop() {
	cycle.stopOnce.Do(func() {
		cycle.send(cycleMessage{control: cycleStop})
	})
}

// Close is an alias for Stop.
func (cycle *Cycle) Close() { cycle.Stop() }

func (cycle *Cycle) send(msg cycleMessage) {
	select {
	case cycle.control <- msg:
	case <-cycle.stopped:
	}
}
