// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package task

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/z5labs/greenhttp/internal/noop"

	"github.com/benbjohnson/clock"
)

type driverOptions struct {
	logHandler slog.Handler
	clock      clock.Clock
}

// DriverOption configures a Driver.
type DriverOption func(*driverOptions)

// LogHandler sets the slog.Handler used by the Driver and its Tasks.
func LogHandler(h slog.Handler) DriverOption {
	return func(do *driverOptions) {
		do.logHandler = h
	}
}

// Clock sets the clock used to time suspensions.
func Clock(c clock.Clock) DriverOption {
	return func(do *driverOptions) {
		do.clock = c
	}
}

// Driver creates, starts and finalizes Tasks on a Scheduler.
type Driver struct {
	sched Scheduler
	log   *slog.Logger
	clock clock.Clock

	lastID atomic.Uint64
}

// NewDriver returns a Driver whose Tasks are driven by s.
func NewDriver(s Scheduler, opts ...DriverOption) *Driver {
	do := &driverOptions{
		logHandler: noop.LogHandler{},
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(do)
	}
	return &Driver{
		sched: s,
		log:   slog.New(do.logHandler),
		clock: do.clock,
	}
}

// Go schedules work to run in a new Task and returns without waiting for
// it to start. Once work returns, fin is called exactly once; fin may be nil.
// If the Scheduler stops before the Task starts, work is skipped, fin is
// still called and the Task finalizes with [loop.ErrClosed].
//
// Errors returned by work, including recovered panics, are not handled by
// the Driver. They are reported by [Task.Wait].
func (d *Driver) Go(ctx context.Context, work Work, fin Finisher) (*Task, error) {
	if work == nil {
		panic("task: nil work")
	}
	if fin == nil {
		fin = FinisherFunc(func() {})
	}

	t := &Task{
		id:     d.lastID.Add(1),
		sched:  d.sched,
		log:    d.log,
		clock:  d.clock,
		resume:  make(chan any),
		yield:   make(chan struct{}),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	t.setState(StateCreated)

	tctx := context.WithValue(ctx, contextKey{}, t)
	err := d.sched.Schedule(func() {
		t.start(tctx, work, fin)
	})
	if err != nil {
		return nil, err
	}
	go t.watchStart(tctx, fin)
	return t, nil
}

// Run is Go followed by Wait.
func (d *Driver) Run(ctx context.Context, work Work, fin Finisher) error {
	t, err := d.Go(ctx, work, fin)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}
