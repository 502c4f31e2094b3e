// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package task lets a unit of work run on a single-threaded event loop
// while being written as straight-line, blocking-style code.
//
// A [Driver] starts each unit of work as a [Task]. Inside the work, [Await]
// starts an asynchronous operation, parks the Task and hands control back
// to the loop; when the operation delivers its result the loop switches
// back into the Task, which continues exactly where it left off.
//
// Every Task runs on its own goroutine, but control is handed back and
// forth with the loop over unbuffered channels, so the loop and all the
// Tasks it drives behave as one thread: at most one of them runs at any
// instant.
package task

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/z5labs/greenhttp/internal/try"
	"github.com/z5labs/greenhttp/loop"
	"github.com/z5labs/greenhttp/pkg/slogfield"

	"github.com/benbjohnson/clock"
)

// Scheduler is the event loop a Task is driven by. Schedule must queue f
// and never call it synchronously. Done is closed once the Scheduler stops
// running callbacks.
//
// [*loop.Loop] implements Scheduler.
type Scheduler interface {
	Schedule(f func()) error
	Done() <-chan struct{}
}

// Work is a unit of work run inside a Task. ctx carries the Task and must
// be passed to anything that suspends.
type Work func(ctx context.Context) error

// Finisher finalizes a unit of work once its Work has returned.
// Implementations must tolerate Finish being called more than once.
type Finisher interface {
	Finish()
}

// FinisherFunc adapts a func to the [Finisher] interface.
type FinisherFunc func()

// Finish implements the [Finisher] interface.
func (f FinisherFunc) Finish() { f() }

// Task is the execution context of one unit of work.
type Task struct {
	id    uint64
	sched Scheduler
	log   *slog.Logger
	clock clock.Clock

	state   atomic.Int32
	current atomic.Pointer[pending]

	resume  chan any
	yield   chan struct{}
	started chan struct{}
	done    chan struct{}
	err     error
}

type contextKey struct{}

// FromContext returns the Task carried by ctx.
func FromContext(ctx context.Context) (*Task, bool) {
	t, ok := ctx.Value(contextKey{}).(*Task)
	if !ok || t == nil || t.sched == nil {
		return nil, false
	}
	return t, true
}

// ID uniquely identifies the Task within its Driver.
func (t *Task) ID() uint64 {
	return t.id
}

// State reports the Task's current lifecycle state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Done is closed once the Task has been finalized.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the Task is finalized and returns the error its Work
// returned, or until ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.err
	}
}

func (t *Task) setState(s State) {
	t.state.Store(int32(s))
}

// start runs on the loop. It launches the Task and blocks the loop until
// the Task first parks or finishes.
func (t *Task) start(ctx context.Context, work Work, fin Finisher) {
	if !t.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return
	}
	close(t.started)
	t.log.DebugContext(ctx, "task started", slogfield.TaskID(t.id))

	go t.main(ctx, work, fin)
	<-t.yield
}

func (t *Task) main(ctx context.Context, work Work, fin Finisher) {
	err := runWork(ctx, work)
	t.setState(StateCompleted)
	if err != nil {
		t.log.ErrorContext(
			ctx,
			"task returned an error",
			slogfield.TaskID(t.id),
			slogfield.Error(err),
		)
	}

	t.finalize(ctx, err, fin)
	t.park()
}

// watchStart finalizes the Task with [loop.ErrClosed] if its Scheduler
// stops before the start callback runs. The work is never called.
func (t *Task) watchStart(ctx context.Context, fin Finisher) {
	select {
	case <-t.started:
		return
	case <-t.sched.Done():
	}
	if !t.state.CompareAndSwap(int32(StateCreated), int32(StateCompleted)) {
		return
	}

	t.log.WarnContext(ctx, "task dropped before it started", slogfield.TaskID(t.id))
	t.finalize(ctx, loop.ErrClosed, fin)
}

func (t *Task) finalize(ctx context.Context, err error, fin Finisher) {
	ferr := runFinish(fin)
	if ferr != nil {
		t.log.ErrorContext(
			ctx,
			"failed to finalize task",
			slogfield.TaskID(t.id),
			slogfield.Error(ferr),
		)
	}

	t.err = err
	t.setState(StateFinalized)
	t.log.DebugContext(ctx, "task finalized", slogfield.TaskID(t.id))
	close(t.done)
}

func runWork(ctx context.Context, work Work) (err error) {
	defer try.Recover(&err)
	return work(ctx)
}

func runFinish(fin Finisher) (err error) {
	defer try.Recover(&err)
	fin.Finish()
	return nil
}

// park hands control from the Task back to the loop.
func (t *Task) park() {
	select {
	case t.yield <- struct{}{}:
	case <-t.sched.Done():
	}
}

// switchIn runs on the loop. It delivers v to the Task parked on p and
// blocks the loop until the Task parks again or finishes.
func (t *Task) switchIn(p *pending, v any) {
	if !t.current.CompareAndSwap(p, nil) {
		t.log.Warn(
			"dropping value delivered for an abandoned operation",
			slogfield.TaskID(t.id),
			slogfield.TaskState(t.State().String()),
		)
		return
	}
	if !t.state.CompareAndSwap(int32(StateSuspended), int32(StateResumed)) {
		t.log.Warn(
			"dropping value delivered to a task that is not suspended",
			slogfield.TaskID(t.id),
			slogfield.TaskState(t.State().String()),
		)
		return
	}

	t.resume <- v
	<-t.yield
}
