// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package task

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/z5labs/greenhttp/loop"
	"github.com/z5labs/greenhttp/pkg/slogfield"
)

// pending is one in-flight operation owned by a suspended Task.
type pending struct {
	task      *Task
	started   time.Time
	delivered atomic.Bool
}

// deliver hands v to the loop, which switches it into the Task. Only the
// first delivery is accepted.
func (p *pending) deliver(v any) bool {
	if !p.delivered.CompareAndSwap(false, true) {
		return false
	}

	t := p.task
	err := t.sched.Schedule(func() {
		t.log.Debug(
			"task resumed",
			slogfield.TaskID(t.id),
			slogfield.Latency(t.clock.Since(p.started)),
		)
		t.switchIn(p, v)
	})
	if err != nil {
		t.log.Warn(
			"failed to schedule task resumption",
			slogfield.TaskID(t.id),
			slogfield.Error(err),
		)
		return false
	}
	return true
}

// Await suspends the Task carried by ctx until the operation begun by start
// delivers a value.
//
// start is called on the Task with a resume func. Calling resume delivers
// its argument to the Task; only the first call counts and later calls
// report false. resume may be called from any goroutine, including
// synchronously from start.
//
// Await fails with [ContextMisuseError] if ctx does not carry a live Task,
// with [ConcurrentAwaitError] if the Task is already suspended, and with
// [loop.ErrClosed] if the loop stops while the Task is parked.
//
// Once the loop has stopped, Tasks woken with [loop.ErrClosed] continue on
// their own goroutines in parallel with each other. Code running after
// such an error must not assume exclusive access to state shared with
// other Tasks.
func Await[T any](ctx context.Context, start func(resume func(T) bool)) (T, error) {
	var zero T

	t, ok := FromContext(ctx)
	if !ok {
		return zero, ContextMisuseError{Op: "Await"}
	}
	if start == nil {
		panic("task: nil start func")
	}

	if !t.state.CompareAndSwap(int32(StateRunning), int32(StateSuspended)) {
		switch s := t.State(); s {
		case StateCompleted, StateFinalized:
			return zero, ContextMisuseError{Op: "Await"}
		default:
			return zero, ConcurrentAwaitError{TaskID: t.id, State: s}
		}
	}

	p := &pending{
		task:    t,
		started: t.clock.Now(),
	}
	t.current.Store(p)
	t.begin(p, func() {
		start(func(v T) bool {
			return p.deliver(v)
		})
	})
	t.log.DebugContext(ctx, "task suspended", slogfield.TaskID(t.id))

	v, err := t.suspend()
	if err != nil {
		return zero, err
	}
	tv, _ := v.(T)
	return tv, nil
}

// begin calls start on the Task. If start panics the pending operation is
// abandoned and the Task is put back into the running state before the
// panic continues.
func (t *Task) begin(p *pending, start func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		p.delivered.Store(true)
		t.current.CompareAndSwap(p, nil)
		t.setState(StateRunning)
		panic(r)
	}()

	start()
}

func (t *Task) suspend() (any, error) {
	t.park()

	select {
	case v := <-t.resume:
		t.setState(StateRunning)
		return v, nil
	case <-t.sched.Done():
		t.current.Store(nil)
		t.setState(StateRunning)
		return nil, loop.ErrClosed
	}
}
