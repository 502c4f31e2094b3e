// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package loop provides the single-threaded event loop that drives tasks.
//
// A Loop runs scheduled callbacks one at a time, in the order they were
// scheduled, on the goroutine that calls [Loop.Run] (or [Loop.RunUntilIdle]).
// Callbacks must not block for long: while one runs, nothing else on the
// Loop can.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/z5labs/greenhttp/internal/noop"
	"github.com/z5labs/greenhttp/internal/try"
	"github.com/z5labs/greenhttp/pkg/slogfield"
)

var (
	// ErrClosed is returned when scheduling onto a Loop whose Run has returned.
	ErrClosed = errors.New("loop: closed")

	// ErrAlreadyRunning is returned when Run or RunUntilIdle is called while
	// the Loop is already being driven by another call.
	ErrAlreadyRunning = errors.New("loop: already running")
)

type options struct {
	logHandler slog.Handler
}

// Option configures a Loop.
type Option func(*options)

// LogHandler sets the slog.Handler used for reporting callback panics.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Loop is a FIFO queue of callbacks drained by a single goroutine.
type Loop struct {
	log *slog.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	running atomic.Bool
	wake    chan struct{}
	done    chan struct{}
}

// New returns a Loop that is ready to accept callbacks. Nothing runs until
// Run or RunUntilIdle is called.
func New(opts ...Option) *Loop {
	o := &options{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Loop{
		log:  slog.New(o.logHandler),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

var (
	defaultOnce sync.Once
	defaultLoop *Loop
)

// Default returns the process-wide Loop. It is created and started on
// first use and runs for the lifetime of the process.
func Default() *Loop {
	defaultOnce.Do(func() {
		defaultLoop = New()
		go defaultLoop.Run(context.Background())
	})
	return defaultLoop
}

// Schedule queues f to run on the Loop. It never runs f synchronously and
// is safe for concurrent use.
func (l *Loop) Schedule(f func()) error {
	if f == nil {
		panic("loop: nil callback")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed once Run has returned. Callbacks scheduled afterwards are
// rejected with [ErrClosed].
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Healthy implements the health.Metric interface. A Loop is healthy while
// it is being driven by Run.
func (l *Loop) Healthy(ctx context.Context) bool {
	select {
	case <-l.done:
		return false
	default:
		return l.running.Load()
	}
}

// Run drives the Loop until ctx is cancelled. Once Run returns the Loop is
// closed and any callbacks still queued are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	defer l.close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if l.runBatch() > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// RunUntilIdle runs callbacks on the calling goroutine until the queue is
// empty, including callbacks scheduled while draining. It reports how many
// callbacks ran.
func (l *Loop) RunUntilIdle() (int, error) {
	if !l.running.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	defer l.running.Store(false)

	total := 0
	for {
		n := l.runBatch()
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

func (l *Loop) runBatch() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for i, f := range batch {
		batch[i] = nil
		l.invoke(f)
	}
	return len(batch)
}

func (l *Loop) invoke(f func()) {
	err := func() (err error) {
		defer try.Recover(&err)
		f()
		return nil
	}()
	if err != nil {
		l.log.Error("loop callback panicked", slogfield.Error(err))
	}
}

func (l *Loop) close() {
	l.mu.Lock()
	l.closed = true
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	close(l.done)
	if dropped > 0 {
		l.log.Warn("loop closed with callbacks still queued", slogfield.Int("dropped", dropped))
	}
}
