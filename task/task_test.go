// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package task

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/greenhttp/internal/try"
	"github.com/z5labs/greenhttp/loop"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runLoop(t *testing.T) *loop.Loop {
	l := loop.New()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return l
}

func waitFor(t *testing.T, tk *Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := tk.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func TestDriver_Go(t *testing.T) {
	t.Run("will run the work and finalize the task", func(t *testing.T) {
		t.Run("if the work returns without suspending", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var finished atomic.Int32
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				cur, ok := FromContext(ctx)
				if !assert.True(t, ok) {
					return nil
				}
				assert.Equal(t, StateRunning, cur.State())
				return nil
			}, FinisherFunc(func() { finished.Add(1) }))
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.NoError(t, err)
			assert.Equal(t, int32(1), finished.Load())
			assert.Equal(t, StateFinalized, tk.State())
		})
	})

	t.Run("will surface the error returned by the work", func(t *testing.T) {
		t.Run("if the work fails", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			workErr := errors.New("failed")
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				return workErr
			}, nil)
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.ErrorIs(t, err, workErr)
		})

		t.Run("if the work panics", func(t *testing.T) {
			var buf bytes.Buffer
			l := runLoop(t)
			d := NewDriver(l, LogHandler(slog.NewJSONHandler(&buf, nil)))

			finished := false
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				panic("boom")
			}, FinisherFunc(func() { finished = true }))
			require.NoError(t, err)

			err = waitFor(t, tk)

			var perr try.PanicError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "boom", perr.Value)
			assert.True(t, finished)
			assert.Contains(t, buf.String(), "task returned an error")
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the loop is already closed", func(t *testing.T) {
			l := loop.New()
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := l.Run(ctx)
			require.NoError(t, err)

			d := NewDriver(l)
			_, err = d.Go(context.Background(), func(ctx context.Context) error {
				return nil
			}, nil)
			require.ErrorIs(t, err, loop.ErrClosed)
		})
	})

	t.Run("will assign increasing ids", func(t *testing.T) {
		t.Run("if several tasks are started", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var ids []uint64
			for range 3 {
				tk, err := d.Go(context.Background(), func(ctx context.Context) error {
					return nil
				}, nil)
				require.NoError(t, err)
				require.NoError(t, waitFor(t, tk))
				ids = append(ids, tk.ID())
			}
			assert.Equal(t, []uint64{1, 2, 3}, ids)
		})
	})
}

func TestAwait(t *testing.T) {
	t.Run("will resume the task with the delivered value", func(t *testing.T) {
		t.Run("if the value is delivered from another goroutine", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var got string
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				v, err := Await(ctx, func(resume func(string) bool) {
					go resume("hello")
				})
				if err != nil {
					return err
				}
				got = v
				return nil
			}, nil)
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.NoError(t, err)
			assert.Equal(t, "hello", got)
		})

		t.Run("if the value is delivered synchronously", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var got int
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				v, err := Await(ctx, func(resume func(int) bool) {
					resume(42)
				})
				got = v
				return err
			}, nil)
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.NoError(t, err)
			assert.Equal(t, 42, got)
		})
	})

	t.Run("will only accept the first delivery", func(t *testing.T) {
		t.Run("if resume is called more than once", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var first, second bool
			var got int
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				v, err := Await(ctx, func(resume func(int) bool) {
					first = resume(1)
					second = resume(2)
				})
				got = v
				return err
			}, nil)
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.NoError(t, err)
			assert.True(t, first)
			assert.False(t, second)
			assert.Equal(t, 1, got)
		})
	})

	t.Run("will resume in call order", func(t *testing.T) {
		t.Run("if the task awaits sequentially", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var got []int
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				for i := range 3 {
					v, err := Await(ctx, func(resume func(int) bool) {
						go resume(i * 10)
					})
					if err != nil {
						return err
					}
					got = append(got, v)
				}
				return nil
			}, nil)
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.NoError(t, err)
			assert.Equal(t, []int{0, 10, 20}, got)
		})
	})

	t.Run("will never run two tasks at once", func(t *testing.T) {
		t.Run("if many tasks are suspended and resumed concurrently", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var active, maxActive atomic.Int32
			enter := func() {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
			}
			leave := func() { active.Add(-1) }

			var tasks []*Task
			for range 20 {
				tk, err := d.Go(context.Background(), func(ctx context.Context) error {
					for range 5 {
						enter()
						time.Sleep(100 * time.Microsecond)
						leave()

						_, err := Await(ctx, func(resume func(struct{}) bool) {
							go resume(struct{}{})
						})
						if err != nil {
							return err
						}
					}
					return nil
				}, nil)
				require.NoError(t, err)
				tasks = append(tasks, tk)
			}

			for _, tk := range tasks {
				require.NoError(t, waitFor(t, tk))
			}
			assert.Equal(t, int32(1), maxActive.Load())
		})
	})

	t.Run("will return a ContextMisuseError", func(t *testing.T) {
		t.Run("if the context does not carry a task", func(t *testing.T) {
			called := false
			_, err := Await(context.Background(), func(resume func(int) bool) {
				called = true
			})

			var merr ContextMisuseError
			require.ErrorAs(t, err, &merr)
			assert.False(t, called)
		})

		t.Run("if the task has already completed", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var taskCtx context.Context
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				taskCtx = ctx
				return nil
			}, nil)
			require.NoError(t, err)
			require.NoError(t, waitFor(t, tk))

			_, err = Await(taskCtx, func(resume func(int) bool) {})

			var merr ContextMisuseError
			require.ErrorAs(t, err, &merr)
		})
	})

	t.Run("will return a ConcurrentAwaitError", func(t *testing.T) {
		t.Run("if the task is already suspended", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var concurrentErr error
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				_, err := Await(ctx, func(resume func(int) bool) {
					go func() {
						_, concurrentErr = Await(ctx, func(func(int) bool) {})
						resume(1)
					}()
				})
				return err
			}, nil)
			require.NoError(t, err)

			err = waitFor(t, tk)
			require.NoError(t, err)

			var cerr ConcurrentAwaitError
			require.ErrorAs(t, concurrentErr, &cerr)
			assert.Equal(t, tk.ID(), cerr.TaskID)
			assert.Equal(t, StateSuspended, cerr.State)
		})
	})

	t.Run("will return loop.ErrClosed", func(t *testing.T) {
		t.Run("if the loop stops while the task is suspended", func(t *testing.T) {
			l := loop.New()
			ctx, cancel := context.WithCancel(context.Background())
			runDone := make(chan struct{})
			go func() {
				defer close(runDone)
				l.Run(ctx)
			}()

			d := NewDriver(l)
			parked := make(chan struct{})
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				_, err := Await(ctx, func(resume func(int) bool) {
					close(parked)
				})
				return err
			}, nil)
			require.NoError(t, err)

			<-parked
			cancel()
			<-runDone

			err = waitFor(t, tk)
			require.ErrorIs(t, err, loop.ErrClosed)
		})

		t.Run("if the loop stops with several tasks suspended", func(t *testing.T) {
			l := loop.New()
			ctx, cancel := context.WithCancel(context.Background())
			runDone := make(chan struct{})
			go func() {
				defer close(runDone)
				l.Run(ctx)
			}()

			d := NewDriver(l)
			var parked sync.WaitGroup
			tasks := make([]*Task, 3)
			for i := range tasks {
				parked.Add(1)
				tk, err := d.Go(context.Background(), func(ctx context.Context) error {
					_, err := Await(ctx, func(resume func(int) bool) {
						parked.Done()
					})
					return err
				}, nil)
				require.NoError(t, err)
				tasks[i] = tk
			}

			parked.Wait()
			cancel()
			<-runDone

			for _, tk := range tasks {
				require.ErrorIs(t, waitFor(t, tk), loop.ErrClosed)
				assert.Equal(t, StateFinalized, tk.State())
			}
		})

		t.Run("if the loop stops before the task starts", func(t *testing.T) {
			l := loop.New()
			d := NewDriver(l)

			var ran atomic.Bool
			var finished atomic.Int32
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				ran.Store(true)
				return nil
			}, FinisherFunc(func() {
				finished.Add(1)
			}))
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.NoError(t, l.Run(ctx))

			err = waitFor(t, tk)
			require.ErrorIs(t, err, loop.ErrClosed)
			assert.False(t, ran.Load())
			assert.Equal(t, int32(1), finished.Load())
			assert.Equal(t, StateFinalized, tk.State())
		})
	})

	t.Run("will put the task back into the running state", func(t *testing.T) {
		t.Run("if start panics", func(t *testing.T) {
			l := runLoop(t)
			d := NewDriver(l)

			var after State
			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				func() {
					defer func() { recover() }()
					Await(ctx, func(resume func(int) bool) {
						panic("start failed")
					})
				}()

				cur, _ := FromContext(ctx)
				after = cur.State()
				return nil
			}, nil)
			require.NoError(t, err)

			require.NoError(t, waitFor(t, tk))
			assert.Equal(t, StateRunning, after)
		})
	})

	t.Run("will log the suspension latency", func(t *testing.T) {
		t.Run("if the task is resumed", func(t *testing.T) {
			var buf bytes.Buffer
			var mu sync.Mutex
			w := writerFunc(func(b []byte) (int, error) {
				mu.Lock()
				defer mu.Unlock()
				return buf.Write(b)
			})

			clk := clock.NewMock()
			l := runLoop(t)
			d := NewDriver(
				l,
				LogHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
				Clock(clk),
			)

			tk, err := d.Go(context.Background(), func(ctx context.Context) error {
				_, err := Await(ctx, func(resume func(int) bool) {
					clk.Add(250 * time.Millisecond)
					resume(1)
				})
				return err
			}, nil)
			require.NoError(t, err)
			require.NoError(t, waitFor(t, tk))

			mu.Lock()
			defer mu.Unlock()
			assert.Contains(t, buf.String(), `"msg":"task resumed"`)
			assert.Contains(t, buf.String(), `"latency":250000000`)
		})
	})
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }
