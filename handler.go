// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package greenhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/z5labs/greenhttp/internal/try"
	"github.com/z5labs/greenhttp/loop"
	"github.com/z5labs/greenhttp/pkg/slogfield"
)

// ResponseWriter is the http.ResponseWriter given to asynchronous handlers.
type ResponseWriter interface {
	http.ResponseWriter

	// Finish completes the response. Calling it more than once is a no-op.
	Finish()

	// Finished reports whether Finish has been called.
	Finished() bool

	// Written reports whether a status or body has been written.
	Written() bool
}

// HandlerFunc handles a request inside a task. Its request's context
// carries the task, so it can be passed to suspending calls.
type HandlerFunc func(w ResponseWriter, r *http.Request) error

// ErrorHandler renders an error returned by a HandlerFunc.
type ErrorHandler func(w ResponseWriter, r *http.Request, err error)

func defaultErrorHandler(log *slog.Logger) ErrorHandler {
	return func(w ResponseWriter, r *http.Request, err error) {
		log.ErrorContext(
			r.Context(),
			"asynchronous handler returned an error",
			slogfield.Method(r.Method),
			slogfield.URL(r.URL.String()),
			slogfield.Error(err),
		)
		if w.Written() {
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}
}

type responseWriter struct {
	http.ResponseWriter

	mu        sync.Mutex
	written   bool
	finished  bool
	abandoned bool
}

// Header returns a detached header map once the request has been
// abandoned, since the underlying writer may no longer be used.
func (w *responseWriter) Header() http.Header {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.abandoned {
		return make(http.Header)
	}
	return w.ResponseWriter.Header()
}

// abandon detaches the writer from the underlying response. Later writes
// fail with ErrFinished.
func (w *responseWriter) abandon() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abandoned = true
	w.finished = true
}

func (w *responseWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished || w.written {
		return
	}
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return 0, ErrFinished
	}
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return
	}
	w.finished = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok && w.written {
		f.Flush()
	}
}

func (w *responseWriter) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

func (w *responseWriter) Written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Asynchronous adapts h into an http.Handler which runs every request in
// its own task on the Client's loop. The response is finished once h
// returns; a returned error is first rendered by the Client's ErrorHandler.
//
// If the loop stops before the task starts the response is a 503. If the
// request's context is done first the handler returns right away and
// anything h writes afterwards is discarded.
func (c *Client) Asynchronous(h HandlerFunc) http.Handler {
	if h == nil {
		panic("greenhttp: nil handler")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w}

		t, err := c.driver.Go(r.Context(), func(ctx context.Context) error {
			req := r.WithContext(ctx)
			err := serve(h, rw, req)
			if err != nil {
				c.onError(rw, req, err)
			}
			return err
		}, rw)
		if err != nil {
			c.log.ErrorContext(
				r.Context(),
				"failed to start task for request",
				slogfield.URL(r.URL.String()),
				slogfield.Error(err),
			)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		select {
		case <-t.Done():
		case <-r.Context().Done():
			rw.abandon()
			return
		}

		err = t.Wait(context.Background())
		if errors.Is(err, loop.ErrClosed) && !rw.Written() {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}

func serve(h HandlerFunc, w ResponseWriter, r *http.Request) (err error) {
	defer try.Recover(&err)
	return h(w, r)
}
