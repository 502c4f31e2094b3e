// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/z5labs/greenhttp/internal/try"
	"github.com/z5labs/greenhttp/pkg/slogfield"

	"github.com/benbjohnson/clock"
)

// Scheduler runs callbacks on the event loop.
type Scheduler interface {
	Schedule(f func()) error
}

// Client sets the http.Client used by Async instead of building one from
// the other options.
func Client(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// Clock sets the clock used to time requests and their log records.
func Clock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Async performs requests off the event loop and delivers their results
// back onto it.
type Async struct {
	sched  Scheduler
	client *http.Client
	log    *slog.Logger
	clock  clock.Clock
}

// NewAsync returns an Async which delivers results through s.
func NewAsync(s Scheduler, opts ...Option) *Async {
	o := newOptions(opts...)

	client := o.client
	if client == nil {
		client = newClient(o)
	}
	return &Async{
		sched:  s,
		client: client,
		log:    o.logger(),
		clock:  o.clock,
	}
}

// Fetch starts req and returns immediately. cb is called exactly once, on
// the event loop, with the result. If the event loop has stopped by the
// time the result is ready, cb is never called and the result is logged.
func (a *Async) Fetch(ctx context.Context, req *Request, cb func(*Result)) {
	if req == nil {
		panic("httpclient: nil request")
	}
	if cb == nil {
		panic("httpclient: nil callback")
	}

	go func() {
		res := a.do(ctx, req)
		err := a.sched.Schedule(func() {
			cb(res)
		})
		if err != nil {
			a.log.ErrorContext(
				ctx,
				"failed to deliver http result",
				slogfield.URL(req.URL),
				slogfield.Error(err),
			)
		}
	}()
}

func (a *Async) do(ctx context.Context, req *Request) *Result {
	res := &Result{Request: req}
	start := a.clock.Now()

	if req.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.RequestTimeout)
		defer cancel()
	}
	if req.ConnectTimeout > 0 {
		ctx = WithConnectTimeout(ctx, req.ConnectTimeout)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		res.Err = err
		res.RequestTime = a.clock.Since(start)
		return res
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(hreq)
	if err != nil {
		res.Err = err
		res.RequestTime = a.clock.Since(start)
		return res
	}
	res.Code = resp.StatusCode
	res.Header = resp.Header

	b, err := try.ReadAllAndClose(resp.Body)
	res.Body = b
	res.RequestTime = a.clock.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Err = StatusError{Code: resp.StatusCode}
	}
	return res
}
