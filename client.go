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
	"time"

	"github.com/z5labs/greenhttp/httpclient"
	"github.com/z5labs/greenhttp/internal/noop"
	"github.com/z5labs/greenhttp/loop"
	"github.com/z5labs/greenhttp/pkg/slogfield"
	"github.com/z5labs/greenhttp/task"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/greenhttp"

type options struct {
	loop       *loop.Loop
	httpClient *http.Client
	logHandler slog.Handler
	clock      clock.Clock
	onError    ErrorHandler
}

// Option configures a Client.
type Option func(*options)

// WithLoop sets the event loop which drives the Client's tasks.
//
// Default: [loop.Default]
func WithLoop(l *loop.Loop) Option {
	return func(o *options) {
		o.loop = l
	}
}

// HTTPClient sets the http.Client used to perform calls.
//
// Default: [httpclient.New]
func HTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// LogHandler sets the slog.Handler used by the Client and its tasks.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Clock sets the clock used to time calls and suspensions.
func Clock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// OnError sets how errors returned by an asynchronous handler are rendered.
//
// Default: a 500 response, unless the handler already wrote one.
func OnError(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
	}
}

// Client performs suspending HTTP calls and serves asynchronous handlers
// on a single event loop.
type Client struct {
	loop    *loop.Loop
	driver  *task.Driver
	async   *httpclient.Async
	log     *slog.Logger
	tracer  trace.Tracer
	onError ErrorHandler
}

// New returns a Client.
func New(opts ...Option) *Client {
	o := &options{
		logHandler: noop.LogHandler{},
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.loop == nil {
		o.loop = loop.Default()
	}

	log := slog.New(o.logHandler)
	if o.onError == nil {
		o.onError = defaultErrorHandler(log)
	}

	asyncOpts := []httpclient.Option{
		httpclient.LogHandler(o.logHandler),
		httpclient.Clock(o.clock),
	}
	if o.httpClient != nil {
		asyncOpts = append(asyncOpts, httpclient.Client(o.httpClient))
	}

	return &Client{
		loop: o.loop,
		driver: task.NewDriver(
			o.loop,
			task.LogHandler(o.logHandler),
			task.Clock(o.clock),
		),
		async:   httpclient.NewAsync(o.loop, asyncOpts...),
		log:     log,
		tracer:  otel.Tracer(instrumentationName),
		onError: o.onError,
	}
}

// Loop returns the event loop driving the Client's tasks.
func (c *Client) Loop() *loop.Loop {
	return c.loop
}

// Driver returns the task driver bound to the Client's loop.
func (c *Client) Driver() *task.Driver {
	return c.driver
}

// Fetch performs req and suspends the task carried by ctx until it
// completes.
//
// Any failure to get a 2xx response is returned as a [TransportError].
// If the server did answer, the error carries the adapted Response.
func (c *Client) Fetch(ctx context.Context, req *httpclient.Request) (*Response, error) {
	if req == nil {
		panic("greenhttp: nil request")
	}
	if _, ok := task.FromContext(ctx); !ok {
		return nil, ContextMisuseError{Op: "Fetch"}
	}

	ctx, span := c.tracer.Start(
		ctx,
		"greenhttp.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL),
		),
	)
	defer span.End()

	res, err := task.Await(ctx, func(resume func(*httpclient.Result) bool) {
		c.async.Fetch(ctx, req, func(res *httpclient.Result) {
			resume(res)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res.HasResponse() {
		span.SetAttributes(attribute.Int("http.status_code", res.Code))
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())

		terr := TransportError{Cause: res.Err}
		if res.HasResponse() {
			terr.Response = NewResponse(res)
		}
		c.log.WarnContext(
			ctx,
			"request failed",
			slogfield.Method(req.Method),
			slogfield.URL(req.URL),
			slogfield.StatusCode(res.Code),
			slogfield.Latency(res.RequestTime),
			slogfield.Error(res.Err),
		)
		return nil, terr
	}

	c.log.InfoContext(
		ctx,
		"request completed",
		slogfield.Method(req.Method),
		slogfield.URL(req.URL),
		slogfield.StatusCode(res.Code),
		slogfield.Latency(res.RequestTime),
	)
	return NewResponse(res), nil
}

// RequestOption configures a request made by the helper methods.
type RequestOption func(*httpclient.Request)

// Timeout bounds both connecting and the whole request by d.
func Timeout(d time.Duration) RequestOption {
	return func(r *httpclient.Request) {
		r.ConnectTimeout = d
		r.RequestTimeout = d
	}
}

// ConnectTimeout bounds establishing the connection by d.
func ConnectTimeout(d time.Duration) RequestOption {
	return func(r *httpclient.Request) {
		r.ConnectTimeout = d
	}
}

// RequestTimeout bounds the whole request by d.
func RequestTimeout(d time.Duration) RequestOption {
	return func(r *httpclient.Request) {
		r.RequestTimeout = d
	}
}

// Header adds a request header.
func Header(key, value string) RequestOption {
	return func(r *httpclient.Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Add(key, value)
	}
}

// Do performs a request with any method, including nonstandard ones.
//
// Unlike Fetch, a failed call which still got an answer from the server
// returns that Response with a nil error.
func (c *Client) Do(ctx context.Context, method, url string, data []byte, opts ...RequestOption) (*Response, error) {
	req := &httpclient.Request{
		Method: method,
		URL:    url,
		Body:   data,
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.Fetch(ctx, req)
	var terr TransportError
	if errors.As(err, &terr) && terr.Response != nil {
		return terr.Response, nil
	}
	return resp, err
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, opts...)
}

// Post performs a POST request with data as the body.
func (c *Client) Post(ctx context.Context, url string, data []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, data, opts...)
}

// Put performs a PUT request with data as the body.
func (c *Client) Put(ctx context.Context, url string, data []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, url, data, opts...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, url, nil, opts...)
}
