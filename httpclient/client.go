// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpclient provides the http.Client and the asynchronous request
// executor used to perform HTTP calls on behalf of suspended tasks.
package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/greenhttp/internal/noop"
	"github.com/z5labs/greenhttp/pkg/slogfield"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type circuitOptions struct {
	maxRequests uint32
	interval    time.Duration
	timeout     time.Duration
	tripCount   uint32
	statusCodes []int
}

func withCircuitOption(f func(*circuitOptions)) Option {
	return func(o *options) {
		if o.co == nil {
			o.co = &circuitOptions{
				maxRequests: 1,
				timeout:     60 * time.Second,
				tripCount:   5,
			}
		}
		f(o.co)
	}
}

// HalfOpenRequests is the maximum number of requests allowed through while
// the circuit is half open.
func HalfOpenRequests(n uint32) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.maxRequests = n
	})
}

// OpenStateTimeout is how long the circuit stays open before becoming half open.
func OpenStateTimeout(d time.Duration) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.timeout = d
	})
}

// CountResetInterval is the cyclic period of the closed state after which
// the failure counts are cleared. Zero never clears them.
func CountResetInterval(d time.Duration) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.interval = d
	})
}

// TripAfter opens the circuit after n consecutive failures.
func TripAfter(n uint32) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.tripCount = n
	})
}

// TripOnStatusCodes registers response status codes which the circuit
// breaker counts as failures. The response itself is still returned.
//
// Default: 400, 401, 403, 500
func TripOnStatusCodes(codes ...int) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.statusCodes = append(co.statusCodes, codes...)
	})
}

type retryOptions struct {
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
}

// RetryOption configures request retries.
type RetryOption func(*retryOptions)

// MaxRetries is the maximum number of retries after the first attempt.
func MaxRetries(n int) RetryOption {
	return func(ro *retryOptions) {
		ro.maxRetries = n
	}
}

// MinWait is the minimum backoff between attempts.
func MinWait(d time.Duration) RetryOption {
	return func(ro *retryOptions) {
		ro.waitMin = d
	}
}

// MaxWait is the maximum backoff between attempts.
func MaxWait(d time.Duration) RetryOption {
	return func(ro *retryOptions) {
		ro.waitMax = d
	}
}

// Retry retries failed requests with exponential backoff.
func Retry(opts ...RetryOption) Option {
	return func(o *options) {
		ro := &retryOptions{
			maxRetries: 2,
			waitMin:    100 * time.Millisecond,
			waitMax:    5 * time.Second,
		}
		for _, opt := range opts {
			opt(ro)
		}
		o.ro = ro
	}
}

type options struct {
	timeout time.Duration
	rt      http.RoundTripper

	name       string
	logHandler slog.Handler

	co *circuitOptions
	ro *retryOptions

	client *http.Client
	clock  clock.Clock
}

// Option configures the http.Client returned by New and the Async executor.
type Option func(*options)

// Name names the client in its log records and circuit breaker.
func Name(s string) Option {
	return func(o *options) {
		o.name = s
	}
}

// RoundTripper replaces the default transport. A custom transport does not
// honour [Request.ConnectTimeout].
func RoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.rt = rt
	}
}

// Timeout provides a global timeout value for the http.Client.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// LogHandler sets the slog.Handler for the client's log records.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		logHandler: noop.LogHandler{},
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) logger() *slog.Logger {
	logger := slog.New(o.logHandler)
	if o.name != "" {
		logger = logger.With(slogfield.String("http_client", o.name))
	}
	return logger
}

// New returns an http.Client instrumented with OpenTelemetry and
// optionally guarded by a circuit breaker and request retries.
func New(opts ...Option) *http.Client {
	return newClient(newOptions(opts...))
}

func newClient(o *options) *http.Client {
	logger := o.logger()

	base := o.rt
	if base == nil {
		base = defaultTransport()
	}

	var rt http.RoundTripper = &logRoundTripper{
		base:  otelhttp.NewTransport(base),
		log:   logger,
		clock: o.clock,
	}
	if o.co != nil {
		rt = newCircuitRoundTripper(rt, o.name, o.co, logger)
	}

	c := &http.Client{
		Timeout:   o.timeout,
		Transport: rt,
	}
	if o.ro == nil {
		return c
	}

	ro := o.ro
	rc := retryablehttp.Client{
		HTTPClient:   c,
		Logger:       nil,
		RetryWaitMin: ro.waitMin,
		RetryWaitMax: ro.waitMax,
		RetryMax:     ro.maxRetries,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt == 0 {
				return
			}
			logger.WarnContext(
				req.Context(),
				"retrying http request",
				slogfield.URL(req.URL.String()),
				slogfield.Int("request_attempt_count", attempt),
			)
		},
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return rc.StandardClient()
}

type connectTimeoutKey struct{}

// WithConnectTimeout bounds how long establishing the connection for a
// request made with ctx may take.
func WithConnectTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, connectTimeoutKey{}, d)
}

func connectTimeout(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(connectTimeoutKey{}).(time.Duration)
	return d, ok && d > 0
}

func defaultTransport() http.RoundTripper {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d, ok := connectTimeout(ctx)
		if !ok {
			return dialer.DialContext(ctx, network, addr)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return dialer.DialContext(ctx, network, addr)
	}
	return t
}

type logRoundTripper struct {
	base  http.RoundTripper
	log   *slog.Logger
	clock clock.Clock
}

func (rt *logRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := rt.clock.Now()
	rt.log.DebugContext(
		ctx,
		"request sent",
		slogfield.Method(req.Method),
		slogfield.URL(req.URL.String()),
	)
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		rt.log.WarnContext(
			ctx,
			"request failed",
			slogfield.Method(req.Method),
			slogfield.URL(req.URL.String()),
			slogfield.Error(err),
		)
		return nil, err
	}
	rt.log.DebugContext(
		ctx,
		"response received",
		slogfield.Method(req.Method),
		slogfield.URL(req.URL.String()),
		slogfield.StatusCode(resp.StatusCode),
		slogfield.Latency(rt.clock.Since(start)),
	)
	return resp, nil
}

type tripStatusError struct {
	code int
}

func (e tripStatusError) Error() string {
	return http.StatusText(e.code)
}

type circuitRoundTripper struct {
	base  http.RoundTripper
	cb    *gobreaker.CircuitBreaker
	codes map[int]struct{}
}

func newCircuitRoundTripper(base http.RoundTripper, name string, co *circuitOptions, logger *slog.Logger) *circuitRoundTripper {
	statusCodes := co.statusCodes
	if len(statusCodes) == 0 {
		statusCodes = []int{
			http.StatusBadRequest,          // 400
			http.StatusUnauthorized,        // 401
			http.StatusForbidden,           // 403
			http.StatusInternalServerError, // 500
		}
	}
	codes := make(map[int]struct{}, len(statusCodes))
	for _, code := range statusCodes {
		codes[code] = struct{}{}
	}

	return &circuitRoundTripper{
		base:  base,
		codes: codes,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: co.maxRequests,
			Interval:    co.interval,
			Timeout:     co.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= co.tripCount
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				switch to {
				case gobreaker.StateOpen:
					logger.Error("circuit has been opened")
				case gobreaker.StateHalfOpen:
					logger.Warn(
						"circuit is now half open and letting some requests through",
						slogfield.Uint64("max_requests_allowed_through", uint64(co.maxRequests)),
					)
				case gobreaker.StateClosed:
					logger.Info("circuit has been closed")
				}
			},
		}),
	}
}

func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := rt.cb.Execute(func() (interface{}, error) {
		r, err := rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if _, ok := rt.codes[r.StatusCode]; ok {
			return nil, tripStatusError{code: r.StatusCode}
		}
		return r, nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}
