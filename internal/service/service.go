// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package service wires the greenhttp proxy service together.
package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/z5labs/greenhttp"
	"github.com/z5labs/greenhttp/httpclient"
	"github.com/z5labs/greenhttp/internal/try"
	"github.com/z5labs/greenhttp/loop"
	"github.com/z5labs/greenhttp/pkg/otelconfig"
	"github.com/z5labs/greenhttp/pkg/slogfield"
	"github.com/z5labs/greenhttp/server"
	"github.com/z5labs/greenhttp/server/httpvalidate"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type options struct {
	stdout io.Writer
}

// Option configures a Service.
type Option func(*options)

// Stdout sets where logs and stdout spans are written.
//
// Default: os.Stdout
func Stdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// Service is the proxy service: an HTTP server whose handlers fetch
// upstream URLs from tasks on a single event loop.
type Service struct {
	log       *slog.Logger
	logCloser io.Closer
	tp        *sdktrace.TracerProvider
	rt        *server.Runtime
}

// New builds a Service from cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	o := &options{
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	logHandler, logCloser := newLogHandler(cfg.Log, o.stdout)
	log := slog.New(logHandler)

	tp, err := otelconfig.Init(ctx, cfg.Tracing, otelconfig.Writer(o.stdout))
	if err != nil {
		try.Close(&err, logCloser)
		return nil, errors.Wrap(err, "failed to initialize tracing")
	}
	otel.SetTracerProvider(tp)

	l := loop.New(loop.LogHandler(logHandler))
	greenhttp.SetEventLoop(l)

	c := greenhttp.New(
		greenhttp.WithLoop(l),
		greenhttp.LogHandler(logHandler),
		greenhttp.HTTPClient(newHTTPClient(cfg.Client, logHandler)),
		greenhttp.OnError(errorHandler(log)),
	)

	p := &proxy{
		client:  c,
		timeout: cfg.Proxy.Timeout,
	}

	rt := server.New(
		server.ListenOnPort(cfg.Port),
		server.LogHandler(logHandler),
		server.ShutdownTimeout(cfg.ShutdownTimeout),
		server.Loop(l),
		server.Handle("/proxy", proxyEndpoint(c, p.fetch)),
		server.Handle("/proxy/timeout", proxyEndpoint(c, p.fetchWithTimeout)),
	)

	return &Service{
		log:       log,
		logCloser: logCloser,
		tp:        tp,
		rt:        rt,
	}, nil
}

func proxyEndpoint(c *greenhttp.Client, h greenhttp.HandlerFunc) http.Handler {
	return httpvalidate.Request(
		c.Asynchronous(h),
		httpvalidate.ForMethods(http.MethodGet),
		httpvalidate.MinimumParams("url"),
		httpvalidate.AbsoluteURLParam("url"),
	)
}

func newHTTPClient(cfg ClientConfig, h slog.Handler) *http.Client {
	opts := []httpclient.Option{
		httpclient.Name("upstream"),
		httpclient.LogHandler(h),
		httpclient.Timeout(cfg.Timeout),
	}
	if cfg.Retry.Enabled {
		opts = append(opts, httpclient.Retry(
			httpclient.MaxRetries(cfg.Retry.MaxRetries),
			httpclient.MinWait(cfg.Retry.MinWait),
			httpclient.MaxWait(cfg.Retry.MaxWait),
		))
	}
	if cfg.Circuit.Enabled {
		opts = append(
			opts,
			httpclient.TripAfter(cfg.Circuit.TripAfter),
			httpclient.OpenStateTimeout(cfg.Circuit.OpenStateTimeout),
		)
	}
	return httpclient.New(opts...)
}

// Run serves until ctx is cancelled, then flushes spans and closes the
// log output.
func (s *Service) Run(ctx context.Context) (err error) {
	defer try.Close(&err, s.logCloser)
	defer func() {
		shutdownErr := s.tp.Shutdown(context.Background())
		if shutdownErr != nil {
			s.log.Error("failed to shutdown tracer provider", slogfield.Error(shutdownErr))
		}
	}()

	return s.rt.Run(ctx)
}
