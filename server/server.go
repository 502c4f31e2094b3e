// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server provides the HTTP server runtime which drives an event
// loop alongside its listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/greenhttp/internal/noop"
	"github.com/z5labs/greenhttp/loop"
	"github.com/z5labs/greenhttp/pkg/health"
	"github.com/z5labs/greenhttp/pkg/slogfield"
	"github.com/z5labs/greenhttp/server/httpvalidate"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type options struct {
	port            uint
	mux             *http.ServeMux
	logHandler      slog.Handler
	loop            *loop.Loop
	readiness       health.Metric
	shutdownTimeout time.Duration
}

// Option configures a Runtime.
type Option func(*options)

// ListenOnPort will configure the HTTP server to listen on the given port.
//
// Default port is 8080.
func ListenOnPort(port uint) Option {
	return func(o *options) {
		o.port = port
	}
}

// LogHandler sets the slog.Handler used by the Runtime.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Handle registers a http.Handler for the given path pattern.
func Handle(pattern string, h http.Handler) Option {
	return func(o *options) {
		registerEndpoint(o.mux, pattern, h)
	}
}

// HandleFunc registers a http.HandlerFunc for the given path pattern.
func HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) Option {
	return func(o *options) {
		registerEndpoint(o.mux, pattern, http.HandlerFunc(f))
	}
}

// Loop sets the event loop driven by the Runtime. The loop keeps running
// until every in-flight request has been served during shutdown.
func Loop(l *loop.Loop) Option {
	return func(o *options) {
		o.loop = l
	}
}

// Readiness adds m to the conditions reported by the readiness endpoint.
func Readiness(m health.Metric) Option {
	return func(o *options) {
		o.readiness = m
	}
}

// ShutdownTimeout bounds how long in-flight requests are given to
// complete once the Runtime is told to stop.
//
// Default: 30 seconds
func ShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// Runtime serves HTTP and drives an event loop until its context is cancelled.
type Runtime struct {
	port            uint
	listen          func(string, string) (net.Listener, error)
	log             *slog.Logger
	h               http.Handler
	loop            *loop.Loop
	shutdownTimeout time.Duration

	started *health.Binary
}

// New returns a Runtime with the health endpoints
// /health/startup, /health/liveness and /health/readiness registered.
func New(opts ...Option) *Runtime {
	o := &options{
		port:            8080,
		mux:             http.NewServeMux(),
		logHandler:      noop.LogHandler{},
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	rt := &Runtime{
		port:            o.port,
		listen:          net.Listen,
		log:             slog.New(o.logHandler),
		h:               o.mux,
		loop:            o.loop,
		shutdownTimeout: o.shutdownTimeout,
		started:         &health.Binary{},
	}

	var loopHealth health.Metric
	if o.loop != nil {
		loopHealth = o.loop
	}

	registerHealth(o.mux, "/health/startup", rt.started)
	registerHealth(o.mux, "/health/liveness", health.And(rt.started, loopHealth))
	registerHealth(o.mux, "/health/readiness", health.And(rt.started, loopHealth, o.readiness))
	return rt
}

func registerHealth(mux *http.ServeMux, path string, m health.Metric) {
	registerEndpoint(
		mux,
		path,
		httpvalidate.Request(
			health.Handler(m),
			httpvalidate.ForMethods(http.MethodGet),
		),
	)
}

func registerEndpoint(mux *http.ServeMux, path string, h http.Handler) {
	mux.Handle(
		path,
		otelhttp.WithRouteTag(path, h),
	)
}

// Run serves HTTP until ctx is cancelled, then shuts the server down
// gracefully and stops the loop.
func (rt *Runtime) Run(ctx context.Context) error {
	ls, err := rt.listen("tcp", fmt.Sprintf(":%d", rt.port))
	if err != nil {
		rt.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return err
	}
	return rt.serve(ctx, ls)
}

func (rt *Runtime) serve(ctx context.Context, ls net.Listener) error {
	s := &http.Server{
		Handler: otelhttp.NewHandler(
			rt.h,
			"server",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		),
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	if rt.loop != nil {
		g.Go(func() error {
			return rt.runLoop(loopCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		defer stopLoop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()
		defer rt.log.Info("shut down service")

		rt.started.MarkUnhealthy()
		rt.log.Info("shutting down service")
		return s.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		rt.started.MarkHealthy()
		rt.log.Info("started service", slogfield.String("addr", ls.Addr().String()))
		return s.Serve(ls)
	})

	err := g.Wait()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	rt.log.Error("service encountered unexpected error", slogfield.Error(err))
	return err
}

func (rt *Runtime) runLoop(ctx context.Context) error {
	err := rt.loop.Run(ctx)
	if errors.Is(err, loop.ErrAlreadyRunning) {
		// the loop is driven elsewhere, e.g. the process-wide loop
		<-ctx.Done()
		return nil
	}
	return err
}
