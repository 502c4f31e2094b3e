// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig builds the OpenTelemetry tracer provider selected by
// configuration.
package otelconfig

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Exporter selects where spans are sent.
type Exporter string

const (
	ExporterNone        Exporter = "none"
	ExporterStdout      Exporter = "stdout"
	ExporterOTLP        Exporter = "otlp"
	ExporterGoogleCloud Exporter = "gcp"
)

// Config is the tracing section of the service configuration.
type Config struct {
	ServiceName string   `mapstructure:"service_name"`
	Exporter    Exporter `mapstructure:"exporter"`

	OTLP struct {
		// gRPC target of the collector, e.g. localhost:4317.
		Target string `mapstructure:"target"`
	} `mapstructure:"otlp"`

	GoogleCloud struct {
		ProjectID string `mapstructure:"project_id"`
	} `mapstructure:"gcp"`
}

type options struct {
	out io.Writer
}

// Option configures Init.
type Option func(*options)

// Writer sets where the stdout exporter writes spans.
//
// Default: os.Stdout
func Writer(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// UnknownExporterError is returned for an unsupported exporter name.
type UnknownExporterError struct {
	Exporter Exporter
}

// Error implements the [builtin.error] interface.
func (e UnknownExporterError) Error() string {
	return fmt.Sprintf("otelconfig: unknown exporter: %q", string(e.Exporter))
}

// Init builds the tracer provider described by cfg. The caller owns the
// returned provider and must Shutdown it to flush pending spans.
func Init(ctx context.Context, cfg Config, opts ...Option) (*sdktrace.TracerProvider, error) {
	o := &options{
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch cfg.Exporter {
	case "", ExporterNone:
		return sdktrace.NewTracerProvider(), nil
	case ExporterStdout:
		return initStdout(ctx, cfg, o.out)
	case ExporterOTLP:
		return initOTLP(ctx, cfg)
	case ExporterGoogleCloud:
		return initGoogleCloud(ctx, cfg)
	default:
		return nil, UnknownExporterError{Exporter: cfg.Exporter}
	}
}

func serviceResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
}

func initStdout(ctx context.Context, cfg Config, out io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
	)
	if err != nil {
		return nil, err
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, nil
}
