// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides composable health metrics for probe endpoints.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc adapts a func to the Metric interface.
type MetricFunc func(context.Context) bool

// Healthy implements the Metric interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary is a Metric which is explicitly marked healthy or unhealthy.
// The zero value is unhealthy.
type Binary struct {
	healthy atomic.Bool
}

// MarkHealthy sets the state to healthy.
func (m *Binary) MarkHealthy() {
	m.healthy.Store(true)
}

// MarkUnhealthy sets the state to unhealthy.
func (m *Binary) MarkUnhealthy() {
	m.healthy.Store(false)
}

// Healthy implements the Metric interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return m.healthy.Load()
}

// And returns a Metric which is healthy only while every one of metrics is.
// Nil metrics are skipped.
func And(metrics ...Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		for _, m := range metrics {
			if m != nil && !m.Healthy(ctx) {
				return false
			}
		}
		return true
	})
}

// Or returns a Metric which is healthy while any one of metrics is.
func Or(metrics ...Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		for _, m := range metrics {
			if m != nil && m.Healthy(ctx) {
				return true
			}
		}
		return false
	})
}

// Handler reports m over HTTP: 200 while healthy, 503 otherwise.
func Handler(m Metric) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Healthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
}
