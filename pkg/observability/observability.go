// Copyright 2025 The Switchboard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability sets up tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/switchboard-dev/switchboard/pkg/config"
)

const tracerName = "switchboard"

// Manager owns the tracer provider and the metrics registry.
type Manager struct {
	cfg      config.ObservabilityConfig
	registry *prometheus.Registry
	shutdown func(context.Context) error

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	InvocationsTotal    *prometheus.CounterVec
	DroppedOutbound     prometheus.Counter
}

// New initializes tracing and registers the metric instruments.
func New(cfg config.ObservabilityConfig) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		shutdown: func(context.Context) error { return nil },
	}

	if cfg.TracingEnabled {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		m.shutdown = tp.Shutdown
	} else {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchboard_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "switchboard_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	m.InvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchboard_agent_invocations_total",
		Help: "Agent invocations by agent id and outcome.",
	}, []string{"agent_id", "outcome"})

	m.DroppedOutbound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "switchboard_dropped_outbound_total",
		Help: "Outbound messages dropped because no channel adapter matched.",
	})

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InvocationsTotal,
		m.DroppedOutbound,
	)

	return m, nil
}

// Tracer returns the named tracer from the global provider.
func (m *Manager) Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// MetricsEnabled reports whether /metrics should be exposed.
func (m *Manager) MetricsEnabled() bool {
	return m.cfg.MetricsEnabled
}

// MetricsHandler serves the registry in Prometheus exposition format.
func (m *Manager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes pending trace spans.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware traces each request and records the HTTP metrics.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.Tracer().Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		m.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
