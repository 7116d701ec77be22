// Package telemetry exposes the gateway's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestTotal        *prometheus.CounterVec
	UpstreamLatencyMs   *prometheus.HistogramVec
	TokensTotal         *prometheus.CounterVec
	StreamEventsTotal   *prometheus.CounterVec
	StreamOverflowTotal prometheus.Counter
	KeySelectionTotal   *prometheus.CounterVec
	KeysTracked         prometheus.Gauge
	RateLimitHits       prometheus.Counter
}

// New creates and registers all gateway metrics on the given registerer;
// pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_request_total",
			Help: "Total requests processed, by inbound protocol, status, and stream flag.",
		}, []string{"protocol", "status", "stream"}),

		UpstreamLatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prism_upstream_latency_ms",
			Help:    "Upstream call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_tokens_total",
			Help: "Total tokens processed, by direction.",
		}, []string{"protocol", "direction"}),

		StreamEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_stream_events_total",
			Help: "Total upstream stream events relayed, by inbound protocol.",
		}, []string{"protocol"}),

		StreamOverflowTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_stream_buffer_overflow_total",
			Help: "Times the relay buffer cap was exceeded and data was discarded.",
		}),

		KeySelectionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_key_selection_total",
			Help: "Credential selections, by selection reason.",
		}, []string{"reason"}),

		KeysTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_keys_tracked",
			Help: "Number of credentials currently tracked by the key pool.",
		}),

		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_rate_limit_hits_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),
	}
}

// RequestLabels holds the values recorded for one completed request.
type RequestLabels struct {
	Protocol         string
	Status           string
	Stream           bool
	Model            string
	LatencyMs        float64
	PromptTokens     int
	CompletionTokens int
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(l RequestLabels) {
	stream := "false"
	if l.Stream {
		stream = "true"
	}
	m.RequestTotal.WithLabelValues(l.Protocol, l.Status, stream).Inc()
	m.UpstreamLatencyMs.WithLabelValues(l.Model).Observe(l.LatencyMs)
	if l.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Protocol, "prompt").Add(float64(l.PromptTokens))
	}
	if l.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Protocol, "completion").Add(float64(l.CompletionTokens))
	}
}

// RecordStream records relay stats for one finished stream.
func (m *Metrics) RecordStream(protocol string, events, overflows int) {
	m.StreamEventsTotal.WithLabelValues(protocol).Add(float64(events))
	if overflows > 0 {
		m.StreamOverflowTotal.Add(float64(overflows))
	}
}

// RecordSelection records one credential selection.
func (m *Metrics) RecordSelection(reason string) {
	m.KeySelectionTotal.WithLabelValues(reason).Inc()
}
