// Package metrics defines the Prometheus collectors of the gateway and the
// authorizer. Each process owns its registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cardflow"

type Gateway struct {
	Submissions     *prometheus.CounterVec
	Responses       *prometheus.CounterVec
	Evictions       *prometheus.CounterVec
	PublishFailures prometheus.Counter
	BreakerChanges  *prometheus.CounterVec
	RateLimited     prometheus.Counter
	WaitDuration    prometheus.Histogram
	registry        *prometheus.Registry
}

func NewGateway() *Gateway {
	m := &Gateway{
		registry: prometheus.NewRegistry(),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "submissions_total",
			Help:      "Authorization submissions by outcome",
		}, []string{"outcome"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "responses_total",
			Help:      "Messages read from the response channel by result",
		}, []string{"result"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "correlation_evictions_total",
			Help:      "Correlation entries dropped after their TTL",
		}, []string{"reason"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "publish_failures_total",
			Help:      "Requests that could not be published",
		}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Publish circuit breaker state transitions",
		}, []string{"from", "to"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rate_limited_total",
			Help:      "Submissions rejected by the rate limiter",
		}),
		WaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a correlated response",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	m.registry.MustRegister(
		m.Submissions,
		m.Responses,
		m.Evictions,
		m.PublishFailures,
		m.BreakerChanges,
		m.RateLimited,
		m.WaitDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// TrackPending exposes the number of live correlation entries.
func (m *Gateway) TrackPending(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "correlation_entries",
		Help:      "Correlation ids currently tracked",
	}, func() float64 { return float64(size()) }))
}

func (m *Gateway) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

type Authorizer struct {
	Decisions          *prometheus.CounterVec
	DecodeFailures     prometheus.Counter
	Replays            prometheus.Counter
	ProcessingDuration prometheus.Histogram
	registry           *prometheus.Registry
}

func NewAuthorizer() *Authorizer {
	m := &Authorizer{
		registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authorizer",
			Name:      "decisions_total",
			Help:      "Authorization decisions by response code",
		}, []string{"response_code"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authorizer",
			Name:      "decode_failures_total",
			Help:      "Request messages that could not be decoded",
		}),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authorizer",
			Name:      "replays_total",
			Help:      "Redelivered requests answered from the decision journal",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authorizer",
			Name:      "processing_duration_seconds",
			Help:      "Time from receiving a request to publishing its response",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		}),
	}

	m.registry.MustRegister(
		m.Decisions,
		m.DecodeFailures,
		m.Replays,
		m.ProcessingDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Authorizer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
