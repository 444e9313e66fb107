// Package metrics exposes Prometheus collectors for the event channels and the
// REST gateway.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors reported by cowork.
type Metrics struct {
	reg prometheus.Gatherer

	channelStates     *prometheus.CounterVec
	channelReconnects prometheus.Counter
	eventsReceived    *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	requestAttempts   *prometheus.CounterVec
	requestFailures   *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the package-level metrics registered with the global
// registry. Collectors are created once so repeated construction does not
// panic on duplicate registration.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = MustNew(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// MustNew constructs a Metrics instance on the provided registerer. Tests
// should pass a fresh prometheus.NewRegistry(). Registration errors panic.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		channelStates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cowork",
				Subsystem: "channel",
				Name:      "state_transitions_total",
				Help:      "Event channel state transitions by target state.",
			},
			[]string{"state"},
		),
		channelReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cowork",
				Subsystem: "channel",
				Name:      "reconnect_attempts_total",
				Help:      "Reconnect attempts scheduled after unexpected closes.",
			},
		),
		eventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cowork",
				Subsystem: "channel",
				Name:      "events_received_total",
				Help:      "Events dispatched to subscribers by kind.",
			},
			[]string{"kind"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cowork",
				Subsystem: "channel",
				Name:      "events_dropped_total",
				Help:      "Frames dropped before dispatch by reason.",
			},
			[]string{"reason"},
		),
		requestAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cowork",
				Subsystem: "api",
				Name:      "request_attempts_total",
				Help:      "HTTP attempts issued by the REST gateway.",
			},
			[]string{"endpoint"},
		),
		requestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cowork",
				Subsystem: "api",
				Name:      "request_failures_total",
				Help:      "Requests that failed after exhausting retries.",
			},
			[]string{"endpoint"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cowork",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency of individual HTTP attempts.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint", "outcome"},
		),
	}

	reg.MustRegister(
		m.channelStates,
		m.channelReconnects,
		m.eventsReceived,
		m.eventsDropped,
		m.requestAttempts,
		m.requestFailures,
		m.requestDuration,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.reg = g
	} else {
		m.reg = prometheus.DefaultGatherer
	}
	return m
}

// ChannelState records a channel transition into state.
func (m *Metrics) ChannelState(state string) {
	if m == nil {
		return
	}
	m.channelStates.WithLabelValues(state).Inc()
}

// ReconnectScheduled records a scheduled reconnect attempt.
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.channelReconnects.Inc()
}

// EventReceived records a dispatched event.
func (m *Metrics) EventReceived(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}

// EventDropped records a frame dropped for reason ("malformed", "duplicate").
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// RequestAttempt records one HTTP attempt and its latency.
func (m *Metrics) RequestAttempt(endpoint string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.requestAttempts.WithLabelValues(endpoint).Inc()
	m.requestDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

// RequestFailed records a request that exhausted its retries.
func (m *Metrics) RequestFailed(endpoint string) {
	if m == nil {
		return
	}
	m.requestFailures.WithLabelValues(endpoint).Inc()
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
