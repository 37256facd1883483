// Package metrics exposes feed health as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptodash"

// Metrics implements feed.Recorder on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	FetchesTotal   *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	InFlight       *prometheus.GaugeVec
	CoalescedTotal *prometheus.CounterVec
	DiscardedTotal *prometheus.CounterVec
	ErrorFlag      *prometheus.GaugeVec
	LastSuccess    *prometheus.GaugeVec
	ChatMessages   prometheus.Counter
	ChatSessions   prometheus.Gauge
	WSClients      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Completed fetch attempts by result",
		}, []string{"feed", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_in_flight",
			Help:      "Fetches currently running",
		}, []string{"feed"}),
		CoalescedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_coalesced_total",
			Help:      "Ticks dropped because a fetch was in flight",
		}, []string{"feed"}),
		DiscardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "results_discarded_total",
			Help:      "Stale fetch results that were not published",
		}, []string{"feed"}),
		ErrorFlag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "error",
			Help:      "1 if the last accepted attempt failed",
		}, []string{"feed"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last published snapshot",
		}, []string{"feed"}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "User messages answered",
		}),
		ChatSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "sessions_active",
			Help:      "Open chat sessions",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FetchesTotal,
		m.FetchDuration,
		m.InFlight,
		m.CoalescedTotal,
		m.DiscardedTotal,
		m.ErrorFlag,
		m.LastSuccess,
		m.ChatMessages,
		m.ChatSessions,
		m.WSClients,
	)
	return m
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FetchStarted(feed string) {
	m.InFlight.WithLabelValues(feed).Inc()
}

func (m *Metrics) FetchFinished(feed string, elapsed time.Duration, err error) {
	m.InFlight.WithLabelValues(feed).Dec()
	m.FetchDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	m.FetchesTotal.WithLabelValues(feed, result).Inc()
}

func (m *Metrics) Coalesced(feed string) {
	m.CoalescedTotal.WithLabelValues(feed).Inc()
}

func (m *Metrics) Discarded(feed string) {
	m.DiscardedTotal.WithLabelValues(feed).Inc()
}

func (m *Metrics) Published(feed string, failed bool, lastSuccess time.Time) {
	if failed {
		m.ErrorFlag.WithLabelValues(feed).Set(1)
	} else {
		m.ErrorFlag.WithLabelValues(feed).Set(0)
	}
	if !lastSuccess.IsZero() {
		m.LastSuccess.WithLabelValues(feed).Set(float64(lastSuccess.Unix()))
	}
}
