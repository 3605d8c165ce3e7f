// Package metrics exposes Prometheus collectors for the fetch pipeline.
// All methods are nil-safe so components can run without metrics wired in.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks fetch outcomes, cache evictions, scheduler queues and bundle loads.
type Metrics struct {
	// FetchTotal counts fetches by source (local/cache/network) and result (ok/error)
	FetchTotal *prometheus.CounterVec

	// FetchDuration tracks end-to-end fetch latency by source
	FetchDuration *prometheus.HistogramVec

	// CacheEvictions counts cache entries dropped after a failed parse
	CacheEvictions prometheus.Counter

	// QueuePending and QueueRunning mirror scheduler queue depth per profile
	QueuePending *prometheus.GaugeVec
	QueueRunning *prometheus.GaugeVec

	// BundleLoads counts bundle loads by terminal state
	BundleLoads *prometheus.CounterVec
}

// New creates the collectors with the asset_ prefix and registers them on reg.
// Panics if registration fails (expected during initialization only).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_fetch_total",
				Help: "Total asset fetches by source and result",
			},
			[]string{"source", "result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asset_fetch_duration_seconds",
				Help:    "Asset fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		CacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "asset_cache_evictions_total",
				Help: "Cache entries evicted because the cached file failed to parse",
			},
		),
		QueuePending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asset_scheduler_pending",
				Help: "Tasks waiting for dispatch per traffic profile",
			},
			[]string{"profile"},
		),
		QueueRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asset_scheduler_running",
				Help: "Tasks currently running per traffic profile",
			},
			[]string{"profile"},
		),
		BundleLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_bundle_loads_total",
				Help: "Bundle loads by terminal state",
			},
			[]string{"state"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.FetchTotal,
			m.FetchDuration,
			m.CacheEvictions,
			m.QueuePending,
			m.QueueRunning,
			m.BundleLoads,
		)
	}
	return m
}

// ObserveFetch records one finished fetch.
func (m *Metrics) ObserveFetch(source string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FetchTotal.WithLabelValues(source, result).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveEviction records a cache entry dropped after a parse failure.
func (m *Metrics) ObserveEviction() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// ObserveQueue implements scheduler.Observer.
func (m *Metrics) ObserveQueue(profile string, pending, running int) {
	if m == nil {
		return
	}
	m.QueuePending.WithLabelValues(profile).Set(float64(pending))
	m.QueueRunning.WithLabelValues(profile).Set(float64(running))
}

// ObserveBundle records a bundle load that reached state.
func (m *Metrics) ObserveBundle(state string) {
	if m == nil {
		return
	}
	m.BundleLoads.WithLabelValues(state).Inc()
}
