// Package metrics exposes Prometheus collectors for the comic cache and its
// HTTP surface. All recording methods are safe on a nil receiver so components
// can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "comiccache"

// Fetch results.
const (
	FetchSuccess = "success"
	FetchFailure = "failure"
)

// CacheMetrics holds the cache collectors.
type CacheMetrics struct {
	lookups       *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	evictions     prometheus.Counter
	resident      prometheus.Gauge
	policyDenials prometheus.Counter
	writeFailures prometheus.Counter
}

// NewCacheMetrics creates the cache collectors and registers them with reg.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	m := &CacheMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Resolved lookups by the tier that answered them.",
		}, []string{"origin"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Network fetch attempts by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of network fetch attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Days removed by retention sweeps.",
		}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resident_days",
			Help:      "Days currently known to be resident.",
		}),
		policyDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_denials_total",
			Help:      "Lookups for future days refused by the access policy.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_write_failures_total",
			Help:      "Blobs that could not be persisted to the durable tier.",
		}),
	}
	for _, c := range []prometheus.Collector{m.lookups, m.fetches, m.fetchDuration, m.evictions, m.resident, m.policyDenials, m.writeFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveLookup counts a lookup answered by origin ("memory", "disk", "network").
func (m *CacheMetrics) ObserveLookup(origin string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(origin).Inc()
}

// ObserveFetch records one network fetch attempt.
func (m *CacheMetrics) ObserveFetch(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := FetchSuccess
	if err != nil {
		result = FetchFailure
	}
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

// ObserveEvictions adds n swept days.
func (m *CacheMetrics) ObserveEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

// SetResident sets the resident day count.
func (m *CacheMetrics) SetResident(n int) {
	if m == nil {
		return
	}
	m.resident.Set(float64(n))
}

func (m *CacheMetrics) ObservePolicyDenied() {
	if m == nil {
		return
	}
	m.policyDenials.Inc()
}

func (m *CacheMetrics) ObserveWriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}
