// Package metrics exposes Prometheus counters/gauges for the converter
// alongside the same atomic request counters the engine used for its own
// in-process reporting, so callers that only want a cheap snapshot don't
// need to scrape an HTTP endpoint.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subconverter_requests_total",
		Help: "Total HTTP conversion requests handled, labelled by target and outcome.",
	}, []string{"target", "outcome"})

	nodesParsedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subconverter_nodes_parsed_total",
		Help: "Total proxy nodes successfully decoded across all sources.",
	})

	rulesEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subconverter_rules_emitted_total",
		Help: "Total ruleset lines written into emitted artifacts.",
	})

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subconverter_cache_hits_total",
		Help: "Fetches served from the on-disk TTL cache instead of a network round-trip.",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subconverter_cache_misses_total",
		Help: "Fetches that required a network round-trip.",
	})

	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "subconverter_request_duration_seconds",
		Help:    "Wall-clock time to serve one conversion request.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, nodesParsedTotal, rulesEmittedTotal, cacheHitsTotal, cacheMissesTotal, requestDuration)
}

// Metrics tracks the aggregate counters the dashboard/CLI reports alongside
// the Prometheus series above. All fields are accessed exclusively through
// atomic operations so hot paths never contend on a mutex.
type Metrics struct {
	TotalRequests uint64
	Success       uint64
	Failed        uint64

	startTime time.Time
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// ObserveRequest records one completed HTTP request: bumps the atomic
// counters, the Prometheus counter vector, and the duration histogram.
func (m *Metrics) ObserveRequest(target string, ok bool, d time.Duration) {
	atomic.AddUint64(&m.TotalRequests, 1)
	outcome := "success"
	if ok {
		atomic.AddUint64(&m.Success, 1)
	} else {
		outcome = "error"
		atomic.AddUint64(&m.Failed, 1)
	}
	requestsTotal.WithLabelValues(target, outcome).Inc()
	requestDuration.Observe(d.Seconds())
}

// ObserveNodesParsed adds n to the process-wide parsed-node counter.
func ObserveNodesParsed(n int) {
	if n > 0 {
		nodesParsedTotal.Add(float64(n))
	}
}

// ObserveRulesEmitted adds n to the process-wide emitted-rule counter.
func ObserveRulesEmitted(n int) {
	if n > 0 {
		rulesEmittedTotal.Add(float64(n))
	}
}

// ObserveCache records a single cache hit or miss.
func ObserveCache(hit bool) {
	if hit {
		cacheHitsTotal.Inc()
	} else {
		cacheMissesTotal.Inc()
	}
}

// RequestsPerSecond returns the average request rate since the Metrics
// instance was created. Returns 0 in the same wall-clock second as creation.
func (m *Metrics) RequestsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.TotalRequests)) / elapsed
}

// Snapshot returns a point-in-time copy of the atomic counters.
func (m *Metrics) Snapshot() (total, success, failed uint64) {
	return atomic.LoadUint64(&m.TotalRequests),
		atomic.LoadUint64(&m.Success),
		atomic.LoadUint64(&m.Failed)
}
