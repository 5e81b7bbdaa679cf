// Package metrics exposes Prometheus instruments for the recomputation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const namespace = "pptracker"

// Metrics is created once per process and registered on the given registry.
type Metrics struct {
	Registry *prometheus.Registry

	cacheLookups        *prometheus.CounterVec
	difficultyCalcs     prometheus.Counter
	cacheWriteErrors    prometheus.Counter
	itemFailures        *prometheus.CounterVec
	playsComputed       prometheus.Counter
	itemDuration        prometheus.Histogram
	playersProcessed    prometheus.Counter
	batchesCancelled    prometheus.Counter
	apiRateLimitRemains prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribute_cache",
			Name:      "lookups_total",
			Help:      "Attribute cache lookups by result (hit, miss, stale, error).",
		}, []string{"result"}),
		difficultyCalcs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "difficulty_calculations_total",
			Help:      "Calls made to the external difficulty calculator.",
		}),
		cacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribute_cache",
			Name:      "write_errors_total",
			Help:      "Failed attribute cache writes.",
		}),
		itemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recompute_failures_total",
			Help:      "Scores excluded from a batch, by pipeline stage.",
		}, []string{"stage"}),
		playsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plays_computed_total",
			Help:      "Scores successfully recomputed.",
		}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_duration_seconds",
			Help:      "Time spent recomputing a single score.",
			Buckets:   prometheus.DefBuckets,
		}),
		playersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_processed_total",
			Help:      "Players recomputed by the leaderboard orchestrator.",
		}),
		batchesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_cancelled_total",
			Help:      "Batches that observed cancellation before finishing.",
		}),
		apiRateLimitRemains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_rate_limit_remaining",
			Help:      "Remaining requests reported by the remote API.",
		}),
	}

	reg.MustRegister(
		m.cacheLookups,
		m.difficultyCalcs,
		m.cacheWriteErrors,
		m.itemFailures,
		m.playsComputed,
		m.itemDuration,
		m.playersProcessed,
		m.batchesCancelled,
		m.apiRateLimitRemains,
	)
	return m
}

func (m *Metrics) CacheLookup(result string)            { m.cacheLookups.WithLabelValues(result).Inc() }
func (m *Metrics) DifficultyCalculated()                { m.difficultyCalcs.Inc() }
func (m *Metrics) CacheWriteFailed()                    { m.cacheWriteErrors.Inc() }
func (m *Metrics) ItemFailed(stage string)              { m.itemFailures.WithLabelValues(stage).Inc() }
func (m *Metrics) PlayComputed(seconds float64)         { m.playsComputed.Inc(); m.itemDuration.Observe(seconds) }
func (m *Metrics) PlayerProcessed()                     { m.playersProcessed.Inc() }
func (m *Metrics) BatchCancelled()                      { m.batchesCancelled.Inc() }
func (m *Metrics) RateLimitRemaining(remaining int)     { m.apiRateLimitRemains.Set(float64(remaining)) }
func (m *Metrics) CacheLookups() *prometheus.CounterVec { return m.cacheLookups }
func (m *Metrics) DifficultyCalcs() prometheus.Counter  { return m.difficultyCalcs }
func (m *Metrics) ItemFailures() *prometheus.CounterVec { return m.itemFailures }
func (m *Metrics) RateLimitGauge() prometheus.Gauge     { return m.apiRateLimitRemains }

var Module = fx.Provide(New)
