// Package metrics exposes Prometheus instrumentation for compilation,
// artifact lookups, cache blocks and rendering.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// Collector groups the Volt metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	compilations    *prometheus.CounterVec
	compileDuration prometheus.Histogram
	lookups         *prometheus.CounterVec
	cacheBlocks     *prometheus.CounterVec
	renders         *prometheus.CounterVec
	renderDuration  prometheus.Histogram
}

// NewCollector registers the metrics with reg. Passing nil registers them
// with the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		compilations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_compilations_total",
				Help: "Total number of template compilations",
			},
			[]string{"result"},
		),
		compileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "volt_compile_duration_seconds",
				Help:    "Template compilation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_artifact_lookups_total",
				Help: "Compiled artifact lookups by freshness",
			},
			[]string{"status"},
		),
		cacheBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_cache_blocks_total",
				Help: "Cache block evaluations by result",
			},
			[]string{"result"},
		),
		renders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_renders_total",
				Help: "Total number of template renders",
			},
			[]string{"result"},
		),
		renderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "volt_render_duration_seconds",
				Help:    "Template render duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveCompile records one compilation.
func (c *Collector) ObserveCompile(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.compilations.WithLabelValues(result(err)).Inc()
	c.compileDuration.Observe(d.Seconds())
}

// ObserveLookup records an artifact freshness check. status is one of
// "fresh", "stale" or "missing".
func (c *Collector) ObserveLookup(status string) {
	if c == nil {
		return
	}
	c.lookups.WithLabelValues(status).Inc()
}

// ObserveCacheBlock records a cache block hit or miss.
func (c *Collector) ObserveCacheBlock(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheBlocks.WithLabelValues(ResultHit).Inc()
		return
	}
	c.cacheBlocks.WithLabelValues(ResultMiss).Inc()
}

// ObserveRender records one render.
func (c *Collector) ObserveRender(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.renders.WithLabelValues(result(err)).Inc()
	c.renderDuration.Observe(d.Seconds())
}
