package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowstate-dev/flowstate/internal/expression"
)

// CacheStatsSource is anything that reports expression cache counters,
// typically an *expression.Evaluator.
type CacheStatsSource interface {
	Stats() expression.CacheStats
}

// CacheCollector exposes expression cache counters as Prometheus metrics.
// Values are read from the source on every scrape.
type CacheCollector struct {
	src CacheStatsSource

	hits     *prometheus.Desc
	misses   *prometheus.Desc
	size     *prometheus.Desc
	capacity *prometheus.Desc
}

// NewCacheCollector creates a collector over src.
func NewCacheCollector(src CacheStatsSource) *CacheCollector {
	return &CacheCollector{
		src: src,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "expression_cache", "hits_total"),
			"Compiled expression cache hits", nil, nil),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "expression_cache", "misses_total"),
			"Compiled expression cache misses", nil, nil),
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "expression_cache", "entries"),
			"Compiled programs currently cached", nil, nil),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "expression_cache", "capacity"),
			"Maximum number of cached programs", nil, nil),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.size
	ch <- c.capacity
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
}
