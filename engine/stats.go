package engine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "wasmcache"

// Stats is a snapshot of cache activity counters.
type Stats struct {
	HitsMemoryCache uint64
	HitsFsCache     uint64
	Misses          uint64
	Saves           uint64
}

type stats struct {
	hitsMemory atomic.Uint64
	hitsFs     atomic.Uint64
	misses     atomic.Uint64
	saves      atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		HitsMemoryCache: s.hitsMemory.Load(),
		HitsFsCache:     s.hitsFs.Load(),
		Misses:          s.misses.Load(),
		Saves:           s.saves.Load(),
	}
}

// statsCollector exports a cache's counters and memory cache usage.
type statsCollector struct {
	stats  *stats
	memory *memoryCache

	loads         *prometheus.Desc
	saves         *prometheus.Desc
	memoryEntries *prometheus.Desc
	memoryBytes   *prometheus.Desc
}

func newStatsCollector(s *stats, mc *memoryCache, baseDir string) *statsCollector {
	labels := prometheus.Labels{"base_dir": baseDir}
	return &statsCollector{
		stats:  s,
		memory: mc,
		loads: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "loads_total"),
			"Module loads by where they were served from.",
			[]string{"result"}, labels,
		),
		saves: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "saves_total"),
			"Modules saved.",
			nil, labels,
		),
		memoryEntries: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "memory_cache", "entries"),
			"Modules held in memory.",
			nil, labels,
		),
		memoryBytes: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "memory_cache", "bytes"),
			"Module bytes accounted against the memory cache budget.",
			nil, labels,
		),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.loads
	ch <- c.saves
	ch <- c.memoryEntries
	ch <- c.memoryBytes
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.snapshot()
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(s.HitsMemoryCache), "memory")
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(s.HitsFsCache), "fs")
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(s.Misses), "miss")
	ch <- prometheus.MustNewConstMetric(c.saves, prometheus.CounterValue, float64(s.Saves))

	entries, bytes := c.memory.usage()
	ch <- prometheus.MustNewConstMetric(c.memoryEntries, prometheus.GaugeValue, float64(entries))
	ch <- prometheus.MustNewConstMetric(c.memoryBytes, prometheus.GaugeValue, float64(bytes))
}
