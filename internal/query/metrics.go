package query

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the facade cache and the pipeline.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Discarded prometheus.Counter
	Evicted   prometheus.Counter
	Duration  prometheus.Histogram
}

// NewMetrics creates the facade collectors. They are registered with reg
// when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unfas",
			Name:      "cache_hits_total",
			Help:      "Decompile requests answered from the result cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unfas",
			Name:      "cache_misses_total",
			Help:      "Decompile requests that ran the pipeline.",
		}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unfas",
			Name:      "cache_discarded_total",
			Help:      "Results dropped because another caller cached the same input first.",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unfas",
			Name:      "cache_evictions_total",
			Help:      "Results dropped from the cache to stay within its capacity.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "unfas",
			Name:      "decompile_duration_seconds",
			Help:      "Time spent in the decompilation pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Hits, m.Misses, m.Discarded, m.Evicted, m.Duration}
}
