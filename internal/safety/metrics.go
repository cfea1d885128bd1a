package safety

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// Metrics are the Prometheus collectors of an Aggregator.
type Metrics struct {
	recomputes *prometheus.CounterVec
	duration   prometheus.Histogram
	score      prometheus.Histogram
}

// NewMetrics creates the aggregator collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "safespace",
			Name:      "safety_recomputes_total",
			Help:      "Safety score recomputations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "safespace",
			Name:      "safety_recompute_duration_seconds",
			Help:      "Time spent recomputing a safety score, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "safespace",
			Name:      "safety_score_written",
			Help:      "Distribution of safety scores written.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.recomputes, m.duration, m.score} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
