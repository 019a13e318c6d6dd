package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	generationSeconds *prometheus.HistogramVec
	entries           *prometheus.GaugeVec
	failures          *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ranking_generation_seconds",
			Help:    "Time spent replaying a region's history and building its ranking.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"region"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ranking_entries",
			Help: "Number of entries in the region's latest ranking.",
		}, []string{"region"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ranking_generation_failures_total",
			Help: "Ranking generations that returned an error.",
		}, []string{"region"}),
	}
	reg.MustRegister(m.generationSeconds, m.entries, m.failures)
	return m
}

// ObserveGeneration records one finished ranking generation. A nil receiver is a no-op.
func (m *Metrics) ObserveGeneration(region string, took time.Duration, entries int, err error) {
	if m == nil {
		return
	}
	m.generationSeconds.WithLabelValues(region).Observe(took.Seconds())
	if err != nil {
		m.failures.WithLabelValues(region).Inc()
		return
	}
	m.entries.WithLabelValues(region).Set(float64(entries))
}

func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

var Module = fx.Provide(NewDefault)
