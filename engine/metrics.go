package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.CounterVec
	intentErrors  *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		stageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "perspective",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each perspective stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		stageRows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "perspective",
			Name:      "stage_rows_total",
			Help:      "Rows read by each perspective stage.",
		}, []string{"stage"}),
		intentErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "perspective",
			Name:      "intent_errors_total",
			Help:      "Intents rejected before evaluation.",
		}, []string{"stage"}),
	}
}

func (m *Metrics) observeStage(stage string, start time.Time, rows int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	m.stageRows.WithLabelValues(stage).Add(float64(rows))
}

func (m *Metrics) intentError(stage string) {
	if m == nil {
		return
	}
	m.intentErrors.WithLabelValues(stage).Inc()
}
