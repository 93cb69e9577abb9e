package observe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/restfoundry/restbase-go/retry"
)

// Metrics counts attempts and records their latency, labeled by outcome.
// It implements retry.Observer.
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
}

// NewMetrics creates the attempt metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to publish on the process-wide
// registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "restbase",
				Subsystem: "attempts",
				Name:      "total",
				Help:      "Total request attempts by outcome",
			},
			[]string{"outcome"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "restbase",
				Subsystem: "attempts",
				Name:      "duration_seconds",
				Help:      "Attempt duration in seconds by outcome",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.AttemptsTotal, m.AttemptDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAttempt implements retry.Observer.
func (m *Metrics) ObserveAttempt(a retry.Attempt) {
	outcome := "success"
	if a.Err != nil {
		outcome = a.Err.Kind.String()
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
	m.AttemptDuration.WithLabelValues(outcome).Observe(a.Elapsed.Seconds())
}
