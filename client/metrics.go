package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of a session.
type Metrics struct {
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	Logouts         *prometheus.CounterVec
	Retries         prometheus.Counter
	Warnings        prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "refresh_total",
			Help:      "Refresh exchanges by result (success, failure, no_token).",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authsession",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh exchanges.",
			Buckets:   prometheus.DefBuckets,
		}),
		Logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "logout_total",
			Help:      "Local session teardowns by reason.",
		}, []string{"reason"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "request_retries_total",
			Help:      "Requests re-issued after a successful refresh.",
		}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "expiry_warnings_total",
			Help:      "Session expiring warnings shown.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Refreshes, m.RefreshDuration, m.Logouts, m.Retries, m.Warnings)
	}
	return m
}
