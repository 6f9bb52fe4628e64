package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds dispatch counters. A nil *Metrics records nothing.
type Metrics struct {
	dispatches *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics creates and registers dispatch metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifyhub",
			Name:      "dispatch_total",
			Help:      "Dispatches by overall status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifyhub",
			Name:      "delivery_attempts_total",
			Help:      "Adapter send attempts by channel type, status and error kind.",
		}, []string{"channel_type", "status", "error_kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notifyhub",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a full dispatch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(m.dispatches, m.attempts, m.duration)
	return m
}

func (m *Metrics) observeAttempt(t ChannelType, status AttemptStatus, kind ErrorKind) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(t), string(status), string(kind)).Inc()
}

func (m *Metrics) observeDispatch(r *DispatchResult) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(r.OverallStatus)).Inc()
	m.duration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
}
