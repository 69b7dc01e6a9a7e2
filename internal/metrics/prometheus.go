package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "serverbench"

// promMetrics is the Prometheus implementation of Metrics.
type promMetrics struct {
	accepted    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	responses   *prometheus.CounterVec
	forceClosed prometheus.Counter

	factory   promauto.Factory
	trackOnce sync.Once
}

// NewPrometheus registers the collectors on reg. Each server owns its own
// registry so tests can build several side by side.
func NewPrometheus(reg *prometheus.Registry) Metrics {
	f := promauto.With(reg)
	return &promMetrics{
		accepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_accepted_total",
				Help:      "Connections accepted and queued, by protocol.",
			},
			[]string{"proto"},
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_rejected_total",
				Help:      "Connections closed without service, by protocol and reason.",
			},
			[]string{"proto", "reason"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Time from accept to connection close.",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"proto"},
		),
		responses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_responses_total",
				Help:      "HTTP responses by route and status.",
			},
			[]string{"route", "status"},
		),
		forceClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_force_closed_total",
			Help:      "Connections closed when the shutdown grace period expired.",
		}),
		factory: f,
	}
}

func (m *promMetrics) ConnectionAccepted(proto string) {
	m.accepted.WithLabelValues(proto).Inc()
}

func (m *promMetrics) ConnectionRejected(proto, reason string) {
	m.rejected.WithLabelValues(proto, reason).Inc()
}

func (m *promMetrics) JobCompleted(proto string, d time.Duration) {
	m.jobDuration.WithLabelValues(proto).Observe(d.Seconds())
}

func (m *promMetrics) Response(route, status string) {
	m.responses.WithLabelValues(route, status).Inc()
}

func (m *promMetrics) TrackPool(queueDepth func() int, busyWorkers func() int64) {
	m.trackOnce.Do(func() {
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}, func() float64 { return float64(queueDepth()) })
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy_workers",
			Help:      "Workers currently handling a job.",
		}, func() float64 { return float64(busyWorkers()) })
	})
}

func (m *promMetrics) ConnectionsForceClosed(n int) {
	m.forceClosed.Add(float64(n))
}
