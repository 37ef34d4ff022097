package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	writesTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	failoverTotal *prometheus.CounterVec
	droppedEvents prometheus.Counter
	activeBackend *prometheus.GaugeVec
	subscribers   prometheus.Gauge
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		writesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voldesk_writes_total",
				Help: "Total number of records committed",
			},
			[]string{"kind", "backend"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voldesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		failoverTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voldesk_failover_total",
				Help: "Total number of backend switches",
			},
			[]string{"direction"},
		),
		droppedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voldesk_dropped_events_total",
				Help: "Total number of events dropped from slow subscriber buffers",
			},
		),
		activeBackend: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voldesk_active_backend",
				Help: "Which backend is active (1 for the active one, 0 otherwise)",
			},
			[]string{"backend"},
		),
		subscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voldesk_subscribers",
				Help: "Number of live change-feed subscribers",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voldesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordWrite records one committed record.
func (r *Recorder) RecordWrite(kind, backend string) {
	r.writesTotal.WithLabelValues(kind, backend).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordFailover records a backend switch in the given direction.
func (r *Recorder) RecordFailover(direction string) {
	r.failoverTotal.WithLabelValues(direction).Inc()
}

// SetActiveBackend marks which backend is serving.
func (r *Recorder) SetActiveBackend(name string) {
	for _, b := range []string{"remote", "local"} {
		v := 0.0
		if b == name {
			v = 1.0
		}
		r.activeBackend.WithLabelValues(b).Set(v)
	}
}

// SetSubscribers records the current subscriber count.
func (r *Recorder) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
}

// AddDroppedEvents records events dropped from full subscriber buffers.
func (r *Recorder) AddDroppedEvents(n int) {
	r.droppedEvents.Add(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
