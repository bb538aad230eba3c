package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/elid/devicesim/internal/devicesim/types"
)

// Metrics is the prometheus view of the worker fleet and its sinks.
type Metrics struct {
	workersActive         prometheus.Gauge
	workerStarts          *prometheus.CounterVec
	workerStops           *prometheus.CounterVec
	transactionsRecorded  *prometheus.CounterVec
	sinkFailures          *prometheus.CounterVec
	sinkLatency           prometheus.Histogram
	stopGraceExceeded     prometheus.Counter
	statusPersistFailures prometheus.Counter
	mirrorFailures        *prometheus.CounterVec
}

// New registers every collector on reg. It panics on duplicate registration,
// like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devicesim_workers_active",
			Help: "Device workers currently generating transactions.",
		}),
		workerStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicesim_worker_starts_total",
			Help: "Device workers started.",
		}, []string{"device_type"}),
		workerStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicesim_worker_stops_total",
			Help: "Device workers that have exited.",
		}, []string{"device_type"}),
		transactionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicesim_transactions_recorded_total",
			Help: "Transactions accepted by the primary sink.",
		}, []string{"device_type"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicesim_sink_failures_total",
			Help: "Transactions the primary sink rejected or timed out on.",
		}, []string{"device_type"}),
		sinkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "devicesim_sink_latency_seconds",
			Help:    "Time spent in a single sink submission.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		stopGraceExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devicesim_stop_grace_exceeded_total",
			Help: "Workers abandoned after not exiting within the stop grace period.",
		}),
		statusPersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devicesim_status_persist_failures_total",
			Help: "Toggles whose worker change applied but whose status write failed.",
		}),
		mirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicesim_mirror_failures_total",
			Help: "Transactions a secondary mirror failed to publish.",
		}, []string{"mirror"}),
	}

	reg.MustRegister(
		m.workersActive,
		m.workerStarts,
		m.workerStops,
		m.transactionsRecorded,
		m.sinkFailures,
		m.sinkLatency,
		m.stopGraceExceeded,
		m.statusPersistFailures,
		m.mirrorFailures,
	)
	return m
}

func (m *Metrics) WorkerStarted(t types.DeviceType) {
	m.workersActive.Inc()
	m.workerStarts.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) WorkerStopped(t types.DeviceType) {
	m.workersActive.Dec()
	m.workerStops.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) TransactionRecorded(t types.DeviceType, latency time.Duration) {
	m.transactionsRecorded.WithLabelValues(string(t)).Inc()
	m.sinkLatency.Observe(latency.Seconds())
}

func (m *Metrics) SinkFailed(t types.DeviceType, latency time.Duration) {
	m.sinkFailures.WithLabelValues(string(t)).Inc()
	m.sinkLatency.Observe(latency.Seconds())
}

func (m *Metrics) StopGraceExceeded() { m.stopGraceExceeded.Inc() }

func (m *Metrics) StatusPersistFailed() { m.statusPersistFailures.Inc() }

func (m *Metrics) MirrorFailed(mirror string) {
	m.mirrorFailures.WithLabelValues(mirror).Inc()
}
