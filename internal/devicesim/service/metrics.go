package service

import (
	"time"

	"github.com/elid/devicesim/internal/devicesim/types"
)

// Metrics receives worker lifecycle and sink outcome events. The prometheus
// implementation lives in internal/metrics.
type Metrics interface {
	WorkerStarted(t types.DeviceType)
	WorkerStopped(t types.DeviceType)
	TransactionRecorded(t types.DeviceType, latency time.Duration)
	SinkFailed(t types.DeviceType, latency time.Duration)
	StopGraceExceeded()
	StatusPersistFailed()
}

type nopMetrics struct{}

func (nopMetrics) WorkerStarted(types.DeviceType) {}
func (nopMetrics) WorkerStopped(types.DeviceType) {}
func (nopMetrics) TransactionRecorded(types.DeviceType, time.Duration) {}
func (nopMetrics) SinkFailed(types.DeviceType, time.Duration) {}
func (nopMetrics) StopGraceExceeded() {}
func (nopMetrics) StatusPersistFailed() {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
