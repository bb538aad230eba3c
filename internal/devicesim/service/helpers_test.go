package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/elid/devicesim/internal/devicesim/service"
	"github.com/elid/devicesim/internal/devicesim/store/memory"
	"github.com/elid/devicesim/internal/devicesim/types"
)

func silentLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fastConfig keeps workers emitting every few milliseconds.
func fastConfig() service.SupervisorConfig {
	return service.SupervisorConfig{
		MinDelay:    5 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		StopGrace:   time.Second,
		SinkTimeout: 500 * time.Millisecond,
	}
}

func device(id string, t types.DeviceType, status types.DeviceStatus) types.Device {
	return types.Device{ID: id, Name: "Device " + id, Type: t, IPAddress: "10.0.0.1", Status: status}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, within time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", within, msg)
}

// ═══════════════════════════════════════════════════════════════════════════
// Sinks
// ═══════════════════════════════════════════════════════════════════════════

// flakySink fails the first failFor calls, then records into the memory store.
type flakySink struct {
	*memory.TransactionStore
	failFor  int64
	calls    atomic.Int64
	failures atomic.Int64
}

func (s *flakySink) RecordTransaction(ctx context.Context, tx types.Transaction) error {
	if s.calls.Add(1) <= s.failFor {
		s.failures.Add(1)
		return errors.New("sink unavailable")
	}
	return s.TransactionStore.RecordTransaction(ctx, tx)
}

// stuckSink ignores its context and blocks until release is closed.
type stuckSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStuckSink() *stuckSink {
	return &stuckSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stuckSink) RecordTransaction(_ context.Context, _ types.Transaction) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Directory doubles
// ═══════════════════════════════════════════════════════════════════════════

type brokenDirectory struct {
	*memory.DeviceStore
	listErr error
	setErr  error
}

func (d *brokenDirectory) ListActive(ctx context.Context) ([]types.Device, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.DeviceStore.ListActive(ctx)
}

func (d *brokenDirectory) SetStatus(ctx context.Context, id string, status types.DeviceStatus) error {
	if d.setErr != nil {
		return d.setErr
	}
	return d.DeviceStore.SetStatus(ctx, id, status)
}

// ═══════════════════════════════════════════════════════════════════════════
// Metrics recorder
// ═══════════════════════════════════════════════════════════════════════════

type recordingMetrics struct {
	starts, stops          atomic.Int64
	recorded, sinkFailures atomic.Int64
	graceExceeded          atomic.Int64
	persistFailures        atomic.Int64
}

func (m *recordingMetrics) WorkerStarted(types.DeviceType) { m.starts.Add(1) }
func (m *recordingMetrics) WorkerStopped(types.DeviceType) { m.stops.Add(1) }
func (m *recordingMetrics) TransactionRecorded(types.DeviceType, time.Duration) {
	m.recorded.Add(1)
}
func (m *recordingMetrics) SinkFailed(types.DeviceType, time.Duration) { m.sinkFailures.Add(1) }
func (m *recordingMetrics) StopGraceExceeded() { m.graceExceeded.Add(1) }
func (m *recordingMetrics) StatusPersistFailed() { m.persistFailures.Add(1) }
