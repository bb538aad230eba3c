package service_test

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elid/devicesim/internal/devicesim/service"
	"github.com/elid/devicesim/internal/devicesim/store/memory"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// StartWorker / StopWorker
// ═══════════════════════════════════════════════════════════════════════════

func TestSupervisor_StartWorker_Idempotent(t *testing.T) {
	sup := service.NewSupervisor(memory.NewTransactionStore(), fastConfig(), silentLogger(), nil)
	t.Cleanup(sup.ShutdownAll)

	started, err := sup.StartWorker("acc-01", types.DeviceTypeAccessController)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = sup.StartWorker("acc-01", types.DeviceTypeAccessController)
	require.NoError(t, err)
	assert.False(t, started)

	assert.Equal(t, 1, sup.Count())
	assert.True(t, sup.IsRunning("acc-01"))
	assert.EqualValues(t, 1, sup.LiveLoops())
}

func TestSupervisor_StartWorker_UnknownType(t *testing.T) {
	sup := service.NewSupervisor(memory.NewTransactionStore(), fastConfig(), silentLogger(), nil)

	started, err := sup.StartWorker("x-01", types.DeviceType("turnstile"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnknownDeviceType))
	assert.False(t, started)
	assert.Zero(t, sup.Count())
}

func TestSupervisor_StopWorker_NoopWhenNotRunning(t *testing.T) {
	sup := service.NewSupervisor(memory.NewTransactionStore(), fastConfig(), silentLogger(), nil)

	assert.False(t, sup.StopWorker("nobody"))
	assert.Zero(t, sup.Count())
	assert.Zero(t, sup.HeldLocks())
}

func TestSupervisor_StopWorker_RemovesAndExits(t *testing.T) {
	sup := service.NewSupervisor(memory.NewTransactionStore(), fastConfig(), silentLogger(), nil)

	_, err := sup.StartWorker("face-01", types.DeviceTypeFaceReader)
	require.NoError(t, err)

	assert.True(t, sup.StopWorker("face-01"))
	assert.False(t, sup.IsRunning("face-01"))
	assert.Zero(t, sup.Count())
	assert.Zero(t, sup.LiveLoops())
	assert.False(t, sup.StopWorker("face-01"))
}

// ═══════════════════════════════════════════════════════════════════════════
// Worker loop behaviour
// ═══════════════════════════════════════════════════════════════════════════

func TestSupervisor_WorkerEmitsTransactions(t *testing.T) {
	sink := memory.NewTransactionStore()
	sup := service.NewSupervisor(sink, fastConfig(), silentLogger(), nil)
	t.Cleanup(sup.ShutdownAll)

	_, err := sup.StartWorker("anpr-01", types.DeviceTypeANPR)
	require.NoError(t, err)

	eventually(t, 2*time.Second, func() bool { return len(sink.ForDevice("anpr-01")) >= 3 },
		"expected at least 3 transactions")

	txs := sink.ForDevice("anpr-01")
	ids := map[string]bool{}
	for i, tx := range txs {
		assert.Equal(t, "anpr-01", tx.DeviceID)
		assert.Contains(t, service.EventTypesByDevice[types.DeviceTypeANPR], tx.EventType)
		assert.NotEmpty(t, tx.Username)
		assert.Contains(t, tx.Payload, "plate_number")
		assert.False(t, ids[tx.TransactionID], "duplicate transaction id")
		ids[tx.TransactionID] = true
		if i > 0 {
			assert.False(t, tx.Timestamp.Before(txs[i-1].Timestamp), "timestamps must not go backwards")
		}
	}
}

func TestSupervisor_StopIsPromptDuringLongWait(t *testing.T) {
	sink := memory.NewTransactionStore()
	cfg := fastConfig()
	cfg.MinDelay = 10 * time.Second
	cfg.MaxDelay = 10 * time.Second
	sup := service.NewSupervisor(sink, cfg, silentLogger(), nil)

	_, err := sup.StartWorker("acc-01", types.DeviceTypeAccessController)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	assert.True(t, sup.StopWorker("acc-01"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, sink.Len())
	assert.Zero(t, sup.LiveLoops())
}

func TestSupervisor_SinkFailuresDoNotStopWorker(t *testing.T) {
	sink := &flakySink{TransactionStore: memory.NewTransactionStore(), failFor: 3}
	m := &recordingMetrics{}
	sup := service.NewSupervisor(sink, fastConfig(), silentLogger(), m)
	t.Cleanup(sup.ShutdownAll)

	_, err := sup.StartWorker("face-01", types.DeviceTypeFaceReader)
	require.NoError(t, err)

	eventually(t, 2*time.Second, func() bool { return sink.Len() >= 2 },
		"worker should keep going after sink failures")

	assert.True(t, sup.IsRunning("face-01"))
	assert.EqualValues(t, 3, sink.failures.Load())
	assert.EqualValues(t, 3, m.sinkFailures.Load())
	assert.GreaterOrEqual(t, m.recorded.Load(), int64(2))
}

func TestSupervisor_PermanentSinkFailureKeepsWorkerAlive(t *testing.T) {
	sink := &flakySink{TransactionStore: memory.NewTransactionStore(), failFor: math.MaxInt64}
	m := &recordingMetrics{}
	sup := service.NewSupervisor(sink, fastConfig(), silentLogger(), m)
	t.Cleanup(sup.ShutdownAll)

	_, err := sup.StartWorker("anpr-02", types.DeviceTypeANPR)
	require.NoError(t, err)

	eventually(t, 2*time.Second, func() bool { return sink.calls.Load() >= 3 },
		"worker should keep calling a failing sink")
	seen := sink.calls.Load()
	assert.True(t, sup.IsRunning("anpr-02"))

	eventually(t, 2*time.Second, func() bool { return sink.calls.Load() > seen },
		"worker should still be calling the sink")
	assert.True(t, sup.IsRunning("anpr-02"))
	assert.EqualValues(t, 1, sup.LiveLoops())
	assert.Zero(t, sink.Len())
	assert.Zero(t, m.recorded.Load())
	assert.GreaterOrEqual(t, m.sinkFailures.Load(), seen)
}

func TestSupervisor_StopWorker_GraceExceeded(t *testing.T) {
	sink := newStuckSink()
	t.Cleanup(func() { close(sink.release) })

	cfg := fastConfig()
	cfg.StopGrace = 50 * time.Millisecond
	m := &recordingMetrics{}
	sup := service.NewSupervisor(sink, cfg, silentLogger(), m)

	_, err := sup.StartWorker("anpr-01", types.DeviceTypeANPR)
	require.NoError(t, err)

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached the sink")
	}

	start := time.Now()
	assert.True(t, sup.StopWorker("anpr-01"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, cfg.StopGrace)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, sup.IsRunning("anpr-01"))
	assert.EqualValues(t, 1, m.graceExceeded.Load())
}

// ═══════════════════════════════════════════════════════════════════════════
// ShutdownAll
// ═══════════════════════════════════════════════════════════════════════════

func TestSupervisor_ShutdownAll(t *testing.T) {
	m := &recordingMetrics{}
	sup := service.NewSupervisor(memory.NewTransactionStore(), fastConfig(), silentLogger(), m)

	for _, id := range []string{"a", "b", "c"} {
		_, err := sup.StartWorker(id, types.DeviceTypeAccessController)
		require.NoError(t, err)
	}
	require.Equal(t, 3, sup.Count())

	sup.ShutdownAll()

	assert.Zero(t, sup.Count())
	assert.Zero(t, sup.LiveLoops())
	assert.EqualValues(t, 3, m.starts.Load())
	assert.EqualValues(t, 3, m.stops.Load())

	_, err := sup.StartWorker("d", types.DeviceTypeAccessController)
	assert.True(t, errors.Is(err, service.ErrSupervisorClosed))

	// A second call finds nothing to do.
	sup.ShutdownAll()
}

// ═══════════════════════════════════════════════════════════════════════════
// SupervisorConfig
// ═══════════════════════════════════════════════════════════════════════════

func TestSupervisorConfig_WithDefaults(t *testing.T) {
	got := service.SupervisorConfig{MinDelay: time.Second, StopGrace: -time.Second}.WithDefaults()

	assert.Equal(t, time.Second, got.MinDelay)
	assert.Equal(t, 10*time.Second, got.MaxDelay)
	assert.Equal(t, 3*time.Second, got.StopGrace, "negative is treated as unset")
	assert.Equal(t, 5*time.Second, got.SinkTimeout)

	got = service.SupervisorConfig{MinDelay: 20 * time.Second, MaxDelay: 5 * time.Second}.WithDefaults()
	assert.Equal(t, 20*time.Second, got.MaxDelay, "max is raised to min")
}
