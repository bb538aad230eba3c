package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// SupervisorConfig holds the timing knobs shared by every worker.
type SupervisorConfig struct {
	// MinDelay and MaxDelay bound the uniform wait before each transaction.
	// Defaults are 2s and 10s.
	MinDelay time.Duration
	MaxDelay time.Duration

	// StopGrace is how long StopWorker waits for a cancelled worker to exit.
	// Defaults to 3s.
	StopGrace time.Duration

	// SinkTimeout bounds a single RecordTransaction call. Defaults to 5s.
	SinkTimeout time.Duration
}

var defaultSupervisorConfig = SupervisorConfig{
	MinDelay:    2 * time.Second,
	MaxDelay:    10 * time.Second,
	StopGrace:   3 * time.Second,
	SinkTimeout: 5 * time.Second,
}

// withDefaults fills unset (zero or negative) timings from
// defaultSupervisorConfig.
func (c SupervisorConfig) withDefaults() SupervisorConfig {
	for _, d := range []*time.Duration{&c.MinDelay, &c.MaxDelay, &c.StopGrace, &c.SinkTimeout} {
		if *d < 0 {
			*d = 0
		}
	}
	// Both sides share a type, so Merge cannot fail.
	_ = mergo.Merge(&c, defaultSupervisorConfig)
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}

type workerHandle struct {
	deviceType types.DeviceType
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  time.Time
}

// Supervisor owns the registry of running device workers. At most one worker
// is registered per device id; every method is safe for concurrent use.
type Supervisor struct {
	sink    store.TransactionStore
	cfg     SupervisorConfig
	logger  zerolog.Logger
	metrics Metrics

	// locks serialises start, stop and toggle for the same device id.
	locks *keyedMutex

	mu      sync.Mutex
	workers map[string]*workerHandle
	closed  bool

	liveLoops atomic.Int64
}

func NewSupervisor(sink store.TransactionStore, cfg SupervisorConfig, logger zerolog.Logger, m Metrics) *Supervisor {
	return &Supervisor{
		sink:    sink,
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "supervisor").Logger(),
		metrics: metricsOrNop(m),
		locks:   newKeyedMutex(),
		workers: make(map[string]*workerHandle),
	}
}

// StartWorker launches a worker for deviceID unless one is already running,
// in which case it returns false and changes nothing.
func (s *Supervisor) StartWorker(deviceID string, deviceType types.DeviceType) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	unlock := s.locks.Lock(deviceID)
	defer unlock()
	return s.startLocked(deviceID, deviceType)
}

// StopWorker cancels the worker for deviceID and waits up to StopGrace for
// it to exit. It returns false when no worker was running.
func (s *Supervisor) StopWorker(deviceID string) bool {
	deviceID = strings.TrimSpace(deviceID)
	unlock := s.locks.Lock(deviceID)
	defer unlock()
	return s.stopLocked(deviceID)
}

func (s *Supervisor) IsRunning(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[strings.TrimSpace(deviceID)]
	return ok
}

func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// ShutdownAll refuses further starts and stops every registered worker
// concurrently. It returns once each worker has exited or hit StopGrace.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	s.closed = true
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	s.logger.Info().Int("workers", len(ids)).Msg("stopping all workers")

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			s.StopWorker(id)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().Msg("all workers stopped")
}

// startLocked and stopLocked expect the caller to hold the device's key in
// s.locks.

func (s *Supervisor) startLocked(deviceID string, deviceType types.DeviceType) (bool, error) {
	if !deviceType.Valid() {
		return false, errors.Wrapf(ErrUnknownDeviceType, "device %s: %q", deviceID, deviceType)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSupervisorClosed
	}
	if _, ok := s.workers[deviceID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &workerHandle{
		deviceType: deviceType,
		cancel:     cancel,
		done:       make(chan struct{}),
		startedAt:  time.Now(),
	}
	s.workers[deviceID] = h
	s.mu.Unlock()

	w := newDeviceWorker(deviceID, deviceType, s.sink, s.cfg, s.logger, s.metrics)

	s.liveLoops.Add(1)
	s.metrics.WorkerStarted(deviceType)
	go func() {
		defer close(h.done)
		defer s.liveLoops.Add(-1)
		defer s.metrics.WorkerStopped(deviceType)
		w.run(ctx)
		s.release(deviceID, h)
	}()

	return true, nil
}

func (s *Supervisor) stopLocked(deviceID string) bool {
	s.mu.Lock()
	h, ok := s.workers[deviceID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	h.cancel()

	grace := time.NewTimer(s.cfg.StopGrace)
	defer grace.Stop()
	select {
	case <-h.done:
	case <-grace.C:
		s.metrics.StopGraceExceeded()
		s.logger.Warn().
			Str("device_id", deviceID).
			Dur("grace", s.cfg.StopGrace).
			Msg("worker did not exit within grace period; abandoning it")
	}

	s.release(deviceID, h)
	s.logger.Debug().
		Str("device_id", deviceID).
		Dur("uptime", time.Since(h.startedAt)).
		Msg("worker stopped")
	return true
}

// release drops deviceID from the registry only if h is still the handle
// registered for it.
func (s *Supervisor) release(deviceID string, h *workerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.workers[deviceID]; ok && cur == h {
		delete(s.workers, deviceID)
	}
}
