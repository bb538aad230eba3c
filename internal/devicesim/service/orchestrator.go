package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// Orchestrator keeps the set of running workers equal to the set of active
// devices. Bootstrap restores that state after a restart; SetStatus and its
// wrappers apply operator toggles to both the supervisor and the directory.
type Orchestrator struct {
	registry *DeviceRegistry
	sup      *Supervisor
	logger   zerolog.Logger
	metrics  Metrics

	bootstrapped atomic.Bool
	ready        atomic.Bool
}

func NewOrchestrator(devices store.DeviceStore, sup *Supervisor, logger zerolog.Logger, m Metrics) *Orchestrator {
	return &Orchestrator{
		registry: NewDeviceRegistry(devices),
		sup:      sup,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		metrics:  metricsOrNop(m),
	}
}

// Bootstrap starts a worker for every device the directory reports active.
// It may run once; toggles are refused until it has succeeded. A directory
// error or an unstartable device is returned and should abort startup.
func (o *Orchestrator) Bootstrap(ctx context.Context) (int, error) {
	if !o.bootstrapped.CompareAndSwap(false, true) {
		return 0, ErrAlreadyBootstrapped
	}

	devices, err := o.registry.ListActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "bootstrap: list active devices")
	}

	started := 0
	for _, d := range devices {
		ok, err := o.sup.StartWorker(d.ID, d.Type)
		if err != nil {
			return started, errors.Wrapf(err, "bootstrap: start worker for %s", d.ID)
		}
		if ok {
			started++
			o.logger.Info().
				Str("device_id", d.ID).
				Str("name", d.Name).
				Str("device_type", string(d.Type)).
				Msg("worker recovered")
		}
	}

	o.ready.Store(true)
	o.logger.Info().Int("workers", started).Msg("bootstrap complete")
	return started, nil
}

// SetStatus moves the device to status, starting or stopping its worker
// before writing the new status to the directory.
func (o *Orchestrator) SetStatus(ctx context.Context, id string, status types.DeviceStatus) (types.Device, error) {
	if !o.ready.Load() {
		return types.Device{}, ErrNotReady
	}
	if !status.Valid() {
		return types.Device{}, errors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	id = strings.TrimSpace(id)

	unlock := o.sup.locks.Lock(id)
	defer unlock()

	d, err := o.registry.Get(ctx, id)
	if err != nil {
		return types.Device{}, err
	}
	return o.applyLocked(ctx, d, status)
}

func (o *Orchestrator) OnDeviceActivated(ctx context.Context, id string) (types.Device, error) {
	return o.SetStatus(ctx, id, types.StatusActive)
}

func (o *Orchestrator) OnDeviceDeactivated(ctx context.Context, id string) (types.Device, error) {
	return o.SetStatus(ctx, id, types.StatusInactive)
}

// Toggle flips the persisted status of the device.
func (o *Orchestrator) Toggle(ctx context.Context, id string) (types.Device, error) {
	if !o.ready.Load() {
		return types.Device{}, ErrNotReady
	}
	id = strings.TrimSpace(id)

	unlock := o.sup.locks.Lock(id)
	defer unlock()

	d, err := o.registry.Get(ctx, id)
	if err != nil {
		return types.Device{}, err
	}
	next := types.StatusActive
	if d.Active() {
		next = types.StatusInactive
	}
	return o.applyLocked(ctx, d, next)
}

func (o *Orchestrator) applyLocked(ctx context.Context, d types.Device, status types.DeviceStatus) (types.Device, error) {
	switch status {
	case types.StatusActive:
		if _, err := o.sup.startLocked(d.ID, d.Type); err != nil {
			return d, err
		}
	case types.StatusInactive:
		o.sup.stopLocked(d.ID)
	}

	// The worker change has already happened; a departing caller must not
	// abort the write that records it.
	if err := o.registry.SetStatus(context.WithoutCancel(ctx), d.ID, status); err != nil {
		o.metrics.StatusPersistFailed()
		o.logger.Error().Err(err).
			Str("device_id", d.ID).
			Str("status", string(status)).
			Bool("worker_running", o.sup.IsRunning(d.ID)).
			Msg("worker state and persisted status disagree")
		return d, errors.Wrapf(ErrStatusNotPersisted, "device %s: %v", d.ID, err)
	}

	o.logger.Info().
		Str("device_id", d.ID).
		Str("name", d.Name).
		Str("from", string(d.Status)).
		Str("to", string(status)).
		Msg("device status changed")

	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return d, nil
}

func (o *Orchestrator) ActiveWorkerCount() int {
	return o.sup.Count()
}

func (o *Orchestrator) IsDeviceRunning(id string) bool {
	return o.sup.IsRunning(id)
}

func (o *Orchestrator) WorkersStatus() types.WorkersStatus {
	n := o.sup.Count()
	return types.WorkersStatus{
		ActiveWorkerCount: n,
		Message:           fmt.Sprintf("%d device(s) currently generating transactions", n),
	}
}

// Ready reports whether Bootstrap has succeeded and Shutdown has not run.
func (o *Orchestrator) Ready() bool {
	return o.ready.Load()
}

// Shutdown refuses further toggles and stops every worker.
func (o *Orchestrator) Shutdown() {
	o.ready.Store(false)
	o.sup.ShutdownAll()
	o.logger.Info().Msg("orchestrator shut down")
}
