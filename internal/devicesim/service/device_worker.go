package service

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// deviceWorker generates transactions for a single device until its context
// is cancelled. Cancellation is the only way out of run.
type deviceWorker struct {
	deviceID   string
	deviceType types.DeviceType
	sink       store.TransactionStore
	cfg        SupervisorConfig
	logger     zerolog.Logger
	metrics    Metrics

	failureLog rate.Sometimes
	lastStamp  time.Time
}

func newDeviceWorker(id string, t types.DeviceType, sink store.TransactionStore, cfg SupervisorConfig, logger zerolog.Logger, m Metrics) *deviceWorker {
	return &deviceWorker{
		deviceID:   id,
		deviceType: t,
		sink:       sink,
		cfg:        cfg,
		logger:     logger.With().Str("device_id", id).Str("device_type", string(t)).Logger(),
		metrics:    m,
		failureLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

func (w *deviceWorker) run(ctx context.Context) {
	w.logger.Info().Msg("worker started")

	timer := time.NewTimer(w.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return
		case <-timer.C:
		}

		// The timer and cancellation can become ready together.
		if ctx.Err() != nil {
			w.logger.Info().Msg("worker stopped")
			return
		}

		w.emit(ctx)
		timer.Reset(w.nextDelay())
	}
}

func (w *deviceWorker) nextDelay() time.Duration {
	span := w.cfg.MaxDelay - w.cfg.MinDelay
	if span <= 0 {
		return w.cfg.MinDelay
	}
	return w.cfg.MinDelay + rand.N(span+1)
}

func (w *deviceWorker) emit(ctx context.Context) {
	tx := w.buildTransaction()

	sinkCtx, cancel := context.WithTimeout(ctx, w.cfg.SinkTimeout)
	defer cancel()

	start := time.Now()
	err := w.sink.RecordTransaction(sinkCtx, tx)
	elapsed := time.Since(start)

	if err != nil {
		w.metrics.SinkFailed(w.deviceType, elapsed)
		if ctx.Err() != nil {
			return
		}
		w.failureLog.Do(func() {
			w.logger.Warn().Err(err).
				Str("transaction_id", tx.TransactionID).
				Dur("elapsed", elapsed).
				Msg("transaction not recorded")
		})
		return
	}

	w.metrics.TransactionRecorded(w.deviceType, elapsed)
	w.logger.Debug().
		Str("transaction_id", tx.TransactionID).
		Str("event_type", tx.EventType).
		Str("username", tx.Username).
		Msg("transaction recorded")
}

func (w *deviceWorker) buildTransaction() types.Transaction {
	now := time.Now().UTC()
	if now.Before(w.lastStamp) {
		now = w.lastStamp
	}
	w.lastStamp = now

	return types.Transaction{
		TransactionID: uuid.NewString(),
		DeviceID:      w.deviceID,
		Username:      pickUsername(),
		EventType:     eventTypeFor(w.deviceType),
		Timestamp:     now,
		Payload:       GeneratePayload(w.deviceType),
	}
}
