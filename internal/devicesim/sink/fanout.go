package sink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// Mirror is a best-effort secondary destination for recorded transactions.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, tx types.Transaction) error
}

// Metrics counts mirror failures per mirror name.
type Metrics interface {
	MirrorFailed(mirror string)
}

// Fanout records each transaction in the primary store and, once that
// succeeds, copies it to every mirror. Only the primary's error reaches the
// caller.
type Fanout struct {
	primary store.TransactionStore
	mirrors []Mirror
	logger  zerolog.Logger
	metrics Metrics
}

func NewFanout(primary store.TransactionStore, logger zerolog.Logger, m Metrics, mirrors ...Mirror) *Fanout {
	return &Fanout{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With().Str("component", "sink").Logger(),
		metrics: m,
	}
}

func (f *Fanout) RecordTransaction(ctx context.Context, tx types.Transaction) error {
	if err := f.primary.RecordTransaction(ctx, tx); err != nil {
		return err
	}

	for _, m := range f.mirrors {
		if err := m.Mirror(ctx, tx); err != nil {
			if f.metrics != nil {
				f.metrics.MirrorFailed(m.Name())
			}
			f.logger.Debug().Err(err).
				Str("mirror", m.Name()).
				Str("transaction_id", tx.TransactionID).
				Msg("mirror failed")
		}
	}
	return nil
}
