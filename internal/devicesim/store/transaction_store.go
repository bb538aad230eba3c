package store

import (
	"context"

	"github.com/elid/devicesim/internal/devicesim/types"
)

// TransactionStore persists simulated transactions as an append-only log.
// Implementations must be safe for concurrent use by many device workers.
type TransactionStore interface {
	RecordTransaction(ctx context.Context, tx types.Transaction) error
}
