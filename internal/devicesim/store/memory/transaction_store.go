package memory

import (
	"context"
	"sync"
	"time"

	"github.com/elid/devicesim/internal/devicesim/types"
)

// TransactionStore is an in-memory append-only transaction log.
// It is intended for use in tests and dev environments.
type TransactionStore struct {
	mu           sync.Mutex
	transactions []types.Transaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{}
}

func (s *TransactionStore) RecordTransaction(_ context.Context, tx types.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, tx)
	return nil
}

// Transactions returns a copy of all recorded transactions.
func (s *TransactionStore) Transactions() []types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// ForDevice returns the transactions recorded for one device, oldest first.
func (s *TransactionStore) ForDevice(deviceID string) []types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Transaction
	for _, tx := range s.transactions {
		if tx.DeviceID == deviceID {
			out = append(out, tx)
		}
	}
	return out
}

func (s *TransactionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// Recent returns up to limit transactions in reverse insertion order.
func (s *TransactionStore) Recent(_ context.Context, limit int) ([]types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.transactions) {
		limit = len(s.transactions)
	}
	out := make([]types.Transaction, 0, limit)
	for i := len(s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.transactions[i])
	}
	return out, nil
}
