package sqlite

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	dbpkg "github.com/elid/devicesim/internal/db"
	"github.com/elid/devicesim/internal/devicesim/types"
)

type TransactionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewTransactionStore(db *sql.DB, writer *dbpkg.Worker) *TransactionStore {
	return &TransactionStore{db: db, writer: writer}
}

// RecordTransaction appends tx. The devices FK rejects transactions for
// unknown devices.
func (s *TransactionStore) RecordTransaction(ctx context.Context, tx types.Transaction) error {
	if tx.TransactionID == "" || tx.DeviceID == "" {
		return errors.New("RecordTransaction: transaction_id and device_id are required")
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	createdMs := time.Now().UTC().UnixMilli()

	var payload any
	if tx.Payload != nil {
		b, err := json.Marshal(tx.Payload)
		if err != nil {
			return errors.Wrap(err, "RecordTransaction encode payload")
		}
		payload = string(b)
	}

	return s.writer.Do(ctx, func(ctx context.Context, sqlTx *sql.Tx) error {
		if _, err := sqlTx.ExecContext(ctx, `
INSERT INTO transactions(
  transaction_id, device_id, username, event_type, payload_json, timestamp_ms, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			tx.TransactionID, tx.DeviceID, tx.Username, tx.EventType, payload,
			tx.Timestamp.UTC().UnixMilli(), createdMs,
		); err != nil {
			return errors.Wrap(err, "RecordTransaction insert")
		}
		return nil
	})
}

// Recent returns the newest transactions first.
func (s *TransactionStore) Recent(ctx context.Context, limit int) ([]types.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT transaction_id, device_id, username, event_type, payload_json, timestamp_ms, created_at_ms
FROM transactions
ORDER BY timestamp_ms DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "Recent query")
	}
	defer rows.Close()

	var out []types.Transaction
	for rows.Next() {
		var (
			tx          types.Transaction
			payload     sql.NullString
			tsMs, crtMs int64
		)
		if err := rows.Scan(&tx.TransactionID, &tx.DeviceID, &tx.Username, &tx.EventType, &payload, &tsMs, &crtMs); err != nil {
			return nil, errors.Wrap(err, "Recent scan")
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &tx.Payload); err != nil {
				return nil, errors.Wrapf(err, "Recent decode payload %s", tx.TransactionID)
			}
		}
		tx.Timestamp = time.UnixMilli(tsMs).UTC()
		tx.CreatedAt = time.UnixMilli(crtMs).UTC()
		out = append(out, tx)
	}
	return out, errors.Wrap(rows.Err(), "Recent rows")
}
