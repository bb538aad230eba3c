package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	dbpkg "github.com/elid/devicesim/internal/db"
	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

const deviceColumns = `device_id, name, device_type, ip_address, status, created_at_ms, updated_at_ms`

func (s *DeviceStore) ListActive(ctx context.Context) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+deviceColumns+`
FROM devices
WHERE status = 'active'
ORDER BY device_id;
`)
	if err != nil {
		return nil, errors.Wrap(err, "ListActive query")
	}
	defer rows.Close()

	var out []types.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, errors.Wrap(err, "ListActive scan")
		}
		out = append(out, d)
	}
	return out, errors.Wrap(rows.Err(), "ListActive rows")
}

func (s *DeviceStore) Get(ctx context.Context, id string) (types.Device, error) {
	id = strings.TrimSpace(id)
	row := s.db.QueryRowContext(ctx, `
SELECT `+deviceColumns+`
FROM devices
WHERE device_id = ?;
`, id)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, errors.Wrapf(store.ErrDeviceNotFound, "device %s", id)
	}
	if err != nil {
		return types.Device{}, errors.Wrap(err, "Get query")
	}
	return d, nil
}

func (s *DeviceStore) SetStatus(ctx context.Context, id string, status types.DeviceStatus) error {
	id = strings.TrimSpace(id)
	if !status.Valid() {
		return errors.Errorf("SetStatus: invalid status %q", status)
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE devices
SET status = ?,
    updated_at_ms = ?
WHERE device_id = ?;
`, string(status), nowMs, id)
		if err != nil {
			return errors.Wrap(err, "SetStatus update")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "SetStatus rows affected")
		}
		if n == 0 {
			return errors.Wrapf(store.ErrDeviceNotFound, "device %s", id)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(r rowScanner) (types.Device, error) {
	var (
		d                    types.Device
		devType, status      string
		createdMs, updatedMs int64
	)
	if err := r.Scan(&d.ID, &d.Name, &devType, &d.IPAddress, &status, &createdMs, &updatedMs); err != nil {
		return types.Device{}, err
	}
	d.Type = types.DeviceType(devType)
	d.Status = types.DeviceStatus(status)
	d.CreatedAt = time.UnixMilli(createdMs).UTC()
	d.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return d, nil
}
