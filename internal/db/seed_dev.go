package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type SeedDevice struct {
	ID        string
	Name      string
	Type      string
	IPAddress string
	Active    bool
}

type SeedDevOptions struct {
	Devices []SeedDevice
}

// SeedDev inserts the configured dev devices. Existing rows are left alone so
// a restart never resets a status that was toggled at runtime. Only id
// conflicts are skipped; a CHECK violation such as an unknown type fails.
// Devices with no id get a random one, which makes them new rows on every run.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) (int, error) {
	now := time.Now().UTC().UnixMilli()
	inserted := 0

	for _, d := range opt.Devices {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			id = uuid.NewString()
		}
		status := "inactive"
		if d.Active {
			status = "active"
		}

		res, err := db.ExecContext(ctx, `
INSERT INTO devices(
  device_id, name, device_type, ip_address, status, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id) DO NOTHING;
`, id, d.Name, strings.ToLower(strings.TrimSpace(d.Type)), d.IPAddress, status, now, now)
		if err != nil {
			return inserted, errors.Wrapf(err, "seed device %s", id)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	return inserted, nil
}
