package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const defaultPath = "./data/devicesim.db"

type Config struct {
	Path        string // e.g. "./data/devicesim.db"
	BusyTimeout time.Duration
}

// DSN builds the modernc.org/sqlite DSN with the per-connection PRAGMAs the
// stores rely on: foreign keys (transactions reference devices), WAL, and a
// busy timeout.
func DSN(cfg Config) string {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		cfg.Path, busy.Milliseconds(),
	)
}

// Open creates the parent directory, opens a single-connection pool, pings,
// and applies migrations.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir db dir")
	}

	conn, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open")
	}

	// One connection: all writes go through Worker anyway, and SQLite only
	// allows a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "db ping")
	}

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}
