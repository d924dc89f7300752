package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB wraps the sql handle plus the pgx pool when running on Postgres.
type DB struct {
	SQL  *sql.DB
	pool *pgxpool.Pool
}

// Open connects according to cfg.Driver. For Postgres it creates a pgx pool
// and wraps it with the stdlib driver; for SQLite it opens an embedded
// modernc handle limited to a single writer connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case DriverPostgres:
		logger.Info("connecting to database", "driver", cfg.Driver)
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database config", "error", err)
			return nil, err
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			pc.MinConns = cfg.MinConns
		}
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.MaxConnIdleTime > 0 {
			pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "picdod"
		if cfg.StatementTimeout > 0 {
			pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
		}

		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}
		logger.Info("successfully connected to database")
		return &DB{SQL: stdlib.OpenDBFromPool(pool), pool: pool}, nil

	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:picdo.db"
		}
		logger.Info("opening embedded database", "dsn", dsn)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// modernc sqlite allows one writer; serialize through a single conn.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &DB{SQL: db}, nil

	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}

// Close closes the database connections gracefully.
func (d *DB) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if d.SQL != nil {
		if err := d.SQL.Close(); err != nil {
			logger.Error("failed to close sql handle", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	return d.SQL.PingContext(ctx)
}

// schema is portable across Postgres and SQLite: TEXT/BIGINT/INTEGER columns
// only, timestamps as unix microseconds. One statement per entry: pgx runs
// over the extended protocol, which rejects multi-statement strings.
var schema = []string{`
CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	status            TEXT NOT NULL,
	source            TEXT NOT NULL DEFAULT 'picker',
	ocr_text          TEXT NOT NULL DEFAULT '',
	item_type         TEXT,
	classification    TEXT,
	fields            TEXT,
	summary           TEXT,
	thumb             TEXT,
	is_favorite       INTEGER NOT NULL DEFAULT 0,
	action_applied    INTEGER NOT NULL DEFAULT 0,
	action_type       TEXT,
	action_applied_at BIGINT,
	error_code        TEXT,
	error_message     TEXT,
	created_at        BIGINT NOT NULL,
	updated_at        BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_owner_created ON jobs (owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_owner_status ON jobs (owner_id, status)`,
	`CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	ui_lang      TEXT NOT NULL DEFAULT 'en',
	created_at   BIGINT NOT NULL,
	last_seen_at BIGINT NOT NULL
)`,
}

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
