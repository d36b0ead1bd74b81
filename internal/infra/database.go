package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the storefront tables when they do not exist yet. The
// unique constraints on ledger_entries back the idempotency guarantees: one
// row per gateway reference, one purchase debit per order.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            email           TEXT PRIMARY KEY,
            name            TEXT NOT NULL DEFAULT '',
            password_hash   BYTEA NOT NULL,
            balance_pesewas BIGINT NOT NULL DEFAULT 0,
            role            TEXT NOT NULL,
            session_version INT NOT NULL DEFAULT 1,
            created_at      TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
            id              TEXT PRIMARY KEY,
            kind            TEXT NOT NULL,
            external_ref    TEXT UNIQUE,
            order_id        TEXT UNIQUE,
            user_email      TEXT NOT NULL REFERENCES users (email),
            amount_pesewas  BIGINT NOT NULL,
            status          TEXT NOT NULL,
            created_at      TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_email, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS orders (
            id              TEXT PRIMARY KEY,
            user_email      TEXT NOT NULL,
            bundle_id       TEXT NOT NULL DEFAULT '',
            network         TEXT NOT NULL DEFAULT '',
            title           TEXT NOT NULL DEFAULT '',
            beneficiary     TEXT NOT NULL DEFAULT '',
            price_pesewas   BIGINT NOT NULL DEFAULT 0,
            status          TEXT NOT NULL,
            paid            BOOLEAN NOT NULL DEFAULT FALSE,
            remote_id       TEXT NOT NULL DEFAULT '',
            created_at      TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_email, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
