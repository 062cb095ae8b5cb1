// Package postgres provides the pgx connection pool and error mapping for the PostgreSQL backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partshub/api/internal/platform/config"
)

const defaultConnectTimeout = 6 * time.Second

// Open parses the configured URL, applies pool limits and verifies connectivity.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("postgres: connection url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return WrapError("postgres.migrate", err)
	}
	return nil
}

// Schema is the DDL backing the PostgreSQL repositories.
const Schema = `
CREATE TABLE IF NOT EXISTS product_variants (
	variant_id        TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL DEFAULT '',
	sku               TEXT NOT NULL DEFAULT '',
	unit_cost_foreign NUMERIC(18,6) NOT NULL DEFAULT 0,
	items_per_carton  INTEGER NOT NULL DEFAULT 1,
	length_cm         NUMERIC(12,3) NOT NULL DEFAULT 0,
	width_cm          NUMERIC(12,3) NOT NULL DEFAULT 0,
	height_cm         NUMERIC(12,3) NOT NULL DEFAULT 0,
	retail_price      NUMERIC(18,4),
	online_price      NUMERIC(18,4),
	proposed_price    NUMERIC(18,4),
	stock_quantity    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sales (
	id             TEXT PRIMARY KEY,
	amount         NUMERIC(18,4) NOT NULL,
	payment_method TEXT NOT NULL DEFAULT 'unspecified',
	sold_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sales_sold_at_idx ON sales (sold_at);

CREATE TABLE IF NOT EXISTS shipment_drafts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	document   JSONB NOT NULL,
	line_count INTEGER NOT NULL DEFAULT 0,
	saved_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS shipment_drafts_saved_at_idx ON shipment_drafts (saved_at DESC);

CREATE TABLE IF NOT EXISTS daily_closings (
	id             TEXT NOT NULL,
	closing_date   DATE NOT NULL,
	expected_cash  NUMERIC(18,4) NOT NULL,
	actual_cash    NUMERIC(18,4) NOT NULL,
	digital_totals JSONB NOT NULL DEFAULT '{}'::jsonb,
	variance       NUMERIC(18,4) NOT NULL,
	status         TEXT NOT NULL,
	notes          TEXT NOT NULL DEFAULT '',
	closed_by      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT daily_closings_date_key UNIQUE (closing_date)
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	id              TEXT PRIMARY KEY,
	key             TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	status          TEXT NOT NULL,
	response_status INTEGER NOT NULL DEFAULT 0,
	headers         JSONB,
	body            BYTEA,
	created_at      TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idempotency_keys_expires_at_idx ON idempotency_keys (expires_at);
`
