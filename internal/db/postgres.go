package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGSERIAL PRIMARY KEY,
    username      VARCHAR(150) NOT NULL UNIQUE,
    email         VARCHAR(254) NOT NULL,
    password_hash TEXT NOT NULL,
    date_joined   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS request_logs (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT REFERENCES users(id) ON DELETE SET NULL,
    method           VARCHAR(4) NOT NULL,
    smiles           TEXT,
    has_molfile      BOOLEAN NOT NULL DEFAULT FALSE,
    width            INTEGER CHECK (width >= 0),
    height           INTEGER CHECK (height >= 0),
    image_format     VARCHAR(10) NOT NULL DEFAULT '',
    success          BOOLEAN NOT NULL DEFAULT TRUE,
    error_message    TEXT,
    response_time_ms INTEGER CHECK (response_time_ms >= 0),
    user_agent       TEXT,
    ip_address       VARCHAR(45),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS request_logs_created_at_idx ON request_logs (created_at);
`

func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, postgresSchema)
	return err
}
