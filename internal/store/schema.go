package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const endpointsSchema = `
CREATE TABLE IF NOT EXISTS endpoints (
	id                   UUID PRIMARY KEY,
	name                 TEXT NOT NULL,
	host                 TEXT NOT NULL,
	port                 INTEGER NOT NULL CHECK (port BETWEEN 1 AND 65535),
	database_name        TEXT NOT NULL,
	username             TEXT NOT NULL,
	ssl_mode             TEXT NOT NULL DEFAULT '' CHECK (ssl_mode IN ('', 'require', 'prefer', 'disable')),
	region               TEXT NOT NULL DEFAULT '',
	cloud_provider       TEXT NOT NULL DEFAULT '',
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	credential_hash      TEXT NOT NULL,
	credential_salt      TEXT NOT NULL,
	encrypted_credential TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS endpoints_region_idx ON endpoints (region);
`

const probeResultsSchema = `
CREATE TABLE IF NOT EXISTS probe_results (
	id          BIGSERIAL PRIMARY KEY,
	endpoint_id UUID NOT NULL,
	kind        TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS probe_results_endpoint_time_idx ON probe_results (endpoint_id, recorded_at);
`

func migrate(ctx context.Context, pool *pgxpool.Pool, ddl string) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// openPool follows the usual parse, connect, ping sequence.
func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
