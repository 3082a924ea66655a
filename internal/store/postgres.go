package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const endpointColumns = `id, name, host, port, database_name, username, ssl_mode, region,
	cloud_provider, is_active, credential_hash, credential_salt, encrypted_credential,
	created_at, updated_at`

var selectColumns = "id::text" + strings.TrimPrefix(endpointColumns, "id")

// PostgresCredentialStore persists endpoints in the endpoints table.
type PostgresCredentialStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresCredentialStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresCredentialStore, error) {
	pool, err := openPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrate(ctx, pool, endpointsSchema); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Connected credential store to PostgreSQL")

	return &PostgresCredentialStore{pool: pool, logger: logger}, nil
}

func (s *PostgresCredentialStore) Insert(ctx context.Context, e *models.Endpoint) error {
	query := `INSERT INTO endpoints (` + endpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.Name, e.Host, e.Port, e.DatabaseName, e.Username, string(e.SSLMode), e.Region,
		e.CloudProvider, e.IsActive, e.CredentialHash, e.CredentialSalt, e.EncryptedCredential,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return models.NewStorageError("insert", err)
	}
	return nil
}

func (s *PostgresCredentialStore) SelectByID(ctx context.Context, id string) (*models.Endpoint, error) {
	query := `SELECT ` + selectColumns + ` FROM endpoints WHERE id = $1`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, models.NewStorageError("select", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEndpoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, models.ErrNotFound
		}
		return nil, models.NewStorageError("select", err)
	}
	return e, nil
}

func (s *PostgresCredentialStore) SelectAll(ctx context.Context, filter models.EndpointFilter) ([]*models.Endpoint, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	if filter.Region != "" {
		args = append(args, filter.Region)
		where = append(where, fmt.Sprintf("region = $%d", len(args)))
	}
	if filter.CloudProvider != "" {
		args = append(args, filter.CloudProvider)
		where = append(where, fmt.Sprintf("cloud_provider = $%d", len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM endpoints`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError("select", err)
	}
	endpoints, err := pgx.CollectRows(rows, scanEndpoint)
	if err != nil {
		return nil, models.NewStorageError("select", err)
	}
	return endpoints, nil
}

func (s *PostgresCredentialStore) Update(ctx context.Context, e *models.Endpoint) error {
	query := `
		UPDATE endpoints
		SET name = $2, host = $3, port = $4, database_name = $5, username = $6, ssl_mode = $7,
			region = $8, cloud_provider = $9, is_active = $10, credential_hash = $11,
			credential_salt = $12, encrypted_credential = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		e.ID, e.Name, e.Host, e.Port, e.DatabaseName, e.Username, string(e.SSLMode),
		e.Region, e.CloudProvider, e.IsActive, e.CredentialHash,
		e.CredentialSalt, e.EncryptedCredential, e.UpdatedAt,
	)
	if err != nil {
		return models.NewStorageError("update", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresCredentialStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, models.NewStorageError("delete", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *PostgresCredentialStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresCredentialStore) Close() error {
	s.pool.Close()
	return nil
}

func scanEndpoint(row pgx.CollectableRow) (*models.Endpoint, error) {
	var (
		e       models.Endpoint
		sslMode string
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Host, &e.Port, &e.DatabaseName, &e.Username, &sslMode, &e.Region,
		&e.CloudProvider, &e.IsActive, &e.CredentialHash, &e.CredentialSalt, &e.EncryptedCredential,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.SSLMode = models.SSLMode(sslMode)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// invalidTextRepresentation is raised when an id does not parse as a uuid.
const invalidTextRepresentation = "22P02"

// isInvalidUUID treats a malformed id as an unknown one.
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

// PostgresMetricsSink appends records to probe_results as JSONB and expires
// rows older than the retention window from a background loop.
type PostgresMetricsSink struct {
	pool      *pgxpool.Pool
	retention time.Duration
	logger    *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// expiryInterval is how often expired rows are deleted.
const expiryInterval = time.Hour

func NewPostgresMetricsSink(ctx context.Context, databaseURL string, retention time.Duration, logger *zap.Logger) (*PostgresMetricsSink, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	pool, err := openPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrate(ctx, pool, probeResultsSchema); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresMetricsSink{
		pool:      pool,
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.expireLoop()

	logger.Info("Connected metrics sink to PostgreSQL", zap.Duration("retention", retention))

	return s, nil
}

func (s *PostgresMetricsSink) Append(ctx context.Context, record models.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO probe_results (endpoint_id, kind, recorded_at, payload) VALUES ($1, $2, $3, $4)`,
		record.EndpointID, string(record.Kind), record.Timestamp, payload,
	)
	if err != nil {
		return models.NewStorageError("append", err)
	}
	return nil
}

func (s *PostgresMetricsSink) RangeQuery(ctx context.Context, endpointID string, start, end time.Time) ([]models.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM probe_results
		WHERE endpoint_id = $1 AND recorded_at BETWEEN $2 AND $3
		ORDER BY recorded_at, id
	`, endpointID, start, end)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, models.NewStorageError("range query", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Record, error) {
		var (
			payload []byte
			r       models.Record
		)
		if err := row.Scan(&payload); err != nil {
			return r, err
		}
		err := json.Unmarshal(payload, &r)
		return r, err
	})
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, models.NewStorageError("range query", err)
	}
	return records, nil
}

// Expire deletes rows older than the retention window and returns how many
// were removed.
func (s *PostgresMetricsSink) Expire(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	result, err := s.pool.Exec(ctx, `DELETE FROM probe_results WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, models.NewStorageError("expire", err)
	}
	return result.RowsAffected(), nil
}

func (s *PostgresMetricsSink) expireLoop() {
	defer close(s.done)

	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := s.Expire(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("Failed to expire probe results", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Expired probe results", zap.Int64("rows", n))
			}
		}
	}
}

func (s *PostgresMetricsSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresMetricsSink) Close() error {
	close(s.stop)
	<-s.done
	s.pool.Close()
	return nil
}
