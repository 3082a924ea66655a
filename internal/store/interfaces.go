// Package store holds the durable backends for endpoint records and
// probe/health time series. Backends are selected at composition time.
package store

import (
	"context"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

// CredentialStore persists endpoint records. Missing ids return
// models.ErrNotFound; I/O failures return *models.StorageError.
type CredentialStore interface {
	Insert(ctx context.Context, endpoint *models.Endpoint) error
	SelectByID(ctx context.Context, id string) (*models.Endpoint, error)
	SelectAll(ctx context.Context, filter models.EndpointFilter) ([]*models.Endpoint, error)
	Update(ctx context.Context, endpoint *models.Endpoint) error
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// MetricsSink is the append-only time-series backend. Expiry of rows older
// than the retention window is the sink's own responsibility.
type MetricsSink interface {
	Append(ctx context.Context, record models.Record) error
	// RangeQuery returns records for endpointID with start <= timestamp <= end,
	// oldest first.
	RangeQuery(ctx context.Context, endpointID string, start, end time.Time) ([]models.Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultRetention is 90 days.
const DefaultRetention = 90 * 24 * time.Hour
