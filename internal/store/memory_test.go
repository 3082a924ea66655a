package store

import (
	"context"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endpoint(id, region string, active bool, created time.Time) *models.Endpoint {
	return &models.Endpoint{
		ID:           id,
		Name:         "db-" + id,
		Host:         "db.example.com",
		Port:         5432,
		DatabaseName: "app",
		Username:     "svc",
		Region:       region,
		IsActive:     active,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestMemoryCredentialStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()
	now := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, endpoint("a", "eu-west-1", true, now)))
	assert.ErrorIs(t, s.Insert(ctx, endpoint("a", "eu-west-1", true, now)), models.ErrStorage)

	got, err := s.SelectByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "db-a", got.Name)

	// returned records are copies
	got.Name = "mutated"
	again, _ := s.SelectByID(ctx, "a")
	assert.Equal(t, "db-a", again.Name)

	got.Port = 6432
	require.NoError(t, s.Update(ctx, got))
	again, _ = s.SelectByID(ctx, "a")
	assert.Equal(t, 6432, again.Port)

	assert.ErrorIs(t, s.Update(ctx, endpoint("missing", "", true, now)), models.ErrNotFound)

	removed, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.SelectByID(ctx, "a")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryCredentialStore_SelectAllFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()
	base := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, endpoint("c", "us-east-1", true, base.Add(2*time.Second))))
	require.NoError(t, s.Insert(ctx, endpoint("a", "eu-west-1", true, base)))
	require.NoError(t, s.Insert(ctx, endpoint("b", "eu-west-1", false, base.Add(time.Second))))

	all, err := s.SelectAll(ctx, models.EndpointFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	active, _ := s.SelectAll(ctx, models.EndpointFilter{ActiveOnly: true})
	assert.Len(t, active, 2)

	eu, _ := s.SelectAll(ctx, models.EndpointFilter{Region: "eu-west-1", ActiveOnly: true})
	require.Len(t, eu, 1)
	assert.Equal(t, "a", eu[0].ID)
}

func TestMemoryMetricsSink_RangeAndRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryMetricsSink(24 * time.Hour)
	s.now = func() time.Time { return now }

	rec := func(ts time.Time) models.Record {
		return models.Record{Kind: models.RunHealth, EndpointID: "ep", Timestamp: ts}
	}

	require.NoError(t, s.Append(ctx, rec(now.Add(-48*time.Hour))))
	require.NoError(t, s.Append(ctx, rec(now.Add(-time.Minute))))
	require.NoError(t, s.Append(ctx, rec(now.Add(-time.Hour))))
	require.NoError(t, s.Append(ctx, models.Record{EndpointID: "other", Timestamp: now}))

	out, err := s.RangeQuery(ctx, "ep", now.Add(-72*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, out, 2, "expired record dropped")
	assert.True(t, out[0].Timestamp.Before(out[1].Timestamp), "oldest first")

	out, _ = s.RangeQuery(ctx, "ep", now.Add(-30*time.Minute), now)
	assert.Len(t, out, 1)

	out, _ = s.RangeQuery(ctx, "unknown", now.Add(-time.Hour), now)
	assert.Empty(t, out)
}

func TestMemoryMetricsSink_ExpiresWithoutFurtherAppends(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryMetricsSink(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(ctx, models.Record{Kind: models.RunHealth, EndpointID: "ep", Timestamp: now.Add(-10 * time.Minute)}))
	require.NoError(t, s.Append(ctx, models.Record{Kind: models.RunHealth, EndpointID: "idle", Timestamp: now.Add(-10 * time.Minute)}))

	// the endpoint stops recording; retention passes
	now = now.Add(3 * time.Hour)

	out, err := s.RangeQuery(ctx, "ep", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, out)

	removed, err := s.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed, "idle series swept")
	assert.Empty(t, s.records)
}

func TestMemoryMetricsSink_AppendSweepsOtherSeries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryMetricsSink(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(ctx, models.Record{EndpointID: "deleted", Timestamp: now}))
	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Append(ctx, models.Record{EndpointID: "live", Timestamp: now}))

	_, ok := s.records["deleted"]
	assert.False(t, ok)
	assert.Len(t, s.records["live"], 1)
}
