package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/metrics"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSink struct {
	store.MetricsSink
}

func (failingSink) Append(context.Context, models.Record) error {
	return models.NewStorageError("append", errors.New("disk full"))
}

type captureNotifier struct {
	mu      sync.Mutex
	records []models.Record
}

func (c *captureNotifier) Notify(_ context.Context, r models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func latencyResult(endpointID string, ts time.Time, ms float64, ok bool) *models.ProbeResult {
	return &models.ProbeResult{
		ID:         "r-" + ts.String(),
		EndpointID: endpointID,
		Kind:       models.ProbeLatency,
		Succeeded:  ok,
		Timestamp:  ts,
		LatencyMs:  &ms,
		MeanMs:     &ms,
	}
}

func TestRecorder_WritesAndNotifies(t *testing.T) {
	sink := store.NewMemoryMetricsSink(time.Hour)
	notifier := &captureNotifier{}
	m := metrics.NewMetrics()
	r := New(sink, notifier, m, 16, zap.NewNop())
	r.Start(context.Background())

	now := time.Now()
	r.RecordProbe(latencyResult("ep", now.Add(-2*time.Second), 4.5, true))
	r.RecordProbe(latencyResult("ep", now.Add(-time.Second), 9, false))
	r.RecordHealth(&models.HealthReport{EndpointID: "ep", Timestamp: now, Succeeded: true, Baseline: models.Baseline{CacheHitRatio: 98.5}})

	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsWritten))
	assert.Len(t, notifier.records, 3)

	recent, err := r.QueryRecent(context.Background(), "ep", time.Minute)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	trend, err := r.QueryTrend(context.Background(), "ep", models.MetricLatencyMs, time.Minute)
	require.NoError(t, err)
	require.Len(t, trend, 1, "failed attempts carry no value")
	assert.Equal(t, 4.5, trend[0].Value)

	cache, err := r.QueryTrend(context.Background(), "ep", models.MetricCacheHitRatio, time.Minute)
	require.NoError(t, err)
	require.Len(t, cache, 1)
	assert.Equal(t, 98.5, cache[0].Value)
}

func TestRecorder_SinkFailureIsNotPropagated(t *testing.T) {
	m := metrics.NewMetrics()
	notifier := &captureNotifier{}
	r := New(failingSink{}, notifier, m, 4, zap.NewNop())
	r.Start(context.Background())

	assert.NotPanics(t, func() {
		r.RecordProbe(latencyResult("ep", time.Now(), 1, true))
	})
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordErrors))
	assert.Empty(t, notifier.records, "unwritten records are not published")
}

func TestRecorder_FullQueueDrops(t *testing.T) {
	m := metrics.NewMetrics()
	r := New(store.NewMemoryMetricsSink(time.Hour), nil, m, 1, zap.NewNop())

	// not started: the first record fills the queue
	r.RecordProbe(latencyResult("ep", time.Now(), 1, true))
	r.RecordProbe(latencyResult("ep", time.Now(), 2, true))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped))

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsWritten), "queued record drained on close")

	r.RecordProbe(latencyResult("ep", time.Now(), 3, true))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsDropped), "closed recorder drops")
}

func TestRecorder_QueryValidation(t *testing.T) {
	r := New(store.NewMemoryMetricsSink(time.Hour), nil, metrics.NewMetrics(), 1, zap.NewNop())

	_, err := r.QueryRecent(context.Background(), "ep", 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = r.QueryRecent(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = r.QueryTrend(context.Background(), "ep", "p99", time.Minute)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := New(store.NewMemoryMetricsSink(time.Hour), nil, metrics.NewMetrics(), 1, zap.NewNop())
	r.Start(context.Background())

	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
}

func TestRecorder_NilMetrics(t *testing.T) {
	sink := store.NewMemoryMetricsSink(time.Hour)
	r := New(sink, nil, nil, 1, zap.NewNop())

	assert.NotPanics(t, func() {
		r.RecordProbe(latencyResult("ep", time.Now(), 1, true))
		r.RecordProbe(latencyResult("ep", time.Now(), 2, true)) // queue full, dropped
	})

	r.Start(context.Background())
	require.NoError(t, r.Close(context.Background()))

	rows, err := sink.RangeQuery(context.Background(), "ep", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
