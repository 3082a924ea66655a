// Package recorder persists probe results and health reports to the metrics
// sink off the probe path, and serves recent-window and trend queries.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/metrics"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize = 1024

	writeTimeout = 5 * time.Second
)

// Notifier receives every record after it has been appended.
type Notifier interface {
	Notify(ctx context.Context, record models.Record) error
}

type Recorder struct {
	sink     store.MetricsSink
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	queue chan models.Record

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// New builds a recorder. notifier may be nil; a nil m counts into a
// private registry that is never served.
func New(sink store.MetricsSink, notifier Notifier, m *metrics.Metrics, queueSize int, logger *zap.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Recorder{
		sink:     sink,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan models.Record, queueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the background writer. The writer runs until Close.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	go r.run(ctx)
	r.logger.Info("Recorder started", zap.Int("queue_size", cap(r.queue)))
}

// Record enqueues a record without blocking. A full or closed queue drops it.
func (r *Recorder) Record(record models.Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordsDropped.Inc()
		return
	}

	select {
	case r.queue <- record:
		r.metrics.RecorderBacklog.Set(float64(len(r.queue)))
	default:
		r.metrics.RecordsDropped.Inc()
		r.logger.Warn("Recorder queue full, dropping record",
			zap.String("endpoint_id", record.EndpointID),
			zap.String("kind", string(record.Kind)),
		)
	}
}

func (r *Recorder) RecordProbe(result *models.ProbeResult) {
	r.Record(models.ProbeRecord(result))
}

func (r *Recorder) RecordHealth(report *models.HealthReport) {
	r.Record(models.HealthRecord(report))
}

// Close stops intake and waits for the queue to drain or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		// nobody will drain it
		go r.run(context.Background())
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("recorder did not drain: %w", ctx.Err())
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	for record := range r.queue {
		r.metrics.RecorderBacklog.Set(float64(len(r.queue)))
		r.write(ctx, record)
	}
}

func (r *Recorder) write(ctx context.Context, record models.Record) {
	// records already accepted are written even after ctx ends
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.sink.Append(writeCtx, record); err != nil {
		r.metrics.RecordErrors.Inc()
		r.logger.Error("Failed to append record",
			zap.String("endpoint_id", record.EndpointID),
			zap.String("kind", string(record.Kind)),
			zap.Error(err),
		)
		return
	}
	r.metrics.RecordsWritten.Inc()

	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(writeCtx, record); err != nil {
		r.logger.Warn("Failed to publish record",
			zap.String("endpoint_id", record.EndpointID),
			zap.Error(err),
		)
	}
}

// QueryRecent returns the endpoint's records from the last window, oldest first.
func (r *Recorder) QueryRecent(ctx context.Context, endpointID string, window time.Duration) ([]models.Record, error) {
	if endpointID == "" {
		return nil, models.NewValidationError("id", "is required")
	}
	if window <= 0 {
		return nil, models.NewValidationError("window", "must be positive")
	}

	end := r.now()
	records, err := r.sink.RangeQuery(ctx, endpointID, end.Add(-window), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return records, nil
}

// QueryTrend extracts one metric series from the endpoint's recent records.
// Records that do not carry the metric, including failed attempts, are skipped.
func (r *Recorder) QueryTrend(ctx context.Context, endpointID string, metric models.TrendMetric, window time.Duration) ([]models.TrendPoint, error) {
	if _, err := models.ParseTrendMetric(string(metric)); err != nil {
		return nil, err
	}

	records, err := r.QueryRecent(ctx, endpointID, window)
	if err != nil {
		return nil, err
	}

	points := make([]models.TrendPoint, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Value(metric); ok {
			points = append(points, models.TrendPoint{Timestamp: rec.Timestamp, Value: v})
		}
	}
	return points, nil
}
