package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMetricsSink keeps one sorted set per endpoint, scored by unix
// milliseconds. Each append prunes members past retention and refreshes the
// key TTL so idle endpoints expire on their own; reads never reach behind
// the retention cutoff.
type RedisMetricsSink struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewRedisMetricsSink(ctx context.Context, addr, password string, db int, retention time.Duration, logger *zap.Logger) (*RedisMetricsSink, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected metrics sink to Redis", zap.String("addr", addr))

	return &RedisMetricsSink{rdb: rdb, retention: retention, now: time.Now, logger: logger}, nil
}

func seriesKey(endpointID string) string {
	return fmt.Sprintf("probe_results:%s", endpointID)
}

func (s *RedisMetricsSink) Append(ctx context.Context, record models.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	key := seriesKey(record.EndpointID)
	cutoff := s.now().Add(-s.retention).UnixMilli()

	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(record.Timestamp.UnixMilli()), Member: data})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewStorageError("append", err)
	}
	return nil
}

func (s *RedisMetricsSink) RangeQuery(ctx context.Context, endpointID string, start, end time.Time) ([]models.Record, error) {
	if cutoff := s.now().Add(-s.retention); start.Before(cutoff) {
		start = cutoff
	}

	members, err := s.rdb.ZRangeByScore(ctx, seriesKey(endpointID), &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, models.NewStorageError("range query", err)
	}

	records := make([]models.Record, 0, len(members))
	for _, m := range members {
		var r models.Record
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			s.logger.Warn("Skipping unreadable record", zap.String("endpoint_id", endpointID), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *RedisMetricsSink) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisMetricsSink) Close() error {
	return s.rdb.Close()
}
