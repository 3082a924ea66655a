package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

// MemoryCredentialStore keeps endpoints in process memory.
type MemoryCredentialStore struct {
	mu        sync.RWMutex
	endpoints map[string]*models.Endpoint
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{endpoints: make(map[string]*models.Endpoint)}
}

func (s *MemoryCredentialStore) Insert(_ context.Context, endpoint *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[endpoint.ID]; ok {
		return models.NewStorageError("insert", fmt.Errorf("duplicate endpoint id %s", endpoint.ID))
	}
	s.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

func (s *MemoryCredentialStore) SelectByID(_ context.Context, id string) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.endpoints[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return e.Clone(), nil
}

// SelectAll returns matching endpoints ordered by creation time.
func (s *MemoryCredentialStore) SelectAll(_ context.Context, filter models.EndpointFilter) ([]*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		if filter.Matches(e) {
			out = append(out, e.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryCredentialStore) Update(_ context.Context, endpoint *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[endpoint.ID]; !ok {
		return models.ErrNotFound
	}
	s.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return false, nil
	}
	delete(s.endpoints, id)
	return true, nil
}

func (s *MemoryCredentialStore) Ping(context.Context) error { return nil }

func (s *MemoryCredentialStore) Close() error { return nil }

// MemoryMetricsSink keeps records per endpoint. Every append sweeps all
// series past the retention window, and reads never return expired rows.
type MemoryMetricsSink struct {
	mu        sync.RWMutex
	records   map[string][]models.Record
	retention time.Duration
	now       func() time.Time
}

func NewMemoryMetricsSink(retention time.Duration) *MemoryMetricsSink {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryMetricsSink{
		records:   make(map[string][]models.Record),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryMetricsSink) Append(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	s.expireLocked(cutoff)

	if record.Timestamp.Before(cutoff) {
		return nil
	}
	series := append(s.records[record.EndpointID], record)

	// keep the series ordered even when writers race
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	s.records[record.EndpointID] = series
	return nil
}

func (s *MemoryMetricsSink) RangeQuery(_ context.Context, endpointID string, start, end time.Time) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	s.pruneLocked(endpointID, cutoff)
	if start.Before(cutoff) {
		start = cutoff
	}

	var out []models.Record
	for _, r := range s.records[endpointID] {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Expire drops every record past retention and returns how many went.
func (s *MemoryMetricsSink) Expire(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireLocked(s.now().Add(-s.retention)), nil
}

func (s *MemoryMetricsSink) expireLocked(cutoff time.Time) int64 {
	var removed int64
	for id := range s.records {
		removed += s.pruneLocked(id, cutoff)
	}
	return removed
}

// pruneLocked drops the series' records older than cutoff. Series are sorted,
// so the expired rows are a prefix.
func (s *MemoryMetricsSink) pruneLocked(endpointID string, cutoff time.Time) int64 {
	series := s.records[endpointID]
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(cutoff)
	})
	if i == 0 {
		return 0
	}
	if i == len(series) {
		delete(s.records, endpointID)
	} else {
		s.records[endpointID] = append([]models.Record(nil), series[i:]...)
	}
	return int64(i)
}

func (s *MemoryMetricsSink) Ping(context.Context) error { return nil }

func (s *MemoryMetricsSink) Close() error { return nil }
