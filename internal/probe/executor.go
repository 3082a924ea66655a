// Package probe runs connectivity, latency and load probes against one target.
package probe

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLatencyRounds   = 5
	DefaultLoadConcurrency = 10
	DefaultLoadDuration    = 2 * time.Second

	// releaseTimeout bounds connection teardown, which runs even after the
	// probe's own context is cancelled.
	releaseTimeout = 5 * time.Second
)

// HostSampler reports the prober host's own load. May be nil.
type HostSampler func() *models.HostSnapshot

type Executor struct {
	dialer adapter.Dialer
	host   HostSampler
	logger *zap.Logger
}

func NewExecutor(dialer adapter.Dialer, host HostSampler, logger *zap.Logger) *Executor {
	return &Executor{
		dialer: dialer,
		host:   host,
		logger: logger,
	}
}

// Connectivity opens one connection, runs the server introspection query and
// reports the wall-clock time of the whole exchange.
func (e *Executor) Connectivity(ctx context.Context, endpointID string, target adapter.Target) *models.ProbeResult {
	result := newResult(endpointID, models.ProbeConnectivity, target)
	start := time.Now()

	session, err := e.dialer.Dial(ctx, target)
	if err != nil {
		result.Fail(adapter.Classify(err), err)
		return result
	}
	defer e.release(session, endpointID)

	info, err := session.ServerInfo(ctx)
	if err != nil {
		result.Fail(adapter.Classify(err), err)
		return result
	}

	elapsed := msSince(start)
	result.Succeeded = true
	result.LatencyMs = &elapsed
	result.SampleCount = 1
	result.ServerAddr = info.Addr
	result.BackendPID = info.BackendPID
	result.ServerVersion = info.Version

	return result
}

// Latency runs rounds sequential round trips over one connection. A failed
// round aborts the sample; statistics cover the rounds completed before it.
func (e *Executor) Latency(ctx context.Context, endpointID string, target adapter.Target, rounds int) *models.ProbeResult {
	if rounds <= 0 {
		rounds = DefaultLatencyRounds
	}

	result := newResult(endpointID, models.ProbeLatency, target)

	session, err := e.dialer.Dial(ctx, target)
	if err != nil {
		result.FailedRound = 1
		result.Fail(adapter.Classify(err), fmt.Errorf("round 1/%d failed to connect: %w", rounds, err))
		return result
	}
	defer e.release(session, endpointID)

	if info, err := session.ServerInfo(ctx); err == nil {
		result.ServerAddr = info.Addr
		result.BackendPID = info.BackendPID
		result.ServerVersion = info.Version
	} else {
		result.FailedRound = 1
		result.Fail(adapter.Classify(err), fmt.Errorf("round 1/%d failed: %w", rounds, err))
		return result
	}

	samples := make([]float64, 0, rounds)
	for round := 1; round <= rounds; round++ {
		start := time.Now()
		if err := session.Ping(ctx); err != nil {
			result.FailedRound = round
			result.Fail(adapter.Classify(err), fmt.Errorf("round %d/%d failed: %w", round, rounds, err))
			break
		}
		samples = append(samples, msSince(start))
	}

	result.Samples = samples
	result.SampleCount = len(samples)
	if len(samples) > 0 {
		var agg stats
		for _, s := range samples {
			agg.add(s)
		}
		agg.apply(result)
	}

	if result.FailedRound == 0 {
		result.Succeeded = true
	}
	return result
}

// Load opens concurrency connections in parallel and keeps each busy with
// round trips until duration elapses. A failing connection stops only itself.
// Every connection is released before Load returns.
func (e *Executor) Load(ctx context.Context, endpointID string, target adapter.Target, concurrency int, duration time.Duration) *models.ProbeResult {
	if concurrency <= 0 {
		concurrency = DefaultLoadConcurrency
	}
	if duration <= 0 {
		duration = DefaultLoadDuration
	}

	result := newResult(endpointID, models.ProbeLoad, target)
	result.Concurrency = concurrency
	result.Connections = make([]models.ConnectionStat, concurrency)

	windowCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var (
		mu        sync.Mutex
		agg       stats
		succeeded int
		failed    int
		firstErr  error
	)

	// windowClosed is true when err only reflects the end of the load window.
	windowClosed := func() bool {
		return windowCtx.Err() != nil && ctx.Err() == nil
	}

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		idx := i
		g.Go(func() error {
			conn := models.ConnectionStat{Index: idx}
			defer func() {
				mu.Lock()
				result.Connections[idx] = conn
				mu.Unlock()
			}()

			fail := func(err error) {
				conn.ErrorKind = adapter.Classify(err)
				conn.Error = err.Error()
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}

			session, err := e.dialer.Dial(windowCtx, target)
			if err != nil {
				if !windowClosed() {
					fail(fmt.Errorf("connection %d: %w", idx, err))
				}
				return nil
			}
			defer e.release(session, endpointID)

			for windowCtx.Err() == nil {
				rtStart := time.Now()
				if err := session.Ping(windowCtx); err != nil {
					if !windowClosed() {
						fail(fmt.Errorf("connection %d round trip %d: %w", idx, conn.RoundTrips+1, err))
					}
					return nil
				}
				ms := msSince(rtStart)
				conn.RoundTrips++

				mu.Lock()
				succeeded++
				agg.add(ms)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	result.DurationMs = float64(elapsed.Microseconds()) / 1000
	result.SucceededCount = succeeded
	result.FailedCount = failed
	result.SampleCount = succeeded + failed
	if secs := elapsed.Seconds(); secs > 0 {
		result.ThroughputQPS = round2(float64(succeeded) / secs)
	}
	if agg.n > 0 {
		agg.apply(result)
	}
	if e.host != nil {
		result.Host = e.host()
	}

	switch {
	case failed > 0:
		result.Fail(adapter.Classify(firstErr), fmt.Errorf("%d of %d attempts failed, first: %w", failed, result.SampleCount, firstErr))
	case succeeded == 0:
		result.Fail(models.ErrorKindTimeout, fmt.Errorf("no round trip completed within %s", duration))
	default:
		result.Succeeded = true
	}

	e.logger.Debug("Load test finished",
		zap.String("endpoint_id", endpointID),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Float64("throughput_qps", result.ThroughputQPS),
	)

	return result
}

func (e *Executor) release(session adapter.Session, endpointID string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := session.Close(ctx); err != nil {
		e.logger.Warn("Failed to close target connection",
			zap.String("endpoint_id", endpointID),
			zap.Error(err),
		)
	}
}

func newResult(endpointID string, kind models.ProbeKind, target adapter.Target) *models.ProbeResult {
	return &models.ProbeResult{
		ID:           uuid.NewString(),
		EndpointID:   endpointID,
		Kind:         kind,
		Timestamp:    time.Now().UTC(),
		EffectiveSSL: target.SSL,
	}
}

type stats struct {
	n   int
	sum float64
	min float64
	max float64
}

func (s *stats) add(v float64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.n++
	s.sum += v
}

func (s *stats) apply(r *models.ProbeResult) {
	lo, hi, mean := round2(s.min), round2(s.max), round2(s.sum/float64(s.n))
	r.MinMs = &lo
	r.MaxMs = &hi
	r.MeanMs = &mean
	r.LatencyMs = &mean
}

func msSince(t time.Time) float64 {
	return round2(float64(time.Since(t).Microseconds()) / 1000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
