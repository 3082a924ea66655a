// Package orchestrator fans probes and health evaluations out across every
// active endpoint and assembles the aggregate report.
//
// Each run:
//  1. Lists active endpoints. Inactive endpoints are never dispatched.
//  2. Starts one task per endpoint, each with its own timeout and its own
//     target connection.
//  3. Collects outcomes until every task has returned or the batch deadline
//     passes. Tasks still running at the deadline are cancelled and reported
//     as timeout failures.
//  4. Records every outcome and summarises the run per region.
//
// One endpoint's failure, timeout or panic never aborts its siblings or the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/evaluator"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/metrics"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/probe"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/regions"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultBatchTimeout = 60 * time.Second
)

// Endpoints is the slice of the credential vault the orchestrator needs.
type Endpoints interface {
	List(ctx context.Context, filter models.EndpointFilter) ([]*models.Endpoint, error)
	Get(ctx context.Context, id string) (*models.Endpoint, error)
	Target(ctx context.Context, endpoint *models.Endpoint) (adapter.Target, error)
}

// Recorder receives every outcome. It must not block.
type Recorder interface {
	RecordProbe(result *models.ProbeResult)
	RecordHealth(report *models.HealthReport)
}

type Config struct {
	ProbeTimeout    time.Duration
	BatchTimeout    time.Duration
	LatencyRounds   int
	LoadConcurrency int
	LoadDuration    time.Duration

	// Origin is the region the prober runs in, for latency estimates.
	Origin string
}

type Orchestrator struct {
	endpoints Endpoints
	executor  *probe.Executor
	evaluator *evaluator.Evaluator
	recorder  Recorder
	regions   *regions.Table
	metrics   *metrics.Metrics
	cfg       Config
	logger    *zap.Logger

	// tasks still running, including ones abandoned at a batch deadline
	inflight sync.WaitGroup
}

type task func(ctx context.Context, endpoint *models.Endpoint, target adapter.Target) models.EndpointOutcome

func New(
	endpoints Endpoints,
	executor *probe.Executor,
	eval *evaluator.Evaluator,
	recorder Recorder,
	table *regions.Table,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.LoadDuration <= 0 {
		cfg.LoadDuration = probe.DefaultLoadDuration
	}
	if table == nil {
		table = regions.Default
	}

	return &Orchestrator{
		endpoints: endpoints,
		executor:  executor,
		evaluator: eval,
		recorder:  recorder,
		regions:   table,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunProbeAll runs one probe of kind against every active endpoint.
func (o *Orchestrator) RunProbeAll(ctx context.Context, kind models.ProbeKind) (*models.AggregateReport, error) {
	if _, err := models.ParseProbeKind(string(kind)); err != nil {
		return nil, err
	}
	return o.run(ctx, models.RunKind(kind), o.probeTask(kind))
}

// RunHealthAll evaluates every active endpoint.
func (o *Orchestrator) RunHealthAll(ctx context.Context) (*models.AggregateReport, error) {
	return o.run(ctx, models.RunHealth, o.healthTask())
}

// ProbeOne probes a single endpoint, active or not.
func (o *Orchestrator) ProbeOne(ctx context.Context, id string, kind models.ProbeKind) (*models.ProbeResult, error) {
	if _, err := models.ParseProbeKind(string(kind)); err != nil {
		return nil, err
	}

	endpoint, err := o.endpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome := o.dispatch(ctx, models.RunKind(kind), endpoint, o.probeTask(kind))
	o.record(outcome)
	return outcome.Probe, nil
}

// EvaluateOne runs a health evaluation against a single endpoint.
func (o *Orchestrator) EvaluateOne(ctx context.Context, id string) (*models.HealthReport, error) {
	endpoint, err := o.endpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome := o.dispatch(ctx, models.RunHealth, endpoint, o.healthTask())
	o.record(outcome)
	return outcome.Health, nil
}

// Wait blocks until every task, including ones abandoned at a batch
// deadline, has returned and released its connection.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

func (o *Orchestrator) probeTask(kind models.ProbeKind) task {
	return func(ctx context.Context, endpoint *models.Endpoint, target adapter.Target) models.EndpointOutcome {
		var result *models.ProbeResult
		switch kind {
		case models.ProbeLatency:
			result = o.executor.Latency(ctx, endpoint.ID, target, o.cfg.LatencyRounds)
		case models.ProbeLoad:
			result = o.executor.Load(ctx, endpoint.ID, target, o.cfg.LoadConcurrency, o.cfg.LoadDuration)
		default:
			result = o.executor.Connectivity(ctx, endpoint.ID, target)
		}
		return outcomeFor(endpoint, result, nil)
	}
}

func (o *Orchestrator) healthTask() task {
	return func(ctx context.Context, endpoint *models.Endpoint, target adapter.Target) models.EndpointOutcome {
		return outcomeFor(endpoint, nil, o.evaluator.Evaluate(ctx, endpoint.ID, target))
	}
}

func (o *Orchestrator) run(ctx context.Context, kind models.RunKind, fn task) (*models.AggregateReport, error) {
	endpoints, err := o.endpoints.List(ctx, models.EndpointFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active endpoints: %w", err)
	}

	report := &models.AggregateReport{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}

	batchCtx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
	defer cancel()

	type slot struct {
		index   int
		outcome models.EndpointOutcome
	}

	n := len(endpoints)
	done := make(chan slot, n)
	o.inflight.Add(n)
	for i, endpoint := range endpoints {
		go func(i int, endpoint *models.Endpoint) {
			defer o.inflight.Done()
			done <- slot{index: i, outcome: o.dispatch(batchCtx, kind, endpoint, fn)}
		}(i, endpoint)
	}

	results := make([]models.EndpointOutcome, n)
	filled := make([]bool, n)
	received := 0

collect:
	for received < n {
		select {
		case s := <-done:
			results[s.index] = s.outcome
			filled[s.index] = true
			received++
		case <-batchCtx.Done():
			// take whatever finished alongside the deadline
			for {
				select {
				case s := <-done:
					results[s.index] = s.outcome
					filled[s.index] = true
					received++
				default:
					break collect
				}
			}
		}
	}

	timedOut := 0
	for i, endpoint := range endpoints {
		if !filled[i] {
			timedOut++
			results[i] = failedOutcome(kind, endpoint, models.ErrorKindTimeout,
				fmt.Errorf("batch deadline exceeded after %s: %w", o.cfg.BatchTimeout, context.Cause(batchCtx)))
		}
		o.record(results[i])
	}

	for _, r := range results {
		if r.Succeeded() {
			report.SucceededCount++
		} else {
			report.FailedCount++
		}
	}
	report.Results = results
	report.CompletedAt = time.Now().UTC()
	report.Regions = o.regions.Summarize(results, o.cfg.Origin)

	elapsed := report.CompletedAt.Sub(report.StartedAt)
	if o.metrics != nil {
		o.metrics.ObserveBatch(string(kind), elapsed.Seconds(), n, timedOut)
	}

	o.logger.Info("Batch run completed",
		zap.String("run_id", report.RunID),
		zap.String("kind", string(kind)),
		zap.Int("endpoints", n),
		zap.Int("succeeded", report.SucceededCount),
		zap.Int("failed", report.FailedCount),
		zap.Int("timed_out", timedOut),
		zap.Duration("elapsed", elapsed),
	)

	return report, nil
}

// dispatch runs fn for one endpoint under its own timeout. It never panics
// and always returns an outcome.
func (o *Orchestrator) dispatch(ctx context.Context, kind models.RunKind, endpoint *models.Endpoint, fn task) (outcome models.EndpointOutcome) {
	timeout := o.cfg.ProbeTimeout
	if kind == models.RunKind(models.ProbeLoad) {
		timeout += o.cfg.LoadDuration
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Task panicked",
				zap.String("endpoint_id", endpoint.ID),
				zap.String("kind", string(kind)),
				zap.Any("panic", r),
			)
			outcome = failedOutcome(kind, endpoint, models.ErrorKindUnknown, fmt.Errorf("task panicked: %v", r))
		}
		o.observe(outcome, time.Since(start))
	}()

	target, err := o.endpoints.Target(taskCtx, endpoint)
	if err != nil {
		errKind := models.ErrorKindUnknown
		if errors.Is(err, context.DeadlineExceeded) {
			errKind = models.ErrorKindTimeout
		}
		o.logger.Warn("Failed to prepare target",
			zap.String("endpoint_id", endpoint.ID),
			zap.Error(err),
		)
		return failedOutcome(kind, endpoint, errKind, fmt.Errorf("failed to reveal credential: %w", err))
	}

	outcome = fn(taskCtx, endpoint, target)
	if !outcome.Succeeded() {
		o.logger.Debug("Endpoint check failed",
			zap.String("endpoint_id", endpoint.ID),
			zap.String("kind", string(kind)),
			zap.String("reason", outcome.Reason()),
		)
	}
	return outcome
}

func (o *Orchestrator) observe(outcome models.EndpointOutcome, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	switch {
	case outcome.Probe != nil:
		o.metrics.ObserveProbe(string(outcome.Probe.Kind), outcome.Probe.Succeeded, elapsed.Seconds())
	case outcome.Health != nil:
		o.metrics.ObserveHealth(string(outcome.Health.Capability), outcome.Health.Succeeded)
	}
}

func (o *Orchestrator) record(outcome models.EndpointOutcome) {
	if o.recorder == nil {
		return
	}
	switch {
	case outcome.Probe != nil:
		o.recorder.RecordProbe(outcome.Probe)
	case outcome.Health != nil:
		o.recorder.RecordHealth(outcome.Health)
	}
}

func outcomeFor(endpoint *models.Endpoint, result *models.ProbeResult, report *models.HealthReport) models.EndpointOutcome {
	return models.EndpointOutcome{
		EndpointID:   endpoint.ID,
		EndpointName: endpoint.Name,
		Region:       endpoint.Region,
		Probe:        result,
		Health:       report,
	}
}

func failedOutcome(kind models.RunKind, endpoint *models.Endpoint, errKind models.ErrorKind, err error) models.EndpointOutcome {
	now := time.Now().UTC()

	if kind == models.RunHealth {
		report := &models.HealthReport{
			ID:         uuid.NewString(),
			EndpointID: endpoint.ID,
			Timestamp:  now,
			Capability: models.CapabilityBaseline,
		}
		report.Fail(errKind, err)
		return outcomeFor(endpoint, nil, report)
	}

	result := &models.ProbeResult{
		ID:         uuid.NewString(),
		EndpointID: endpoint.ID,
		Kind:       models.ProbeKind(kind),
		Timestamp:  now,
	}
	result.Fail(errKind, err)
	return outcomeFor(endpoint, result, nil)
}
