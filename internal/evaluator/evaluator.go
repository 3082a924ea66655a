// Package evaluator collects a tiered health report from one target.
// Baseline metrics are required; statement statistics are an optional
// upgrade that degrades to a warning when the server does not expose them.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTopQueriesLimit = 10

	releaseTimeout = 5 * time.Second
)

const warnExtensionMissing = "pg_stat_statements is not installed; statement statistics unavailable"

type Evaluator struct {
	dialer          adapter.Dialer
	topQueriesLimit int
	detectors       []Detector
	logger          *zap.Logger
}

func NewEvaluator(dialer adapter.Dialer, topQueriesLimit int, logger *zap.Logger) *Evaluator {
	if topQueriesLimit <= 0 {
		topQueriesLimit = DefaultTopQueriesLimit
	}
	return &Evaluator{
		dialer:          dialer,
		topQueriesLimit: topQueriesLimit,
		detectors:       DefaultDetectors(),
		logger:          logger,
	}
}

// Evaluate opens one connection, reads the baseline tier and then tries the
// extended tier. The connection is released on every path.
func (e *Evaluator) Evaluate(ctx context.Context, endpointID string, target adapter.Target) *models.HealthReport {
	start := time.Now()
	report := &models.HealthReport{
		ID:           uuid.NewString(),
		EndpointID:   endpointID,
		Timestamp:    start.UTC(),
		Capability:   models.CapabilityBaseline,
		EffectiveSSL: target.SSL,
	}
	defer func() {
		report.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	}()

	session, err := e.dialer.Dial(ctx, target)
	if err != nil {
		report.Fail(adapter.Classify(err), fmt.Errorf("failed to connect: %w", err))
		return report
	}
	defer e.release(session, endpointID)

	baseline, err := session.Baseline(ctx)
	if err != nil {
		report.Fail(adapter.Classify(err), fmt.Errorf("failed to collect baseline metrics: %w", err))
		return report
	}
	report.Baseline = baseline
	report.Succeeded = true

	e.extended(ctx, session, report)

	report.Findings = detect(e.detectors, report)
	for _, f := range report.Findings {
		e.logger.Info("Health finding",
			zap.String("endpoint_id", endpointID),
			zap.String("detector", f.Detector),
			zap.String("severity", string(f.Severity)),
			zap.String("title", f.Title),
		)
	}
	return report
}

// extended fills the statement-statistics tier, or records why it is absent.
func (e *Evaluator) extended(ctx context.Context, session adapter.Session, report *models.HealthReport) {
	available, err := session.HasStatementStats(ctx)
	if err != nil {
		e.degradeOrFail(report, err, "failed to detect statement statistics")
		return
	}
	if !available {
		e.degrade(report, warnExtensionMissing)
		return
	}

	top, err := session.TopStatements(ctx, e.topQueriesLimit)
	if err != nil {
		e.degradeOrFail(report, err, "failed to read statement statistics")
		return
	}

	report.Capability = models.CapabilityExtended
	report.ExtendedAvailable = true
	report.TopQueries = top
}

func (e *Evaluator) degradeOrFail(report *models.HealthReport, err error, what string) {
	if adapter.IsCapabilityUnavailable(err) {
		e.degrade(report, fmt.Sprintf("%s: %v", what, err))
		return
	}
	report.Fail(adapter.Classify(err), fmt.Errorf("%s: %w", what, err))
}

func (e *Evaluator) degrade(report *models.HealthReport, warning string) {
	report.Capability = models.CapabilityBaseline
	report.ExtendedAvailable = false
	report.TopQueries = nil
	report.Warning = &warning

	e.logger.Debug("Extended health tier unavailable",
		zap.String("endpoint_id", report.EndpointID),
		zap.String("warning", warning),
	)
}

func (e *Evaluator) release(session adapter.Session, endpointID string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := session.Close(ctx); err != nil {
		e.logger.Warn("Failed to close target connection",
			zap.String("endpoint_id", endpointID),
			zap.Error(err),
		)
	}
}
