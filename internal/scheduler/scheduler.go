// Package scheduler runs fleet-wide batches on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"go.uber.org/zap"
)

// Runner executes fleet-wide runs.
type Runner interface {
	RunProbeAll(ctx context.Context, kind models.ProbeKind) (*models.AggregateReport, error)
	RunHealthAll(ctx context.Context) (*models.AggregateReport, error)
}

// ReportPublisher receives each completed report.
type ReportPublisher interface {
	PublishReport(report *models.AggregateReport) error
}

type Scheduler struct {
	runner    Runner
	publisher ReportPublisher
	kinds     []models.RunKind
	interval  time.Duration
	logger    *zap.Logger
}

// New returns a scheduler for kinds. publisher may be nil.
func New(runner Runner, publisher ReportPublisher, kinds []models.RunKind, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		publisher: publisher,
		kinds:     kinds,
		interval:  interval,
		logger:    logger,
	}
}

// ParseKinds accepts probe kinds and "health".
func ParseKinds(names []string) ([]models.RunKind, error) {
	kinds := make([]models.RunKind, 0, len(names))
	for _, name := range names {
		if models.RunKind(name) == models.RunHealth {
			kinds = append(kinds, models.RunHealth)
			continue
		}
		kind, err := models.ParseProbeKind(name)
		if err != nil {
			return nil, fmt.Errorf("unknown schedule kind %q: %w", name, err)
		}
		kinds = append(kinds, models.RunKind(kind))
	}
	return kinds, nil
}

// Run ticks until ctx is cancelled. The first batch starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", s.interval)
	}

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Any("kinds", s.kinds),
	)

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("Scheduled run failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Warn("Scheduled run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce runs every configured kind in order. A failing kind does not stop
// the ones after it; the errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, kind := range s.kinds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		report, err := s.run(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s run: %w", kind, err))
			continue
		}

		s.logger.Info("Scheduled run completed",
			zap.String("run_id", report.RunID),
			zap.String("kind", string(kind)),
			zap.Int("succeeded", report.SucceededCount),
			zap.Int("failed", report.FailedCount),
		)

		if s.publisher != nil {
			if err := s.publisher.PublishReport(report); err != nil {
				s.logger.Warn("Failed to publish run report",
					zap.String("run_id", report.RunID),
					zap.Error(err),
				)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) run(ctx context.Context, kind models.RunKind) (*models.AggregateReport, error) {
	if kind == models.RunHealth {
		return s.runner.RunHealthAll(ctx)
	}
	return s.runner.RunProbeAll(ctx, models.ProbeKind(kind))
}
