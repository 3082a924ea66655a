// Package eventbus connects the prober to NATS: outcomes and run summaries
// are published, and fleet runs can be requested by message.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// RunRequest asks for one fleet-wide run. Kind is a probe kind or "health".
type RunRequest struct {
	Kind string `json:"kind"`
}

// Runner executes fleet-wide runs.
type Runner interface {
	RunProbeAll(ctx context.Context, kind models.ProbeKind) (*models.AggregateReport, error)
	RunHealthAll(ctx context.Context) (*models.AggregateReport, error)
}

// ReportPublisher receives completed run reports. May be nil.
type ReportPublisher interface {
	PublishReport(report *models.AggregateReport) error
}

type Subscriber struct {
	conn         *nats.Conn
	subscription *nats.Subscription
	runner       Runner
	reports      ReportPublisher
	logger       *zap.Logger

	ctx context.Context

	mu     sync.Mutex
	closed bool
	runs   sync.WaitGroup
}

func NewSubscriber(natsURL string, runner Runner, reports ReportPublisher, logger *zap.Logger) (*Subscriber, error) {
	conn, err := connect(natsURL, "prober-subscriber")
	if err != nil {
		return nil, err
	}

	logger.Info("Prober (Sub) connected to NATS", zap.String("url", natsURL))

	return newSubscriber(conn, runner, reports, logger), nil
}

func newSubscriber(conn *nats.Conn, runner Runner, reports ReportPublisher, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		conn:    conn,
		runner:  runner,
		reports: reports,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start listens for run requests. Runs use ctx and stop with it.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx

	var err error
	s.subscription, err = s.conn.Subscribe(SubjectRunRequested, func(msg *nats.Msg) {
		s.dispatch(msg.Data)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Subscribed to run requests", zap.String("subject", SubjectRunRequested))
	return nil
}

// dispatch starts a requested run unless Close has begun. Runs are counted
// under mu so Close never waits on a group that is still growing.
func (s *Subscriber) dispatch(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Debug("Dropping run request, subscriber closed")
		return false
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if err := s.handleRunRequest(data); err != nil {
			s.logger.Warn("Run request failed", zap.Error(err))
		}
	}()
	return true
}

func (s *Subscriber) handleRunRequest(data []byte) error {
	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to unmarshal run request: %w", err)
	}

	var (
		report *models.AggregateReport
		err    error
	)
	if models.RunKind(req.Kind) == models.RunHealth {
		report, err = s.runner.RunHealthAll(s.ctx)
	} else {
		kind, perr := models.ParseProbeKind(req.Kind)
		if perr != nil {
			return perr
		}
		report, err = s.runner.RunProbeAll(s.ctx, kind)
	}
	if err != nil {
		return err
	}

	s.logger.Info("Completed requested run",
		zap.String("run_id", report.RunID),
		zap.String("kind", req.Kind),
	)

	if s.reports != nil {
		return s.reports.PublishReport(report)
	}
	return nil
}

// Close unsubscribes and waits for in-flight requested runs.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.subscription != nil {
		s.subscription.Unsubscribe()
	}
	s.runs.Wait()

	if s.conn != nil {
		s.conn.Close()
		s.logger.Info("Prober (Sub) disconnected from NATS")
	}
}

func (s *Subscriber) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}
