package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectHealthReport = "health.report"
	SubjectRunCompleted = "runs.completed"
	SubjectRunRequested = "runs.requested"
)

// ProbeSubject is "probes.<kind>".
func ProbeSubject(kind models.ProbeKind) string {
	return "probes." + string(kind)
}

func connect(natsURL, name string) (*nats.Conn, error) {
	return nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
}

// Publisher publishes recorded outcomes and run summaries to NATS.
type Publisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewPublisher(natsURL string, logger *zap.Logger) (*Publisher, error) {
	conn, err := connect(natsURL, "prober-publisher")
	if err != nil {
		return nil, err
	}

	logger.Info("Prober (Pub) connected to NATS", zap.String("url", natsURL))

	return &Publisher{conn: conn, logger: logger}, nil
}

// Notify publishes one appended record on its kind's subject.
func (p *Publisher) Notify(_ context.Context, record models.Record) error {
	subject := SubjectHealthReport
	var payload any = record.Health
	if record.Probe != nil {
		subject = ProbeSubject(record.Probe.Kind)
		payload = record.Probe
	}

	return p.publish(subject, payload)
}

// PublishReport publishes an aggregate run summary.
func (p *Publisher) PublishReport(report *models.AggregateReport) error {
	if err := p.publish(SubjectRunCompleted, report); err != nil {
		return err
	}

	p.logger.Debug("Published run report",
		zap.String("run_id", report.RunID),
		zap.String("kind", string(report.Kind)),
	)
	return nil
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.logger.Info("Prober (Pub) disconnected from NATS")
	}
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
