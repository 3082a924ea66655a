// Package adaptertest provides an in-process adapter.Dialer for tests.
package adaptertest

import (
	"context"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

// Behavior scripts how sessions for one host respond.
type Behavior struct {
	DialErr   error
	DialDelay time.Duration

	Info adapter.ServerInfo

	PingErr   error
	PingErrAt int // fail only the Nth ping of a session (1-based); 0 fails every ping when PingErr is set
	PingDelay time.Duration

	Baseline    models.Baseline
	BaselineErr error

	StatsAvailable bool
	StatsCheckErr  error
	Top            []models.QueryStat
	TopErr         error
}

// Dialer implements adapter.Dialer and tracks open sessions.
type Dialer struct {
	Default Behavior
	PerHost map[string]Behavior

	mu      sync.Mutex
	dials   int
	open    int
	maxOpen int
	targets []adapter.Target
}

func (d *Dialer) behavior(host string) Behavior {
	if b, ok := d.PerHost[host]; ok {
		return b
	}
	return d.Default
}

func (d *Dialer) Dial(ctx context.Context, target adapter.Target) (adapter.Session, error) {
	b := d.behavior(target.Host)

	d.mu.Lock()
	d.dials++
	d.targets = append(d.targets, target)
	d.mu.Unlock()

	if err := sleep(ctx, b.DialDelay); err != nil {
		return nil, err
	}
	if b.DialErr != nil {
		return nil, b.DialErr
	}

	d.mu.Lock()
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.mu.Unlock()

	return &Session{dialer: d, b: b}, nil
}

// Open returns the number of sessions not yet closed.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialer) MaxOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Targets returns every target dialed, in order.
func (d *Dialer) Targets() []adapter.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]adapter.Target(nil), d.targets...)
}

type Session struct {
	dialer *Dialer
	b      Behavior

	mu     sync.Mutex
	pings  int
	closed bool
}

func (s *Session) ServerInfo(ctx context.Context) (adapter.ServerInfo, error) {
	if err := s.ready(ctx); err != nil {
		return adapter.ServerInfo{}, err
	}
	return s.b.Info, nil
}

func (s *Session) Ping(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.pings++
	n := s.pings
	s.mu.Unlock()

	if err := sleep(ctx, s.b.PingDelay); err != nil {
		return err
	}
	if s.b.PingErr != nil && (s.b.PingErrAt == 0 || s.b.PingErrAt == n) {
		return s.b.PingErr
	}
	return nil
}

func (s *Session) Baseline(ctx context.Context) (models.Baseline, error) {
	if err := s.ready(ctx); err != nil {
		return models.Baseline{}, err
	}
	return s.b.Baseline, s.b.BaselineErr
}

func (s *Session) HasStatementStats(ctx context.Context) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	return s.b.StatsAvailable, s.b.StatsCheckErr
}

func (s *Session) TopStatements(ctx context.Context, limit int) ([]models.QueryStat, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if s.b.TopErr != nil {
		return nil, s.b.TopErr
	}
	if limit < len(s.b.Top) {
		return s.b.Top[:limit], nil
	}
	return s.b.Top, nil
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.dialer.mu.Lock()
	s.dialer.open--
	s.dialer.mu.Unlock()
	return nil
}

func (s *Session) ready(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return adapter.ErrNotConnected
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
