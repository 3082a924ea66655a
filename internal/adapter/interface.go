// Package adapter opens short-lived connections to registered PostgreSQL
// endpoints and runs the introspection queries the probes and the health
// evaluator need.
package adapter

import (
	"context"
	"errors"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
)

// Target is everything needed to open one connection. It is the only place a
// plaintext credential lives, and only for the duration of one probe call.
type Target struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSL      models.EffectiveSSL
}

// ServerInfo is returned by the trivial introspection round trip.
type ServerInfo struct {
	Addr       string
	BackendPID uint32
	Version    string
}

// Dialer opens a session owned exclusively by the caller.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// Session is one live connection to a target. Close must be called on every
// exit path, and is safe to call more than once.
type Session interface {
	ServerInfo(ctx context.Context) (ServerInfo, error)
	Ping(ctx context.Context) error
	Baseline(ctx context.Context) (models.Baseline, error)
	HasStatementStats(ctx context.Context) (bool, error)
	TopStatements(ctx context.Context, limit int) ([]models.QueryStat, error)
	Close(ctx context.Context) error
}

var (
	// NotConnected - session used after Close
	ErrNotConnected = errors.New("adapter: not connected to database")

	// InvalidTarget - target missing coordinates
	ErrInvalidTarget = errors.New("adapter: invalid target")
)
