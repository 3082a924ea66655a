// Package health serves the service's own liveness endpoint and the
// dependency checks shared with the gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/system"
	"go.uber.org/zap"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	checkTimeout = 2 * time.Second
)

// Check pings one dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Checker runs every check concurrently.
type Checker struct {
	checks []Check
}

func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

// Run returns each check's status ("ok" or the error text) and whether all passed.
func (c *Checker) Run(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(c.checks))
		healthy = true
	)
	for _, check := range c.checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			status := "ok"
			if err := check.Ping(ctx); err != nil {
				status = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			results[check.Name] = status
			if status != "ok" {
				healthy = false
			}
		}(check)
	}
	wg.Wait()

	return results, healthy
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Service       string            `json:"service"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Timestamp     int64             `json:"timestamp"`
	Checks        map[string]string `json:"checks,omitempty"`
	Host          *system.Metrics   `json:"host,omitempty"`
}

type Server struct {
	service   string
	checker   *Checker
	startTime time.Time
	logger    *zap.Logger
	http      *http.Server
}

func NewServer(port, service string, checker *Checker, logger *zap.Logger) *Server {
	s := &Server{
		service:   service,
		checker:   checker,
		startTime: time.Now(),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	s.logger.Info("Health check listening", zap.String("addr", s.http.Addr))

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Health server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	checks, ok := s.checker.Run(r.Context())

	response := &HealthResponse{
		Status:        StatusHealthy,
		Service:       s.service,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Timestamp:     time.Now().Unix(),
		Checks:        checks,
		Host:          system.Collect(),
	}

	code := http.StatusOK
	if !ok {
		response.Status = StatusDegraded
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
