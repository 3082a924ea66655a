// Package http is the operator API: endpoint registration, on-demand probes
// and health checks, recent results and trends, and Prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Endpoints is the registration surface of the credential vault.
type Endpoints interface {
	Create(ctx context.Context, spec models.EndpointSpec) (*models.Endpoint, error)
	Get(ctx context.Context, id string) (*models.Endpoint, error)
	List(ctx context.Context, filter models.EndpointFilter) ([]*models.Endpoint, error)
	Update(ctx context.Context, id string, spec models.EndpointSpec) (*models.Endpoint, error)
	Delete(ctx context.Context, id string) error
}

// Engine runs probes and health evaluations.
type Engine interface {
	RunProbeAll(ctx context.Context, kind models.ProbeKind) (*models.AggregateReport, error)
	RunHealthAll(ctx context.Context) (*models.AggregateReport, error)
	ProbeOne(ctx context.Context, id string, kind models.ProbeKind) (*models.ProbeResult, error)
	EvaluateOne(ctx context.Context, id string) (*models.HealthReport, error)
}

// History answers recent-window and trend queries.
type History interface {
	QueryRecent(ctx context.Context, endpointID string, window time.Duration) ([]models.Record, error)
	QueryTrend(ctx context.Context, endpointID string, metric models.TrendMetric, window time.Duration) ([]models.TrendPoint, error)
}

type Server struct {
	router     *mux.Router
	httpServer *http.Server
	endpoints  Endpoints
	engine     Engine
	history    History
	metrics    http.Handler
	logger     *zap.Logger
}

// NewServer builds the router. metricsHandler may be nil.
func NewServer(port string, endpoints Endpoints, engine Engine, history History, metricsHandler http.Handler, logger *zap.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		endpoints: endpoints,
		engine:    engine,
		history:   history,
		metrics:   metricsHandler,
		logger:    logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recovery, requestID, s.logging, cors)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/endpoints", s.listEndpoints).Methods(http.MethodGet)
	api.HandleFunc("/endpoints", s.createEndpoint).Methods(http.MethodPost)
	api.HandleFunc("/endpoints/{id}", s.getEndpoint).Methods(http.MethodGet)
	api.HandleFunc("/endpoints/{id}", s.updateEndpoint).Methods(http.MethodPut)
	api.HandleFunc("/endpoints/{id}", s.deleteEndpoint).Methods(http.MethodDelete)

	api.HandleFunc("/endpoints/{id}/probe/{kind}", s.probeOne).Methods(http.MethodPost)
	api.HandleFunc("/endpoints/{id}/health", s.evaluateOne).Methods(http.MethodPost)
	api.HandleFunc("/probe-all/{kind}", s.probeAll).Methods(http.MethodPost)
	api.HandleFunc("/health-all", s.healthAll).Methods(http.MethodPost)

	api.HandleFunc("/endpoints/{id}/recent", s.recent).Methods(http.MethodGet)
	api.HandleFunc("/endpoints/{id}/trend/{metric}", s.trend).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) Start() error {
	s.logger.Info("Operator API listening", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping operator API")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
		)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
