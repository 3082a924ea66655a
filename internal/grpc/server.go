// Package grpc exposes the standard gRPC health service, kept in step with
// the dependency checks behind /health.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/health"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service entry for the prober itself; the empty
// name reports overall server health.
const ServiceName = "startupmonkey.prober"

const DefaultRefreshInterval = 15 * time.Second

type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	health     *grpchealth.Server
	checker    *health.Checker
	interval   time.Duration
	logger     *zap.Logger

	done chan struct{}
}

func NewServer(port string, checker *health.Checker, interval time.Duration, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	return newServer(listener, checker, interval, logger), nil
}

func newServer(listener net.Listener, checker *health.Checker, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	s := &Server{
		grpcServer: grpc.NewServer(),
		listener:   listener,
		health:     grpchealth.NewServer(),
		checker:    checker,
		interval:   interval,
		logger:     logger,
		done:       make(chan struct{}),
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	// Enable gRPC reflection for debugging (grpcurl, etc.)
	reflection.Register(s.grpcServer)

	return s
}

// Refresh runs the checks once and publishes the result.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	results, ok := s.checker.Run(ctx)
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("Dependency check failed", zap.Any("checks", results))
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Run serves until ctx is cancelled or the server fails, refreshing health
// status on every interval.
func (s *Server) Run(ctx context.Context) error {
	s.Refresh(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	s.logger.Info("gRPC health service listening", zap.String("addr", s.listener.Addr().String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errChan:
			return err
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
