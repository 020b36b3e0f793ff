// Package handler reports service readiness over HTTP (/readyz) and the
// standard gRPC health protocol.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside "" (overall).
const ServiceName = "nutrihub.auth"

const checkTimeout = 2 * time.Second

// Pinger checks the account store. The user repositories implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks the password policy engine. *engine.OPAEvaluator implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server runs the readiness checks and mirrors the result into a gRPC health server.
type Server struct {
	pinger Pinger
	policy PolicyChecker
	grpc   *health.Server
}

// NewServer returns a Server. Nil checks are skipped. The gRPC status starts
// as NOT_SERVING until the first Refresh.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	s := &Server{pinger: pinger, policy: policy, grpc: health.NewServer()}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Ready returns nil when the store is reachable and the policy engine evaluates.
func (s *Server) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	var errs []error
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Refresh runs Ready and updates the gRPC serving status. It returns the Ready error.
func (s *Server) Refresh(ctx context.Context) error {
	err := s.Ready(ctx)
	if err != nil {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	}
	return err
}

// Run refreshes immediately and then every interval until ctx is cancelled.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	_ = s.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.grpc.Shutdown()
}

// Register registers the gRPC health service on reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(reg, s.grpc)
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry that serves s.
func NewGRPCServer(s *Server) *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.Register(srv)
	return srv
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.grpc.SetServingStatus("", st)
	s.grpc.SetServingStatus(ServiceName, st)
}
