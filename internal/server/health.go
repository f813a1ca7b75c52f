package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Checker probes one sink dependency.
type Checker func(ctx context.Context) error

// HealthServer publishes sink readiness over the gRPC health protocol. Each
// checker is exposed as its own service name; the empty service name is
// SERVING only when every checker passes.
type HealthServer struct {
	srv    *health.Server
	checks map[string]Checker
}

func NewHealthServer(checks map[string]Checker) *HealthServer {
	return &HealthServer{
		srv:    health.NewServer(),
		checks: checks,
	}
}

func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// CheckOnce runs every checker and updates the published statuses.
func (h *HealthServer) CheckOnce(ctx context.Context) bool {
	healthy := true
	for name, check := range h.checks {
		status := healthpb.HealthCheckResponse_SERVING
		if err := check(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
			healthy = false
		}
		h.srv.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", overall)
	return healthy
}

// Run re-checks dependencies every interval until ctx is done.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckOnce(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthServer) Shutdown() {
	h.srv.Shutdown()
}
