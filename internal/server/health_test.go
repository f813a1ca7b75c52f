package server

import (
	"context"
	"errors"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func status(t *testing.T, h *HealthServer, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.Status
}

func TestCheckOnce(t *testing.T) {
	redisErr := errors.New("redis unreachable")
	failing := true

	h := NewHealthServer(map[string]Checker{
		"heads": func(context.Context) error {
			if failing {
				return redisErr
			}
			return nil
		},
		"kafka": func(context.Context) error { return nil },
	})

	if h.CheckOnce(context.Background()) {
		t.Fatal("expected unhealthy")
	}
	if got := status(t, h, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected overall NOT_SERVING got %v", got)
	}
	if got := status(t, h, "kafka"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected kafka SERVING got %v", got)
	}

	failing = false
	if !h.CheckOnce(context.Background()) {
		t.Fatal("expected healthy")
	}
	if got := status(t, h, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall SERVING got %v", got)
	}
}
