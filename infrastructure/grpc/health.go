// Package grpc serves the standard gRPC health protocol for orchestrators.
package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ChatService is the service name reported next to the overall "" status.
const ChatService = "helpdesk.chat"

type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(ChatService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, server: server, health: healthServer}
}

// SetServing flips both the chat service and the overall status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(ChatService, status)
	h.health.SetServingStatus("", status)
}

// Serve blocks until Stop is called.
func (h *HealthServer) Serve(ln net.Listener) error {
	h.log.Info("gRPC health server listening", "addr", ln.Addr().String())
	if err := h.server.Serve(ln); err != nil {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
