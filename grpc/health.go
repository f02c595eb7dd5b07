package grpc

import (
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves grpc.health.v1 for the whole service and for serviceName.
type HealthServer struct {
	server      *grpc.Server
	health      *health.Server
	serviceName string
	logger      *zap.Logger
}

func NewHealthServer(serviceName string, logger *zap.Logger) *HealthServer {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	h := &HealthServer{server: server, health: hs, serviceName: serviceName, logger: logger}
	h.SetServing(false)
	return h
}

func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info("gRPC health server started", zap.String("addr", lis.Addr().String()))
	return h.server.Serve(lis)
}

// SetServing flips the reported status of the service and the server as a whole.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.serviceName, status)
}

// GracefulStop reports NOT_SERVING and drains in-flight calls.
func (h *HealthServer) GracefulStop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
