package rpc

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/observability"
)

// ServiceName is the health-checked service name of a running simulation.
const ServiceName = "wsn.Simulator"

// Health reports whether the simulation still has living sensors.
type Health struct {
	srv *health.Server
}

// NewHealth returns a health service reporting SERVING for both the
// overall server and ServiceName.
func NewHealth() *Health {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Health{srv: srv}
}

// SetExhausted flips ServiceName to NOT_SERVING once every sensor is dead.
// The overall server stays SERVING so status can still be read.
func (h *Health) SetExhausted(exhausted bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if exhausted {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus(ServiceName, st)
}

// Shutdown marks every service NOT_SERVING ahead of a graceful stop.
func (h *Health) Shutdown() { h.srv.Shutdown() }

// NewServer builds a gRPC server with the otelgrpc stats handler, run-id
// logging, span naming and, when collector is non-nil, request metrics.
// The health service is registered on it.
func NewServer(log logging.Logger, runID string, collector *observability.NetworkCollector, hs *Health) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RunIDUnaryServerInterceptor(log, runID),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	if hs != nil {
		healthpb.RegisterHealthServer(server, hs.srv)
	}
	return server
}
