package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceRegistry wires the standard gRPC health-checking and reflection
// services into a server and tracks graceful shutdown. The external
// processor exposes exactly one RPC (Process), so this drops the
// multi-service versioning/compatibility bookkeeping a multi-service
// registry would need in favor of what an ext_proc deployment actually
// probes at runtime: grpc_health_v1 for a readiness check and reflection
// for grpcurl-style debugging.
type ServiceRegistry struct {
	grpcServer       *grpc.Server
	healthServer     *health.Server
	enableReflection bool
}

// RegistryOption is a functional option for configuring ServiceRegistry.
type RegistryOption func(*ServiceRegistry)

// WithReflection enables gRPC server reflection.
func WithReflection(enable bool) RegistryOption {
	return func(r *ServiceRegistry) {
		r.enableReflection = enable
	}
}

// NewServiceRegistry creates a new service registry and immediately
// registers the health and (optionally) reflection services against
// grpcServer.
func NewServiceRegistry(grpcServer *grpc.Server, opts ...RegistryOption) *ServiceRegistry {
	registry := &ServiceRegistry{
		grpcServer:       grpcServer,
		healthServer:     health.NewServer(),
		enableReflection: true,
	}

	for _, opt := range opts {
		opt(registry)
	}

	grpc_health_v1.RegisterHealthServer(grpcServer, registry.healthServer)

	if registry.enableReflection {
		reflection.Register(grpcServer)
	}

	return registry
}

// SetServiceHealth updates the health status reported for serviceName.
// Pass the empty string to set the overall server status, per the
// grpc_health_v1 convention.
func (r *ServiceRegistry) SetServiceHealth(serviceName string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	r.healthServer.SetServingStatus(serviceName, status)
}

// Shutdown marks the service not-serving and gracefully stops the gRPC
// server, forcing a hard stop if ctx expires first.
func (r *ServiceRegistry) Shutdown(ctx context.Context) error {
	r.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		r.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		r.grpcServer.Stop()
		return ctx.Err()
	case <-stopped:
		return nil
	}
}
