package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC query service, also reported by the health service.
const ServiceName = "workq.v1.QueryService"

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the query service, the health service and reflection. The
// health server starts in SERVING state; set NOT_SERVING before shutdown.
func (s *Server) NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			AuthInterceptor(string(s.secret)),
		),
	)
	srv.RegisterService(&queryServiceDesc, queryService{s: s})

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)

	return srv, hs
}
