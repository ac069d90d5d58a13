package grpcserver

import (
	"permledger/interceptors"
	"permledger/services"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server bundles the gRPC server with its health service so callers can flip
// the serving status during shutdown.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer builds the gRPC server exposing the access gate, the health
// service and, when credentials are configured, the login service.
func NewServer(ledger *services.Ledger, credentials map[string]string, logger *zap.Logger) *Server {
	public := []string{
		"/grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health/Watch",
		LoginMethod,
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryInterceptor(logger),
			interceptors.ZapLoggingInterceptor(logger),
			interceptors.AuthInterceptor(public...),
		),
	)

	s.RegisterService(&AccessGate_ServiceDesc, NewAccessGateServer(ledger.Access, ledger.Roles))
	if len(credentials) > 0 {
		s.RegisterService(&Auth_ServiceDesc, NewAuthServer(credentials))
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(AccessGateServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)

	return &Server{Server: s, Health: healthServer}
}
