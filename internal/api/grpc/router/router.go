// Package router assembles the gRPC server: health and reflection services
// behind logging and panic recovery interceptors.
package router

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/dtroode/puricare-client/internal/api/grpc/middleware"
	"github.com/dtroode/puricare-client/internal/logger"
)

// SessionService is the health service name reporting session readiness.
const SessionService = "puricare.session"

// SessionReadiness exposes the session store's ready signal.
type SessionReadiness interface {
	Readiness() <-chan struct{}
}

// Router builds the gRPC server.
type Router struct {
	sessions SessionReadiness
	health   *health.Server
	logger   *logger.Logger
}

// New creates a Router.
func New(sessions SessionReadiness, logger *logger.Logger) *Router {
	return &Router{
		sessions: sessions,
		health:   health.NewServer(),
		logger:   logger,
	}
}

// Health checks are polled constantly and would drown the log.
func loggingMatch(_ context.Context, c interceptors.CallMeta) bool {
	return !strings.HasPrefix(c.FullMethod(), "/grpc.health.v1.Health/")
}

// Register creates the server and starts tracking session readiness until
// ctx is done, after which every service reports NOT_SERVING.
func (r *Router) Register(ctx context.Context) *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	recoverOpt := recovery.WithRecoveryHandler(func(p any) error {
		r.logger.Error("gRPC handler panicked", "panic", p)
		return status.Error(codes.Internal, "internal error")
	})

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			selector.UnaryServerInterceptor(logging.HandleGRPC, selector.MatchFunc(loggingMatch)),
			recovery.UnaryServerInterceptor(recoverOpt),
		),
		grpc.ChainStreamInterceptor(
			selector.StreamServerInterceptor(logging.HandleGRPCStream, selector.MatchFunc(loggingMatch)),
			recovery.StreamServerInterceptor(recoverOpt),
		),
	)

	healthpb.RegisterHealthServer(s, r.health)
	reflection.Register(s)

	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.health.SetServingStatus(SessionService, healthpb.HealthCheckResponse_NOT_SERVING)
	go r.trackSession(ctx)

	return s
}

func (r *Router) trackSession(ctx context.Context) {
	select {
	case <-r.sessions.Readiness():
		r.health.SetServingStatus(SessionService, healthpb.HealthCheckResponse_SERVING)
		r.logger.Info("gRPC health: session store ready")
	case <-ctx.Done():
	}

	<-ctx.Done()
	r.health.Shutdown()
}
