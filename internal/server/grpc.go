package server

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RegisterServices registers the gRPC services with s.
//
// Service → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler (fed by Checker.Watch)
func RegisterServices(s grpc.ServiceRegistrar, hs *health.Server) {
	if hs != nil {
		healthpb.RegisterHealthServer(s, hs)
	}
}

// NewGRPCServer returns a gRPC server instrumented with otelgrpc that serves hs.
func NewGRPCServer(hs *health.Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LogUnary(map[string]bool{healthpb.Health_Check_FullMethodName: true})),
	)
	RegisterServices(s, hs)
	return s
}

// LogUnary returns a unary server interceptor that logs failed RPCs with their duration.
// skipMethods is the set of full method names never logged.
func LogUnary(skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		if code == codes.Canceled || code == codes.NotFound {
			return resp, err
		}
		log.Printf("grpc: %s from %s failed with %s after %dms: %v",
			info.FullMethod, clientAddr(ctx), code, time.Since(start).Milliseconds(), err)
		return resp, err
	}
}

func clientAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
