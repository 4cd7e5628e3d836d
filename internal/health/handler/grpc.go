package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported for the engine in grpc.health.v1.
const Service = "auditflow.Engine"

// NewGRPCServer returns a grpc.health.v1 server whose status is kept current by Watch.
func NewGRPCServer() *health.Server {
	s := health.NewServer()
	s.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Watch runs the readiness check every interval and publishes the result on hs, for the engine
// service and the overall server (""). On return every service is NOT_SERVING.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		rep := c.Check(ctx)
		if !rep.Ready {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			log.Printf("health: %s (%v)", status, rep.Checks)
			last = status
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(Service, status)
	}
	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return nil
		case <-ticker.C:
			update()
		}
	}
}
