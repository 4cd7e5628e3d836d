package server

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl any) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, health.NewServer())
	if len(reg.services) != 1 || reg.services[0] != healthpb.Health_ServiceDesc.ServiceName {
		t.Errorf("services = %v, want the health service only", reg.services)
	}

	none := &mockServiceRegistrar{}
	RegisterServices(none, nil)
	if len(none.services) != 0 {
		t.Errorf("services = %v, want none without a health server", none.services)
	}
}

func TestNewGRPCServer_RegistersHealth(t *testing.T) {
	s := NewGRPCServer(health.NewServer())
	defer s.Stop()
	if _, ok := s.GetServiceInfo()[healthpb.Health_ServiceDesc.ServiceName]; !ok {
		t.Error("health service not registered")
	}
}

func TestLogUnary_PassesThrough(t *testing.T) {
	interceptor := LogUnary(map[string]bool{"/skip": true})
	info := &grpc.UnaryServerInfo{FullMethod: "/auditflow.Engine/Check"}

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("resp = %v, err = %v", resp, err)
	}

	want := status.Error(codes.Unavailable, "down")
	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want the handler error unchanged", err)
	}
}
