package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	testCases := []struct {
		name   string
		pinger Pinger
		policy PolicyChecker
		ready  bool
		checks map[string]string
	}{
		{"no dependencies", nil, nil, true, map[string]string{}},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, true, map[string]string{"database": "ok", "policy": "ok"}},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, false,
			map[string]string{"database": "connection refused", "policy": "ok"}},
		{"policy broken", nil, &mockPolicyChecker{healthErr: errors.New("compile failed")}, false,
			map[string]string{"policy": "compile failed"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rep := NewChecker(tc.pinger, tc.policy).Check(context.Background())
			if rep.Ready != tc.ready {
				t.Errorf("ready = %v, want %v", rep.Ready, tc.ready)
			}
			if len(rep.Checks) != len(tc.checks) {
				t.Fatalf("checks = %v, want %v", rep.Checks, tc.checks)
			}
			for k, v := range tc.checks {
				if rep.Checks[k] != v {
					t.Errorf("check %s = %q, want %q", k, rep.Checks[k], v)
				}
			}
		})
	}
}

func TestReadiness_HTTP(t *testing.T) {
	ok := NewChecker(&mockPinger{}, nil)
	rec := httptest.NewRecorder()
	ok.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	down := NewChecker(&mockPinger{pingErr: errors.New("timeout")}, nil)
	rec = httptest.NewRecorder()
	down.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Ready || rep.Checks["database"] != "timeout" {
		t.Errorf("report = %+v", rep)
	}

	rec = httptest.NewRecorder()
	down.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200 even when not ready", rec.Code)
	}
}

func TestWatch_PublishesStatus(t *testing.T) {
	hs := NewGRPCServer()
	pinger := &mockPinger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewChecker(pinger, nil).Watch(ctx, hs, 10*time.Millisecond) }()

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
			if err == nil && resp.GetStatus() == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("status never became %v", want)
	}
	waitFor(healthpb.HealthCheckResponse_SERVING)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", resp.GetStatus())
	}

	if _, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"}); status.Code(err) != codes.NotFound {
		t.Errorf("unknown service err = %v, want NotFound", err)
	}
}
