// Package handler reports liveness and readiness of the engine over HTTP and the standard
// grpc.health.v1 service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check that the transition policy compiles and evaluates (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds one readiness probe of a dependency.
const checkTimeout = 2 * time.Second

// Report is the result of a readiness check.
type Report struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Checker runs readiness checks. A nil Pinger or PolicyChecker is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker for the given dependencies.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check probes every dependency; Ready is false if any failed.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Ready: true, Checks: map[string]string{}}
	run := func(name string, fn func(context.Context) error) {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := fn(checkCtx); err != nil {
			r.Ready = false
			r.Checks[name] = err.Error()
			return
		}
		r.Checks[name] = "ok"
	}
	if c.pinger != nil {
		run("database", c.pinger.PingContext)
	}
	if c.policy != nil {
		run("policy", c.policy.HealthCheck)
	}
	return r
}

// Liveness answers 200 while the process serves requests.
func (c *Checker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness answers 200 when every dependency is healthy and 503 otherwise.
func (c *Checker) Readiness(w http.ResponseWriter, r *http.Request) {
	rep := c.Check(r.Context())
	status := http.StatusOK
	if !rep.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
