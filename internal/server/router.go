// Package server exposes the engine over HTTP+JSON (chi) and the gRPC health service.
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	healthhandler "auditflow/backend/internal/health/handler"
	policyservice "auditflow/backend/internal/policy/service"
	"auditflow/backend/internal/projection"
	"auditflow/backend/internal/validation"
	"auditflow/backend/internal/workflow"
)

// Deps holds the services behind the HTTP API.
type Deps struct {
	Engine       *workflow.Engine
	Orchestrator *validation.Orchestrator
	Projection   *projection.Facade
	// Policies serves the /admin policy routes. If nil, they are not mounted.
	Policies *policyservice.PolicyService
	// Health serves /healthz and /readyz. If nil, only /healthz is served.
	Health *healthhandler.Checker
}

// API implements the HTTP handlers.
type API struct {
	engine       *workflow.Engine
	orchestrator *validation.Orchestrator
	projection   *projection.Facade
	policies     *policyservice.PolicyService
}

// NewRouter returns the HTTP handler for the engine.
//
// Route → handler mapping:
//   - /requirements, /audits/{id}/requirements        → requirements.go
//   - /submissions/...                                → submissions.go
//   - /findings/..., /audits/{id}/findings            → findings.go
//   - /audits/{id}/timeline|verification-chain|...    → audits.go
//   - /admin/...                                      → admin.go, policies.go
func NewRouter(deps Deps) http.Handler {
	api := &API{engine: deps.Engine, orchestrator: deps.Orchestrator, projection: deps.Projection, policies: deps.Policies}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Observe(map[string]bool{"/healthz": true, "/readyz": true}))

	health := deps.Health
	if health == nil {
		health = healthhandler.NewChecker(nil, nil)
	}
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(RequireActor)

		r.Post("/requirements", api.createRequirement)
		r.Get("/requirements/{id}", api.getRequirement)
		r.Put("/requirements/{id}", api.updateRequirement)
		r.Delete("/requirements/{id}", api.deleteRequirement)
		r.Get("/requirements/{id}/submissions", api.listSubmissions)

		r.Post("/submissions", api.createSubmission)
		r.Route("/submissions/{id}", func(r chi.Router) {
			r.Get("/", api.getSubmission)
			r.Get("/ai-validation", api.pollValidation)
			r.Post("/ai-validation/result", api.ingestValidation)
			r.Post("/ai-validation/regenerate", api.regenerateValidation)
			r.Post("/review", api.startReview)
			r.Post("/verify", api.verifySubmission)
			r.Put("/notes", api.updateNotes)
			r.Get("/findings", api.listSubmissionFindings)
		})

		r.Post("/findings", api.createFinding)
		r.Get("/findings/{id}", api.getFinding)
		r.Put("/findings/{id}/status", api.transitionFinding)

		r.Route("/audits/{id}", func(r chi.Router) {
			r.Get("/requirements", api.listRequirements)
			r.Get("/findings", api.listFindings)
			r.Get("/timeline", api.timeline)
			r.Get("/verification-chain", api.chain)
			r.Get("/verification-chain/verify", api.verifyChain)
			r.Get("/dashboard", api.dashboard)
			r.Get("/notifications", api.notifications)
		})
		r.Get("/entities/{id}/history", api.entityHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/escalations/{kind}/{id}/override", api.overrideEscalation)
			r.Post("/audits/{id}/ledger/resume", api.resumeLedger)
			r.Post("/audits/{id}/replay", api.replay)
			if api.policies != nil {
				r.Get("/audits/{id}/policies", api.listPolicies)
				r.Put("/audits/{id}/policy", api.putPolicy)
				r.Delete("/audits/{id}/policy", api.disablePolicy)
				r.Get("/policies/{id}", api.getPolicy)
			}
		})
	})
	return r
}

var errLimit = errors.New("limit must be a non-negative integer")

// queryLimit parses ?limit=; absent means 0 (the callee's default).
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errLimit
	}
	return n, nil
}
