package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	policydomain "auditflow/backend/internal/policy/domain"
	"auditflow/backend/internal/server/httpx"
)

type policyView struct {
	ID        string    `json:"id"`
	AuditID   string    `json:"audit_id"`
	Rules     string    `json:"rules"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func policyOut(p *policydomain.Policy) *policyView {
	return &policyView{ID: p.ID, AuditID: p.AuditID, Rules: p.Rules, Enabled: p.Enabled, CreatedAt: p.CreatedAt}
}

type policyRequest struct {
	Rules string `json:"rules"`
}

func (a *API) putPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	p, err := a.policies.Put(r.Context(), chi.URLParam(r, "id"), req.Rules, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policyOut(p))
}

func (a *API) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := a.policies.Get(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policyOut(p))
}

func (a *API) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := a.policies.List(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]*policyView, 0, len(policies))
	for _, p := range policies {
		out = append(out, policyOut(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"policies": out})
}

func (a *API) disablePolicy(w http.ResponseWriter, r *http.Request) {
	if err := a.policies.Disable(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
