package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/server/httpx"
	"auditflow/backend/internal/workflow"
)

type overrideRequest struct {
	Level  int    `json:"level"`
	Reason string `json:"reason"`
}

func (a *API) overrideEscalation(w http.ResponseWriter, r *http.Request) {
	kind := ledgerdomain.EntityKind(chi.URLParam(r, "kind"))
	if kind != ledgerdomain.EntityRequirement && kind != ledgerdomain.EntityFinding {
		badRequest(w, fmt.Errorf("kind must be requirement or finding"))
		return
	}
	var req overrideRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	receipt, err := a.engine.OverrideEscalation(r.Context(), kind, chi.URLParam(r, "id"), req.Level, req.Reason, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

// resumeLedger lifts an integrity halt. A chain that still diverges answers 423 with the report.
func (a *API) resumeLedger(w http.ResponseWriter, r *http.Request) {
	v, err := a.engine.ResumeLedger(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		if v != nil {
			httpx.WriteJSON(w, http.StatusLocked, map[string]any{"error": err.Error(), "verification": v})
			return
		}
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (a *API) replay(w http.ResponseWriter, r *http.Request) {
	report, err := a.engine.Replay(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if report.Repaired == nil {
		report.Repaired = []workflow.Drift{}
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
