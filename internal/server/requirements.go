package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	requirementdomain "auditflow/backend/internal/requirement/domain"
	"auditflow/backend/internal/server/httpx"
	"auditflow/backend/internal/workflow"
)

type requirementRequest struct {
	AuditID             string     `json:"audit_id"`
	DocumentType        string     `json:"document_type"`
	Description         string     `json:"description"`
	Mandatory           bool       `json:"mandatory"`
	Deadline            *time.Time `json:"deadline"`
	ComplianceFramework string     `json:"compliance_framework"`
	PriorityScore       float64    `json:"priority_score"`
	RiskLevel           string     `json:"risk_level"`
	AutoEscalate        bool       `json:"auto_escalate"`
}

type requirementChangeRequest struct {
	DocumentType        *string    `json:"document_type"`
	Description         *string    `json:"description"`
	Mandatory           *bool      `json:"mandatory"`
	Deadline            *time.Time `json:"deadline"`
	ClearDeadline       bool       `json:"clear_deadline"`
	ComplianceFramework *string    `json:"compliance_framework"`
	PriorityScore       *float64   `json:"priority_score"`
	RiskLevel           *string    `json:"risk_level"`
	AutoEscalate        *bool      `json:"auto_escalate"`
}

type requirementResponse struct {
	Requirement *requirementView  `json:"requirement"`
	Receipt     *workflow.Receipt `json:"receipt"`
}

func (a *API) createRequirement(w http.ResponseWriter, r *http.Request) {
	var req requirementRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	created, receipt, err := a.engine.CreateRequirement(r.Context(), &requirementdomain.Requirement{
		AuditID:             req.AuditID,
		DocumentType:        req.DocumentType,
		Description:         req.Description,
		Mandatory:           req.Mandatory,
		Deadline:            req.Deadline,
		ComplianceFramework: req.ComplianceFramework,
		PriorityScore:       req.PriorityScore,
		RiskLevel:           requirementdomain.RiskLevel(req.RiskLevel),
		AutoEscalate:        req.AutoEscalate,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, requirementResponse{Requirement: requirementOut(created), Receipt: receipt})
}

func (a *API) getRequirement(w http.ResponseWriter, r *http.Request) {
	req, err := a.engine.GetRequirement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, requirementOut(req))
}

func (a *API) updateRequirement(w http.ResponseWriter, r *http.Request) {
	var req requirementChangeRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	change := workflow.RequirementChange{
		DocumentType:        req.DocumentType,
		Description:         req.Description,
		Mandatory:           req.Mandatory,
		Deadline:            req.Deadline,
		ClearDeadline:       req.ClearDeadline,
		ComplianceFramework: req.ComplianceFramework,
		PriorityScore:       req.PriorityScore,
		AutoEscalate:        req.AutoEscalate,
	}
	if req.RiskLevel != nil {
		level := requirementdomain.RiskLevel(*req.RiskLevel)
		change.RiskLevel = &level
	}
	updated, receipt, err := a.engine.UpdateRequirement(r.Context(), chi.URLParam(r, "id"), change, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, requirementResponse{Requirement: requirementOut(updated), Receipt: receipt})
}

func (a *API) deleteRequirement(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.engine.DeleteRequirement(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (a *API) listRequirements(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.engine.ListRequirements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]*requirementView, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, requirementOut(req))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requirements": out})
}
