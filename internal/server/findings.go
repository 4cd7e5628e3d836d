package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	findingdomain "auditflow/backend/internal/finding/domain"
	"auditflow/backend/internal/server/httpx"
	"auditflow/backend/internal/workflow"
)

type findingRequest struct {
	AuditID      string     `json:"audit_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Severity     string     `json:"severity"`
	Priority     string     `json:"priority"`
	Source       string     `json:"source"`
	SubmissionID string     `json:"submission_id"`
	MeetingID    string     `json:"meeting_id"`
	AssigneeID   string     `json:"assignee_id"`
	DueDate      *time.Time `json:"due_date"`
}

type findingStatusRequest struct {
	Status         string `json:"status"`
	Reason         string `json:"reason"`
	ExpectedStatus string `json:"expected_status"`
	RequestID      string `json:"request_id"`
}

func findingsOut(findings []*findingdomain.Finding) []*findingView {
	out := make([]*findingView, 0, len(findings))
	for _, f := range findings {
		out = append(out, findingOut(f))
	}
	return out
}

func (a *API) createFinding(w http.ResponseWriter, r *http.Request) {
	var req findingRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	f, receipt, err := a.engine.CreateFinding(r.Context(), workflow.NewFinding{
		AuditID:      req.AuditID,
		Title:        req.Title,
		Description:  req.Description,
		Severity:     findingdomain.Severity(req.Severity),
		Priority:     findingdomain.Priority(req.Priority),
		Source:       findingdomain.Source(req.Source),
		SubmissionID: req.SubmissionID,
		MeetingID:    req.MeetingID,
		AssigneeID:   req.AssigneeID,
		DueDate:      req.DueDate,
		Actor:        actorFrom(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"finding": findingOut(f), "receipt": receipt})
}

func (a *API) getFinding(w http.ResponseWriter, r *http.Request) {
	f, err := a.engine.GetFinding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, findingOut(f))
}

func (a *API) transitionFinding(w http.ResponseWriter, r *http.Request) {
	var req findingStatusRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	receipt, err := a.engine.TransitionFinding(r.Context(), workflow.FindingTransition{
		FindingID: chi.URLParam(r, "id"),
		From:      findingdomain.Status(req.ExpectedStatus),
		To:        findingdomain.Status(req.Status),
		Actor:     actorFrom(r),
		Reason:    req.Reason,
		RequestID: requestKey(r, req.RequestID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (a *API) listFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := a.engine.ListFindings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"findings": findingsOut(findings)})
}
