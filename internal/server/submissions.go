package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/server/httpx"
	submissiondomain "auditflow/backend/internal/submission/domain"
	validationdomain "auditflow/backend/internal/validation/domain"
	"auditflow/backend/internal/workflow"
)

// reviewOutcomes are the stages a reviewer may request through verify.
var reviewOutcomes = map[submissiondomain.Stage]bool{
	submissiondomain.StageUnderReview:   true,
	submissiondomain.StageApproved:      true,
	submissiondomain.StageRejected:      true,
	submissiondomain.StageNeedsRevision: true,
	submissiondomain.StageEscalated:     true,
}

type submissionRequest struct {
	RequirementID string `json:"requirement_id"`
	DocumentRef   string `json:"document_ref"`
}

type submissionResponse struct {
	Submission *submissionView   `json:"submission"`
	Receipt    *workflow.Receipt `json:"receipt"`
}

type verifyRequest struct {
	Status       string   `json:"status"`
	Notes        *string  `json:"notes"`
	QualityScore *float64 `json:"quality_score"`
	Reason       string   `json:"reason"`
	// ExpectedStage is required: the stage the reviewer saw. A mismatch is a concurrent modification.
	ExpectedStage string `json:"expected_stage"`
	RequestID     string `json:"request_id"`
}

type reviewRequest struct {
	RequestID string `json:"request_id"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (a *API) createSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s, receipt, err := a.engine.CreateSubmission(r.Context(), workflow.NewSubmission{
		RequirementID: req.RequirementID,
		DocumentRef:   req.DocumentRef,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Validation dispatch happens asynchronously once the creation block is announced.
	httpx.WriteJSON(w, http.StatusAccepted, submissionResponse{Submission: submissionOut(s), Receipt: receipt})
}

func (a *API) getSubmission(w http.ResponseWriter, r *http.Request) {
	s, err := a.engine.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, submissionOut(s))
}

func (a *API) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.engine.ListSubmissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]*submissionView, 0, len(subs))
	for _, s := range subs {
		out = append(out, submissionOut(s))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"submissions": out})
}

func (a *API) pollValidation(w http.ResponseWriter, r *http.Request) {
	status, err := a.orchestrator.Poll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validationOut(status))
}

// ingestValidation accepts a validator callback. Only AI and system actors may post results.
func (a *API) ingestValidation(w http.ResponseWriter, r *http.Request) {
	if caller := actorFrom(r); caller.Type == actor.TypeUser {
		httpx.WriteError(w, http.StatusForbidden, httpx.ErrorBody{Error: "validation results come from the validator", Kind: workflow.KindForbidden})
		return
	}
	var res validationdomain.Result
	if err := httpx.ReadJSON(r, &res); err != nil {
		badRequest(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if res.SubmissionID != "" && res.SubmissionID != id {
		badRequest(w, fmt.Errorf("submission_id %q does not match the path", res.SubmissionID))
		return
	}
	res.SubmissionID = id
	out, err := a.orchestrator.Ingest(r.Context(), res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *API) regenerateValidation(w http.ResponseWriter, r *http.Request) {
	job, receipt, err := a.orchestrator.Regenerate(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"job": jobOut(job), "receipt": receipt})
}

func (a *API) startReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	receipt, err := a.engine.TransitionSubmission(r.Context(), workflow.SubmissionTransition{
		SubmissionID: chi.URLParam(r, "id"),
		From:         submissiondomain.StageAIValidated,
		To:           submissiondomain.StageUnderReview,
		Actor:        actorFrom(r),
		RequestID:    requestKey(r, req.RequestID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (a *API) verifySubmission(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	to := submissiondomain.Stage(req.Status)
	if !reviewOutcomes[to] {
		badRequest(w, fmt.Errorf("status must be one of under_review, approved, rejected, needs_revision, escalated"))
		return
	}
	if req.ExpectedStage == "" {
		badRequest(w, fmt.Errorf("expected_stage is required"))
		return
	}
	receipt, err := a.engine.TransitionSubmission(r.Context(), workflow.SubmissionTransition{
		SubmissionID: chi.URLParam(r, "id"),
		From:         submissiondomain.Stage(req.ExpectedStage),
		To:           to,
		Actor:        actorFrom(r),
		Reason:       req.Reason,
		RequestID:    requestKey(r, req.RequestID),
		Notes:        req.Notes,
		QualityScore: req.QualityScore,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (a *API) updateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	receipt, err := a.engine.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (a *API) listSubmissionFindings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.engine.GetSubmission(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	findings, err := a.engine.ListSubmissionFindings(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"findings": findingsOut(findings)})
}
