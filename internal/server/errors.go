package server

import (
	"errors"
	"log"
	"net/http"

	policyservice "auditflow/backend/internal/policy/service"
	"auditflow/backend/internal/projection"
	"auditflow/backend/internal/server/httpx"
	validationdomain "auditflow/backend/internal/validation/domain"
	"auditflow/backend/internal/workflow"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case workflow.KindInvalidInput, workflow.KindReferenceConflict:
		return http.StatusBadRequest
	case workflow.KindForbidden:
		return http.StatusForbidden
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidTransition, workflow.KindConcurrentModification, workflow.KindConflict, workflow.KindValidationJobStale:
		return http.StatusConflict
	case workflow.KindLedgerIntegrity:
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}

// writeError writes err with its kind and, for refused mutations, the entity's current state.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := workflow.KindOf(err)
	switch {
	case errors.Is(err, validationdomain.ErrInvalidResult), errors.Is(err, projection.ErrInvalidCategory),
		errors.Is(err, policyservice.ErrInvalidPolicy):
		kind = workflow.KindInvalidInput
	case errors.Is(err, policyservice.ErrForbidden):
		kind = workflow.KindForbidden
	case errors.Is(err, policyservice.ErrNotFound):
		kind = workflow.KindNotFound
	}
	body := httpx.ErrorBody{Error: err.Error(), Kind: kind}
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		body.CurrentState = te.Current
		body.Allowed = te.Allowed
	}
	status := statusFor(kind)
	switch status {
	case http.StatusInternalServerError:
		log.Printf("server: %s %s: %v", r.Method, r.URL.Path, err)
		body.Error = "internal error"
	case http.StatusLocked:
		log.Printf("server: %s %s refused, ledger halted: %v", r.Method, r.URL.Path, err)
	}
	httpx.WriteError(w, status, body)
}

func badRequest(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: err.Error(), Kind: workflow.KindInvalidInput})
}
