package workflow

import (
	"errors"
	"fmt"
	"strings"

	"auditflow/backend/internal/ledger"
)

// Sentinel errors for the workflow engine; handlers map them to HTTP status codes.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrReferenceConflict      = errors.New("reference conflict")
	ErrActiveSubmission       = errors.New("requirement already has a submission in progress")
	ErrRequirementSatisfied   = errors.New("requirement already has an approved submission")
	ErrForbidden              = errors.New("actor is not allowed to perform this action")
	ErrIdempotencyKeyReuse    = errors.New("request id was already used for a different transition")
	ErrValidationJobStale     = errors.New("validation job was superseded")
	ErrLedgerIntegrity        = ledger.ErrIntegrity
)

// Error kinds reported to callers.
const (
	KindInvalidTransition      = "InvalidTransition"
	KindConcurrentModification = "ConcurrentModification"
	KindLedgerIntegrity        = "LedgerIntegrityError"
	KindValidationJobStale     = "ValidationJobStale"
	KindReferenceConflict      = "ReferenceConflict"
	KindNotFound               = "NotFound"
	KindInvalidInput           = "InvalidInput"
	KindForbidden              = "Forbidden"
	KindConflict               = "Conflict"
	KindInternal               = "Internal"
)

// TransitionError is a failed mutation together with the entity's authoritative state, so the
// caller can reconcile without fetching again.
type TransitionError struct {
	Kind     string
	Entity   string
	EntityID string
	// Current is the persisted state when the mutation was refused; empty if unknown.
	Current string
	// Allowed lists the states reachable from Current.
	Allowed []string
	Err     error
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Entity != "" {
		fmt.Fprintf(&b, ": %s %s", e.Entity, e.EntityID)
	}
	if e.Current != "" {
		fmt.Fprintf(&b, " is %s", e.Current)
		if len(e.Allowed) > 0 {
			fmt.Fprintf(&b, " (allowed: %s)", strings.Join(e.Allowed, ", "))
		}
	}
	return b.String()
}

func (e *TransitionError) Unwrap() error { return e.Err }

// KindOf classifies err into one of the reported error kinds.
func KindOf(err error) string {
	var te *TransitionError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrentModification
	case errors.Is(err, ErrLedgerIntegrity):
		return KindLedgerIntegrity
	case errors.Is(err, ErrValidationJobStale):
		return KindValidationJobStale
	case errors.Is(err, ErrReferenceConflict):
		return KindReferenceConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ledger.ErrInvalidEntry):
		return KindInvalidInput
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrActiveSubmission), errors.Is(err, ErrRequirementSatisfied), errors.Is(err, ErrIdempotencyKeyReuse):
		return KindConflict
	}
	return KindInternal
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func stateError(kind, entity, id, current string, allowed []string, err error) *TransitionError {
	return &TransitionError{Kind: kind, Entity: entity, EntityID: id, Current: current, Allowed: allowed, Err: err}
}

func toStrings[S ~string](states []S) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
