package domain

import (
	"errors"
	"time"
)

// RiskLevel grades the impact of a missing document.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Requirement is a document obligation on an audit.
type Requirement struct {
	ID                  string
	AuditID             string
	DocumentType        string
	Description         string
	Mandatory           bool
	Deadline            *time.Time
	ComplianceFramework string
	PriorityScore       float64
	RiskLevel           RiskLevel
	AutoEscalate        bool
	// EscalationLevel only grows, except through an administrative override.
	EscalationLevel int
	// WarnedDeadline is the deadline a deadline_approaching notice was last sent for.
	WarnedDeadline *time.Time
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Validate validates the requirement for persistence. Returns an error describing the first validation failure.
func (r *Requirement) Validate() error {
	if r.AuditID == "" {
		return errors.New("audit_id is required")
	}
	if r.DocumentType == "" {
		return errors.New("document_type is required")
	}
	if r.PriorityScore < 0 || r.PriorityScore > 10 {
		return errors.New("priority_score must be between 0 and 10")
	}
	if r.RiskLevel == "" {
		r.RiskLevel = RiskLow
	}
	if !r.RiskLevel.Valid() {
		return errors.New("risk_level must be low, medium, high or critical")
	}
	if r.EscalationLevel < 0 {
		return errors.New("escalation_level must not be negative")
	}
	return nil
}

// Deleted reports whether the requirement has been soft-deleted.
func (r *Requirement) Deleted() bool { return r.DeletedAt != nil }

// Overdue reports whether the deadline has passed at now.
func (r *Requirement) Overdue(now time.Time) bool {
	return r.Deadline != nil && now.After(*r.Deadline)
}

// Clone returns a copy of r that shares no pointers with it.
func (r *Requirement) Clone() *Requirement {
	if r == nil {
		return nil
	}
	c := *r
	c.Deadline = cloneTime(r.Deadline)
	c.WarnedDeadline = cloneTime(r.WarnedDeadline)
	c.DeletedAt = cloneTime(r.DeletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
