package domain

import (
	"errors"
	"time"
)

// Policy is an audit-specific Rego module that replaces the default transition policy.
type Policy struct {
	ID        string
	AuditID   string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}

// Validate validates the policy for persistence. Returns an error describing the first validation failure.
func (p *Policy) Validate() error {
	if p.AuditID == "" {
		return errors.New("audit_id is required")
	}
	if p.Rules == "" {
		return errors.New("rules are required")
	}
	return nil
}
