package domain

import (
	"testing"
	"time"
)

func TestRequirement_Validate(t *testing.T) {
	testCases := []struct {
		name string
		r    Requirement
		ok   bool
	}{
		{"valid", Requirement{AuditID: "a", DocumentType: "policy"}, true},
		{"missing audit", Requirement{DocumentType: "policy"}, false},
		{"missing type", Requirement{AuditID: "a"}, false},
		{"priority too high", Requirement{AuditID: "a", DocumentType: "p", PriorityScore: 10.1}, false},
		{"unknown risk", Requirement{AuditID: "a", DocumentType: "p", RiskLevel: "extreme"}, false},
		{"negative level", Requirement{AuditID: "a", DocumentType: "p", EscalationLevel: -1}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestRequirement_ValidateDefaultsRisk(t *testing.T) {
	r := Requirement{AuditID: "a", DocumentType: "p"}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.RiskLevel != RiskLow {
		t.Errorf("RiskLevel = %q, want low", r.RiskLevel)
	}
}

func TestRequirement_Overdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if (&Requirement{}).Overdue(now) {
		t.Error("requirement without deadline is never overdue")
	}
	if !(&Requirement{Deadline: &past}).Overdue(now) {
		t.Error("past deadline should be overdue")
	}
	if (&Requirement{Deadline: &future}).Overdue(now) {
		t.Error("future deadline should not be overdue")
	}
}

func TestRequirement_CloneIsDeep(t *testing.T) {
	d := time.Now()
	r := &Requirement{Deadline: &d}
	c := r.Clone()
	*c.Deadline = d.Add(time.Hour)
	if !r.Deadline.Equal(d) {
		t.Error("Clone shares the deadline pointer")
	}
}
