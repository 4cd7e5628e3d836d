package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	findingdomain "auditflow/backend/internal/finding/domain"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	requirementdomain "auditflow/backend/internal/requirement/domain"
	submissiondomain "auditflow/backend/internal/submission/domain"
)

type requirementFields struct {
	DocumentType        string                     `json:"document_type"`
	Description         string                     `json:"description"`
	Mandatory           bool                       `json:"mandatory"`
	ComplianceFramework string                     `json:"compliance_framework"`
	PriorityScore       string                     `json:"priority_score"`
	RiskLevel           string                     `json:"risk_level"`
	AutoEscalate        bool                       `json:"auto_escalate"`
	Deadline            string                     `json:"deadline"`
	Changed             map[string]json.RawMessage `json:"changed"`
	ToLevel             *int                       `json:"to_level"`
}

type submissionFields struct {
	RequirementID   string  `json:"requirement_id"`
	DocumentRef     string  `json:"document_ref"`
	RevisionRound   int     `json:"revision_round"`
	Stage           string  `json:"stage"`
	To              string  `json:"to"`
	JobSeq          *int64  `json:"job_seq"`
	AIScore         string  `json:"ai_score"`
	AIConfidence    string  `json:"ai_confidence"`
	ComplianceScore string  `json:"compliance_score"`
	QualityScore    string  `json:"quality_score"`
	Reason          string  `json:"reason"`
	Notes           *string `json:"notes"`
}

type findingFields struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Severity     string `json:"severity"`
	Priority     string `json:"priority"`
	Source       string `json:"source"`
	Status       string `json:"status"`
	To           string `json:"to"`
	AssigneeID   string `json:"assignee_id"`
	SubmissionID string `json:"submission_id"`
	MeetingID    string `json:"meeting_id"`
	DueDate      string `json:"due_date"`
	ToLevel      *int   `json:"to_level"`
}

// auditHistory keeps the blocks of auditID in chain order.
func auditHistory(auditID string, history []*ledgerdomain.Block) []*ledgerdomain.Block {
	var chain []*ledgerdomain.Block
	for _, b := range history {
		if b.AuditID == auditID {
			chain = append(chain, b)
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Number < chain[j].Number })
	return chain
}

func levelChange(action string) bool {
	return strings.HasSuffix(action, ".escalated") || action == "escalation.override"
}

// rebuildRequirement folds the chain of one requirement into its row. It returns nil when the
// chain holds no creation block.
func rebuildRequirement(chain []*ledgerdomain.Block) (*requirementdomain.Requirement, error) {
	var r *requirementdomain.Requirement
	for _, b := range chain {
		var p requirementFields
		if err := json.Unmarshal(b.Payload, &p); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.Number, err)
		}
		if b.Action == "requirement.created" {
			r = &requirementdomain.Requirement{
				ID:                  b.EntityID,
				AuditID:             b.AuditID,
				DocumentType:        p.DocumentType,
				Description:         p.Description,
				Mandatory:           p.Mandatory,
				ComplianceFramework: p.ComplianceFramework,
				RiskLevel:           requirementdomain.RiskLevel(p.RiskLevel),
				AutoEscalate:        p.AutoEscalate,
				CreatedBy:           b.Actor,
				CreatedAt:           b.CreatedAt,
			}
			var err error
			if r.PriorityScore, err = parseDecimal(p.PriorityScore); err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Number, err)
			}
			if r.Deadline, err = parseTime(p.Deadline); err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Number, err)
			}
		}
		if r == nil {
			continue
		}
		switch {
		case b.Action == "requirement.updated":
			if err := applyChanged(r, p.Changed); err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Number, err)
			}
		case b.Action == "requirement.deleted":
			at := b.CreatedAt
			r.DeletedAt = &at
		case b.Action == "requirement.deadline_approaching":
			warned, err := parseTime(p.Deadline)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Number, err)
			}
			r.WarnedDeadline = warned
		case levelChange(b.Action) && p.ToLevel != nil:
			r.EscalationLevel = *p.ToLevel
		}
		r.UpdatedAt = b.CreatedAt
	}
	return r, nil
}

// applyChanged replays the changed columns of a requirement.updated block.
func applyChanged(r *requirementdomain.Requirement, changed map[string]json.RawMessage) error {
	for field, raw := range changed {
		var err error
		switch field {
		case "document_type":
			err = json.Unmarshal(raw, &r.DocumentType)
		case "description":
			err = json.Unmarshal(raw, &r.Description)
		case "mandatory":
			err = json.Unmarshal(raw, &r.Mandatory)
		case "compliance_framework":
			err = json.Unmarshal(raw, &r.ComplianceFramework)
		case "auto_escalate":
			err = json.Unmarshal(raw, &r.AutoEscalate)
		case "risk_level":
			var level string
			if err = json.Unmarshal(raw, &level); err == nil {
				r.RiskLevel = requirementdomain.RiskLevel(level)
			}
		case "priority_score":
			var score string
			if err = json.Unmarshal(raw, &score); err == nil {
				r.PriorityScore, err = parseDecimal(score)
			}
		case "deadline":
			var deadline *string
			if err = json.Unmarshal(raw, &deadline); err == nil {
				r.Deadline, r.WarnedDeadline = nil, nil
				if deadline != nil {
					r.Deadline, err = parseTime(*deadline)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("changed %s: %w", field, err)
		}
	}
	return nil
}

// rebuildSubmission folds the chain of one submission into its row. It returns nil when the
// chain holds no creation block.
func rebuildSubmission(chain []*ledgerdomain.Block) (*submissiondomain.Submission, error) {
	var s *submissiondomain.Submission
	for _, b := range chain {
		var p submissionFields
		if err := json.Unmarshal(b.Payload, &p); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.Number, err)
		}
		if b.Action == "submission.created" {
			s = &submissiondomain.Submission{
				ID:            b.EntityID,
				RequirementID: p.RequirementID,
				AuditID:       b.AuditID,
				DocumentRef:   p.DocumentRef,
				SubmitterID:   b.Actor,
				RevisionRound: p.RevisionRound,
				Stage:         submissiondomain.Stage(p.Stage),
				CreatedAt:     b.CreatedAt,
				UpdatedAt:     b.CreatedAt,
			}
			continue
		}
		if s == nil {
			continue
		}
		if p.To != "" {
			s.Stage = submissiondomain.Stage(p.To)
		}
		// Only dispatches move the job sequence; ai_validated blocks echo the ingested one.
		if p.JobSeq != nil && (b.Action == "submission.ai_validating" || b.Action == "submission.ai_redispatched") {
			s.AIJobSeq = *p.JobSeq
		}
		for _, score := range []struct {
			raw string
			dst **float64
		}{
			{p.AIScore, &s.AIScore},
			{p.AIConfidence, &s.AIConfidence},
			{p.ComplianceScore, &s.ComplianceScore},
			{p.QualityScore, &s.QualityScore},
		} {
			if score.raw == "" {
				continue
			}
			v, err := parseDecimal(score.raw)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Number, err)
			}
			*score.dst = &v
		}
		if s.Stage.NegativeOutcome() && p.To != "" {
			s.Reason = p.Reason
		}
		if p.Notes != nil {
			s.VerificationNotes = *p.Notes
		}
		s.UpdatedAt = b.CreatedAt
	}
	return s, nil
}

// rebuildFinding folds the chain of one finding into its row. It returns nil when the chain
// holds no creation block.
func rebuildFinding(chain []*ledgerdomain.Block) (*findingdomain.Finding, error) {
	var f *findingdomain.Finding
	for _, b := range chain {
		var p findingFields
		if err := json.Unmarshal(b.Payload, &p); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.Number, err)
		}
		if b.Action == "finding.created" {
			due, err := parseTime(p.DueDate)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Number, err)
			}
			f = &findingdomain.Finding{
				ID:           b.EntityID,
				AuditID:      b.AuditID,
				Title:        p.Title,
				Description:  p.Description,
				Severity:     findingdomain.Severity(p.Severity),
				Status:       findingdomain.Status(p.Status),
				Priority:     findingdomain.Priority(p.Priority),
				Source:       findingdomain.Source(p.Source),
				SubmissionID: p.SubmissionID,
				MeetingID:    p.MeetingID,
				AssigneeID:   p.AssigneeID,
				DueDate:      due,
				CreatedBy:    b.Actor,
				CreatedAt:    b.CreatedAt,
				UpdatedAt:    b.CreatedAt,
			}
			continue
		}
		if f == nil {
			continue
		}
		switch {
		case levelChange(b.Action):
			if p.ToLevel != nil {
				f.EscalationLevel = *p.ToLevel
			}
		case p.To != "":
			f.Status = findingdomain.Status(p.To)
		}
		f.UpdatedAt = b.CreatedAt
	}
	return f, nil
}

func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
