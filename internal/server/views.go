package server

import (
	"time"

	findingdomain "auditflow/backend/internal/finding/domain"
	requirementdomain "auditflow/backend/internal/requirement/domain"
	submissiondomain "auditflow/backend/internal/submission/domain"
	"auditflow/backend/internal/validation"
	validationdomain "auditflow/backend/internal/validation/domain"
)

type requirementView struct {
	ID                  string     `json:"id"`
	AuditID             string     `json:"audit_id"`
	DocumentType        string     `json:"document_type"`
	Description         string     `json:"description,omitempty"`
	Mandatory           bool       `json:"mandatory"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	ComplianceFramework string     `json:"compliance_framework,omitempty"`
	PriorityScore       float64    `json:"priority_score"`
	RiskLevel           string     `json:"risk_level,omitempty"`
	AutoEscalate        bool       `json:"auto_escalate"`
	EscalationLevel     int        `json:"escalation_level"`
	CreatedBy           string     `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func requirementOut(r *requirementdomain.Requirement) *requirementView {
	if r == nil {
		return nil
	}
	return &requirementView{
		ID:                  r.ID,
		AuditID:             r.AuditID,
		DocumentType:        r.DocumentType,
		Description:         r.Description,
		Mandatory:           r.Mandatory,
		Deadline:            r.Deadline,
		ComplianceFramework: r.ComplianceFramework,
		PriorityScore:       r.PriorityScore,
		RiskLevel:           string(r.RiskLevel),
		AutoEscalate:        r.AutoEscalate,
		EscalationLevel:     r.EscalationLevel,
		CreatedBy:           r.CreatedBy,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type submissionView struct {
	ID                string    `json:"id"`
	RequirementID     string    `json:"requirement_id"`
	AuditID           string    `json:"audit_id"`
	DocumentRef       string    `json:"document_ref"`
	SubmitterID       string    `json:"submitter_id"`
	RevisionRound     int       `json:"revision_round"`
	Stage             string    `json:"stage"`
	AllowedNext       []string  `json:"allowed_next"`
	AIScore           *float64  `json:"ai_score,omitempty"`
	AIConfidence      *float64  `json:"ai_confidence,omitempty"`
	ComplianceScore   *float64  `json:"compliance_score,omitempty"`
	QualityScore      *float64  `json:"quality_score,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	VerificationNotes string    `json:"verification_notes,omitempty"`
	AIJobSeq          int64     `json:"ai_job_seq"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func submissionOut(s *submissiondomain.Submission) *submissionView {
	if s == nil {
		return nil
	}
	next := []string{}
	for _, st := range s.Stage.AllowedNext() {
		next = append(next, string(st))
	}
	return &submissionView{
		ID:                s.ID,
		RequirementID:     s.RequirementID,
		AuditID:           s.AuditID,
		DocumentRef:       s.DocumentRef,
		SubmitterID:       s.SubmitterID,
		RevisionRound:     s.RevisionRound,
		Stage:             string(s.Stage),
		AllowedNext:       next,
		AIScore:           s.AIScore,
		AIConfidence:      s.AIConfidence,
		ComplianceScore:   s.ComplianceScore,
		QualityScore:      s.QualityScore,
		Reason:            s.Reason,
		VerificationNotes: s.VerificationNotes,
		AIJobSeq:          s.AIJobSeq,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

type findingView struct {
	ID              string     `json:"id"`
	AuditID         string     `json:"audit_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Severity        string     `json:"severity"`
	Status          string     `json:"status"`
	AllowedNext     []string   `json:"allowed_next"`
	Priority        string     `json:"priority,omitempty"`
	Source          string     `json:"source"`
	SubmissionID    string     `json:"submission_id,omitempty"`
	MeetingID       string     `json:"meeting_id,omitempty"`
	AssigneeID      string     `json:"assignee_id,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	EscalationLevel int        `json:"escalation_level"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func findingOut(f *findingdomain.Finding) *findingView {
	if f == nil {
		return nil
	}
	next := []string{}
	for _, st := range f.Status.AllowedNext() {
		next = append(next, string(st))
	}
	return &findingView{
		ID:              f.ID,
		AuditID:         f.AuditID,
		Title:           f.Title,
		Description:     f.Description,
		Severity:        string(f.Severity),
		Status:          string(f.Status),
		AllowedNext:     next,
		Priority:        string(f.Priority),
		Source:          string(f.Source),
		SubmissionID:    f.SubmissionID,
		MeetingID:       f.MeetingID,
		AssigneeID:      f.AssigneeID,
		DueDate:         f.DueDate,
		EscalationLevel: f.EscalationLevel,
		CreatedBy:       f.CreatedBy,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

type jobView struct {
	ID              string     `json:"id"`
	Seq             int64      `json:"job_seq"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	Score           *float64   `json:"score,omitempty"`
	Confidence      *float64   `json:"confidence,omitempty"`
	ComplianceScore *float64   `json:"compliance_score,omitempty"`
	Issues          []string   `json:"issues"`
	Recommendations []string   `json:"recommendations"`
	ProcessingMS    int64      `json:"processing_time_ms,omitempty"`
	Error           string     `json:"error,omitempty"`
	RequestedBy     string     `json:"requested_by"`
	RequestedAt     time.Time  `json:"requested_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func jobOut(j *validationdomain.Job) *jobView {
	if j == nil {
		return nil
	}
	v := &jobView{
		ID:              j.ID,
		Seq:             j.Seq,
		Status:          string(j.Status),
		Attempts:        j.Attempts,
		Score:           j.Score,
		Confidence:      j.Confidence,
		ComplianceScore: j.ComplianceScore,
		Issues:          j.Issues,
		Recommendations: j.Recommendations,
		ProcessingMS:    j.ProcessingMS,
		Error:           j.Error,
		RequestedBy:     j.RequestedBy,
		RequestedAt:     j.RequestedAt,
		CompletedAt:     j.CompletedAt,
	}
	if v.Issues == nil {
		v.Issues = []string{}
	}
	if v.Recommendations == nil {
		v.Recommendations = []string{}
	}
	return v
}

type validationView struct {
	SubmissionID string   `json:"submission_id"`
	Stage        string   `json:"stage"`
	Job          *jobView `json:"job"`
}

func validationOut(s *validation.Status) *validationView {
	return &validationView{SubmissionID: s.SubmissionID, Stage: string(s.Stage), Job: jobOut(s.Job)}
}
