package domain

import (
	"errors"
	"time"
)

// Status is the workflow position of a finding.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusClosed},
	StatusInProgress: {StatusOpen, StatusResolved, StatusClosed},
	StatusResolved:   {StatusClosed, StatusOpen},
	StatusClosed:     {},
}

// Statuses lists every finding status.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedNext returns the statuses reachable from s in one transition.
func (s Status) AllowedNext() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func (s Status) CanTransition(to Status) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is the archive state.
func (s Status) Terminal() bool { return s == StatusClosed }

// Active reports whether work on the finding is still outstanding.
func (s Status) Active() bool { return s == StatusOpen || s == StatusInProgress }

// Severity grades a finding.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityMajor         Severity = "major"
	SeverityMinor         Severity = "minor"
	SeverityInformational Severity = "informational"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityMajor, SeverityMinor, SeverityInformational}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor, SeverityInformational:
		return true
	}
	return false
}

// SLA is the time allowed to resolve a finding of this severity.
func (s Severity) SLA() time.Duration {
	switch s {
	case SeverityCritical:
		return 3 * 24 * time.Hour
	case SeverityMajor:
		return 7 * 24 * time.Hour
	case SeverityMinor:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Priority is the handling priority of a finding.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// DefaultPriority maps a severity to the priority used when none is given.
func (s Severity) DefaultPriority() Priority {
	switch s {
	case SeverityCritical:
		return PriorityUrgent
	case SeverityMajor:
		return PriorityHigh
	case SeverityMinor:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Source says who raised the finding.
type Source string

const (
	SourceManual          Source = "manual"
	SourceAIDetected      Source = "ai_detected"
	SourceSystemGenerated Source = "system_generated"
)

func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceAIDetected, SourceSystemGenerated:
		return true
	}
	return false
}

// ErrReference is returned when a finding's submission/meeting reference is not acceptable for its source.
var ErrReference = errors.New("finding must reference exactly one of submission or meeting")

// Finding is an issue raised against a submission or a meeting.
type Finding struct {
	ID          string
	AuditID     string
	Title       string
	Description string
	Severity    Severity
	Status      Status
	Priority    Priority
	Source      Source
	// SubmissionID and MeetingID are weak references; at most one is set.
	SubmissionID    string
	MeetingID       string
	AssigneeID      string
	DueDate         *time.Time
	EscalationLevel int
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CheckReference enforces the reference rule: never both, and exactly one for manual and
// AI findings (AI findings always point at the submission they were detected on).
func (f *Finding) CheckReference() error {
	hasSub, hasMeeting := f.SubmissionID != "", f.MeetingID != ""
	if hasSub && hasMeeting {
		return ErrReference
	}
	switch f.Source {
	case SourceManual:
		if !hasSub && !hasMeeting {
			return ErrReference
		}
	case SourceAIDetected:
		if !hasSub {
			return ErrReference
		}
	}
	return nil
}

// Validate validates the finding for persistence, filling priority from severity when empty.
func (f *Finding) Validate() error {
	if f.AuditID == "" {
		return errors.New("audit_id is required")
	}
	if f.Title == "" {
		return errors.New("title is required")
	}
	if !f.Severity.Valid() {
		return errors.New("severity must be critical, major, minor or informational")
	}
	if f.Status == "" {
		f.Status = StatusOpen
	}
	if !f.Status.Valid() {
		return errors.New("unknown status")
	}
	if f.Priority == "" {
		f.Priority = f.Severity.DefaultPriority()
	}
	if !f.Priority.Valid() {
		return errors.New("priority must be urgent, high, medium or low")
	}
	if !f.Source.Valid() {
		return errors.New("source must be manual, ai_detected or system_generated")
	}
	return f.CheckReference()
}

// Overdue reports whether the finding is still active past its due date.
func (f *Finding) Overdue(now time.Time) bool {
	return f.Status.Active() && f.DueDate != nil && now.After(*f.DueDate)
}

// Clone returns a copy of f that shares no pointers with it.
func (f *Finding) Clone() *Finding {
	if f == nil {
		return nil
	}
	c := *f
	if f.DueDate != nil {
		d := *f.DueDate
		c.DueDate = &d
	}
	return &c
}
