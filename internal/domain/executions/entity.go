package executions

import (
	"errors"
	"time"
)

// Status enum for one question's execution.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusNoConnector Status = "no_connector"
)

// Terminal reports whether s is an end state. Terminal results only change
// through an explicit re-run, which restarts at running.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusNoConnector
}

// ErrInvalidTransition guards the per-question state machine.
var ErrInvalidTransition = errors.New("invalid execution status transition")

// ValidTransition enforces pending -> running -> {completed|failed} and
// pending -> no_connector. Re-runs are modeled as terminal -> running.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusNoConnector
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed, StatusNoConnector:
		return to == StatusRunning
	}
	return false
}

// RiskLevel values produced by result normalization.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// ComplianceStatus values produced by result normalization.
type ComplianceStatus string

const (
	Compliant          ComplianceStatus = "Compliant"
	NonCompliant       ComplianceStatus = "Non-Compliant"
	PartiallyCompliant ComplianceStatus = "Partially Compliant"
	MostlyCompliant    ComplianceStatus = "Mostly Compliant"
)

// Finding is one piece of evidence returned by an agent execution.
type Finding struct {
	Finding  string `json:"finding"`
	Severity string `json:"severity,omitempty"`
}

// ResultPayload is the canonical result shape every downstream consumer
// reads. Raw agent payloads are converted into it exactly once, by
// Normalize.
type ResultPayload struct {
	Summary          string           `json:"summary"`
	Records          int              `json:"records"`
	Source           string           `json:"source"`
	Timestamp        time.Time        `json:"timestamp"`
	Findings         []Finding        `json:"findings"`
	RiskLevel        RiskLevel        `json:"riskLevel"`
	ComplianceStatus ComplianceStatus `json:"complianceStatus"`
	Confidence       float64          `json:"confidence,omitempty"`
}

// Result is the current execution state for one (application, question)
// pair. Re-running overwrites it; there is no history.
type Result struct {
	ApplicationID int64          `json:"applicationId"`
	QuestionID    string         `json:"questionId"`
	Status        Status         `json:"status"`
	Result        *ResultPayload `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartTime     *time.Time     `json:"startTime,omitempty"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
}
