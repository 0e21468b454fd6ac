package audits

import "time"

// ApplicationID identifier type
type ApplicationID = int64

// Application is one audit engagement. Its CI id scopes which connectors
// apply; deleting an application cascades its questions, analyses, and
// execution results.
type Application struct {
	ID              int64     `json:"id"`
	AuditName       string    `json:"auditName"`
	CIID            string    `json:"ciId"`
	AuditDateFrom   string    `json:"auditDateFrom"`
	AuditDateTo     string    `json:"auditDateTo"`
	EnableFollowups bool      `json:"enableFollowupQuestions"`
	CreatedAt       time.Time `json:"createdAt"`
}
