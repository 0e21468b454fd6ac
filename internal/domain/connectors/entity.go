package connectors

import (
	"time"

	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// Status enum
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusFailed  Status = "failed"
)

// Connector is a configured binding to an external system, scoped to a
// configuration item. Only active connectors are eligible for execution.
type Connector struct {
	ID            int64          `json:"id"`
	ApplicationID int64          `json:"applicationId,omitempty"`
	CIID          string         `json:"ciId"`
	Type          tools.Type     `json:"connectorType"`
	Name          string         `json:"name"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt,omitempty"`
}
