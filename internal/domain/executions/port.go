package executions

import (
	"context"

	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// Repository port (interface for persistence). Upserts are keyed on
// (applicationId, questionId); saving the same result twice yields one row.
type Repository interface {
	Upsert(ctx context.Context, r *Result) error
	Get(ctx context.Context, applicationID int64, questionID string) (*Result, error)
	ListByApplication(ctx context.Context, applicationID int64) ([]*Result, error)
	DeleteByApplication(ctx context.Context, applicationID int64) error
}

// CollectionRequest is the input to one agent execution.
type CollectionRequest struct {
	QuestionID string
	Question   string
	Prompt     string
	ToolType   tools.Type
	Connector  *connectors.Connector
}

// Agent port (interface for the data-collection call). The return value is
// the raw payload; Normalize turns it into the canonical shape.
type Agent interface {
	Collect(ctx context.Context, req CollectionRequest) (string, error)
}

// ArtifactStore port for exported result reports.
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
