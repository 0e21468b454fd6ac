package connectors

import (
	"context"
	"errors"

	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// ErrNotFound indicates no connector row matched the lookup.
var ErrNotFound = errors.New("connector not found")

// Registry is the read contract consumed by the analysis coordinator and the
// execution runner. FindActive matches only status == active and returns
// (nil, nil) when no active connector of the given type exists for the CI.
type Registry interface {
	ListByCI(ctx context.Context, ciID string) ([]*Connector, error)
	FindActive(ctx context.Context, ciID string, t tools.Type) (*Connector, error)
}

// Repository extends the registry with the write operations owned by
// settings.
type Repository interface {
	Registry
	Save(ctx context.Context, c *Connector) error
	Get(ctx context.Context, id int64) (*Connector, error)
	ListByApplication(ctx context.Context, applicationID int64) ([]*Connector, error)
	UpdateStatus(ctx context.Context, id int64, s Status) error
	Delete(ctx context.Context, id int64) error
}
