package audits

import (
	"context"
	"errors"
)

// ErrNotFound indicates no application row matched the lookup.
var ErrNotFound = errors.New("application not found")

// Repository port (interface for persistence)
type Repository interface {
	Create(ctx context.Context, a *Application) error
	Get(ctx context.Context, id int64) (*Application, error)
	List(ctx context.Context) ([]*Application, error)
	Update(ctx context.Context, a *Application) error
	Delete(ctx context.Context, id int64) error
}
