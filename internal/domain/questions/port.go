package questions

import "context"

// Repository port for the question store.
type Repository interface {
	SaveBatch(ctx context.Context, applicationID int64, qs []Question) error
	ListByApplication(ctx context.Context, applicationID int64) ([]Question, error)
	DeleteByApplication(ctx context.Context, applicationID int64) error
}

// AnalysisRepository port for persisting classification results. Upsert and
// UpsertBatch are keyed on (applicationId, questionId); re-analysis never
// duplicates rows. UpsertBatch is transactional: it persists the whole batch
// or nothing.
type AnalysisRepository interface {
	Upsert(ctx context.Context, a *Analysis) error
	UpsertBatch(ctx context.Context, as []*Analysis) error
	Get(ctx context.Context, applicationID int64, questionID string) (*Analysis, error)
	ListByApplication(ctx context.Context, applicationID int64) ([]*Analysis, error)
	DeleteByApplication(ctx context.Context, applicationID int64) error
}
