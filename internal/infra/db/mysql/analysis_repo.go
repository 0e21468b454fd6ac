package mysql

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

const upsertAnalysisSQL = `
INSERT INTO question_analyses
  (application_id, question_id, original_question, category, subcategory,
   ai_prompt, tool_suggestion, connector_reason, connector_to_use, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  original_question=VALUES(original_question),
  category=VALUES(category),
  subcategory=VALUES(subcategory),
  ai_prompt=VALUES(ai_prompt),
  tool_suggestion=VALUES(tool_suggestion),
  connector_reason=VALUES(connector_reason),
  connector_to_use=VALUES(connector_to_use),
  updated_at=VALUES(updated_at);
`

func (r *AnalysisRepository) Upsert(ctx context.Context, a *domain.Analysis) error {
	_, err := r.db.ExecContext(ctx, upsertAnalysisSQL, analysisArgs(a)...)
	return err
}

// UpsertBatch writes the whole batch in one transaction. Either every row
// lands or none do.
func (r *AnalysisRepository) UpsertBatch(ctx context.Context, as []*domain.Analysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, a := range as {
		if _, err := tx.ExecContext(ctx, upsertAnalysisSQL, analysisArgs(a)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func analysisArgs(a *domain.Analysis) []any {
	return []any{
		a.ApplicationID, a.QuestionID, a.OriginalQuestion, a.Category, a.Subcategory,
		a.AIPrompt,
		a.ToolSuggestion.Encode(),
		a.ConnectorReason,
		a.ConnectorToUse.Encode(),
		a.UpdatedAt,
	}
}

const selectAnalysisCols = `
SELECT application_id, question_id, original_question, category, subcategory,
       ai_prompt, tool_suggestion, connector_reason, connector_to_use, updated_at
FROM question_analyses
`

func (r *AnalysisRepository) Get(ctx context.Context, appID int64, questionID string) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx,
		selectAnalysisCols+`WHERE application_id=? AND question_id=? LIMIT 1;`,
		appID, questionID,
	)
	a, err := scanAnalysis(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AnalysisRepository) ListByApplication(ctx context.Context, appID int64) ([]*domain.Analysis, error) {
	rows, err := r.db.QueryContext(ctx,
		selectAnalysisCols+`WHERE application_id=? ORDER BY question_id;`, appID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AnalysisRepository) DeleteByApplication(ctx context.Context, appID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM question_analyses WHERE application_id=?;`, appID)
	return err
}

func scanAnalysis(scan func(dest ...any) error) (*domain.Analysis, error) {
	var (
		a          domain.Analysis
		suggestion string
		toUse      string
	)
	if err := scan(
		&a.ApplicationID, &a.QuestionID, &a.OriginalQuestion, &a.Category, &a.Subcategory,
		&a.AIPrompt, &suggestion, &a.ConnectorReason, &toUse, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if a.ToolSuggestion, err = tools.DecodeSelection(suggestion); err != nil {
		return nil, err
	}
	if a.ConnectorToUse, err = tools.DecodeSelection(toUse); err != nil {
		return nil, err
	}
	return &a, nil
}
