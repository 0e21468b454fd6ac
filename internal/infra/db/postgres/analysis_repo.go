package postgres

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
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (application_id, question_id) DO UPDATE SET
  original_question=EXCLUDED.original_question,
  category=EXCLUDED.category,
  subcategory=EXCLUDED.subcategory,
  ai_prompt=EXCLUDED.ai_prompt,
  tool_suggestion=EXCLUDED.tool_suggestion,
  connector_reason=EXCLUDED.connector_reason,
  connector_to_use=EXCLUDED.connector_to_use,
  updated_at=EXCLUDED.updated_at;
`

func (r *AnalysisRepository) Upsert(ctx context.Context, a *domain.Analysis) error {
	_, err := r.db.ExecContext(ctx, upsertAnalysisSQL, analysisArgs(a)...)
	return err
}

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
		selectAnalysisCols+`WHERE application_id=$1 AND question_id=$2;`,
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
		selectAnalysisCols+`WHERE application_id=$1 ORDER BY question_id;`, appID,
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
	_, err := r.db.ExecContext(ctx, `DELETE FROM question_analyses WHERE application_id=$1;`, appID)
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
