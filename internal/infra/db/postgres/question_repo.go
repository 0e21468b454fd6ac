package postgres

import (
	"context"
	"database/sql"

	domain "github.com/veritas-audit/auditflow/internal/domain/questions"
)

type QuestionRepository struct {
	db *sql.DB
}

func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func (r *QuestionRepository) SaveBatch(ctx context.Context, appID int64, qs []domain.Question) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO audit_questions
  (application_id, question_id, question_number, process, sub_process, question_text)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (application_id, question_id) DO UPDATE SET
  question_number=EXCLUDED.question_number,
  process=EXCLUDED.process,
  sub_process=EXCLUDED.sub_process,
  question_text=EXCLUDED.question_text;
`
	for i := range qs {
		it := &qs[i]
		if _, err := tx.ExecContext(ctx, q,
			appID, it.ID, it.QuestionNumber, it.Process, it.SubProcess, it.Text,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *QuestionRepository) ListByApplication(ctx context.Context, appID int64) ([]domain.Question, error) {
	const q = `
SELECT question_id, question_number, process, sub_process, question_text
FROM audit_questions
WHERE application_id=$1
ORDER BY question_number, question_id;
`
	rows, err := r.db.QueryContext(ctx, q, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var it domain.Question
		if err := rows.Scan(&it.ID, &it.QuestionNumber, &it.Process, &it.SubProcess, &it.Text); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *QuestionRepository) DeleteByApplication(ctx context.Context, appID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_questions WHERE application_id=$1;`, appID)
	return err
}
