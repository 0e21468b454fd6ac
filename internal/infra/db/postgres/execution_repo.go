package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	domain "github.com/veritas-audit/auditflow/internal/domain/executions"
)

type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Upsert(ctx context.Context, res *domain.Result) error {
	payload := "{}"
	if res.Result != nil {
		b, err := json.Marshal(res.Result)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	const q = `
INSERT INTO question_answers
  (application_id, question_id, status, result_json, error_message, start_time, end_time)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (application_id, question_id) DO UPDATE SET
  status=EXCLUDED.status,
  result_json=EXCLUDED.result_json,
  error_message=EXCLUDED.error_message,
  start_time=EXCLUDED.start_time,
  end_time=EXCLUDED.end_time;
`
	_, err := r.db.ExecContext(ctx, q,
		res.ApplicationID, res.QuestionID, string(res.Status), payload, res.Error,
		nullTime(res.StartTime), nullTime(res.EndTime),
	)
	return err
}

const selectAnswerCols = `
SELECT application_id, question_id, status, result_json, error_message, start_time, end_time
FROM question_answers
`

func (r *ExecutionRepository) Get(ctx context.Context, appID int64, questionID string) (*domain.Result, error) {
	row := r.db.QueryRowContext(ctx,
		selectAnswerCols+`WHERE application_id=$1 AND question_id=$2;`,
		appID, questionID,
	)
	res, err := scanResult(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *ExecutionRepository) ListByApplication(ctx context.Context, appID int64) ([]*domain.Result, error) {
	rows, err := r.db.QueryContext(ctx,
		selectAnswerCols+`WHERE application_id=$1 ORDER BY question_id;`, appID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Result
	for rows.Next() {
		res, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ExecutionRepository) DeleteByApplication(ctx context.Context, appID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM question_answers WHERE application_id=$1;`, appID)
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanResult(scan func(dest ...any) error) (*domain.Result, error) {
	var (
		res     domain.Result
		status  string
		payload string
		start   sql.NullTime
		end     sql.NullTime
	)
	if err := scan(&res.ApplicationID, &res.QuestionID, &status, &payload, &res.Error, &start, &end); err != nil {
		return nil, err
	}
	res.Status = domain.Status(status)
	if payload != "" && payload != "{}" {
		var p domain.ResultPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, err
		}
		res.Result = &p
	}
	if start.Valid {
		t := start.Time
		res.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		res.EndTime = &t
	}
	return &res, nil
}
