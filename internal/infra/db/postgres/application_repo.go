package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/veritas-audit/auditflow/internal/domain/audits"
)

type ApplicationRepository struct {
	db *sql.DB
}

func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) Create(ctx context.Context, a *domain.Application) error {
	const q = `
INSERT INTO applications
  (audit_name, ci_id, audit_date_from, audit_date_to, enable_followups, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id;
`
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if err := r.db.QueryRowContext(ctx, q,
		a.AuditName, a.CIID, a.AuditDateFrom, a.AuditDateTo, a.EnableFollowups, created,
	).Scan(&a.ID); err != nil {
		return err
	}
	a.CreatedAt = created
	return nil
}

func (r *ApplicationRepository) Get(ctx context.Context, id int64) (*domain.Application, error) {
	const q = `
SELECT id, audit_name, ci_id, audit_date_from, audit_date_to, enable_followups, created_at
FROM applications
WHERE id=$1;
`
	var a domain.Application
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.AuditName, &a.CIID, &a.AuditDateFrom, &a.AuditDateTo, &a.EnableFollowups, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ApplicationRepository) List(ctx context.Context) ([]*domain.Application, error) {
	const q = `
SELECT id, audit_name, ci_id, audit_date_from, audit_date_to, enable_followups, created_at
FROM applications
ORDER BY created_at DESC, id DESC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(
			&a.ID, &a.AuditName, &a.CIID, &a.AuditDateFrom, &a.AuditDateTo, &a.EnableFollowups, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *ApplicationRepository) Update(ctx context.Context, a *domain.Application) error {
	const q = `
UPDATE applications
SET audit_name=$1, ci_id=$2, audit_date_from=$3, audit_date_to=$4, enable_followups=$5
WHERE id=$6;
`
	res, err := r.db.ExecContext(ctx, q,
		a.AuditName, a.CIID, a.AuditDateFrom, a.AuditDateTo, a.EnableFollowups, a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return err
}

func (r *ApplicationRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id=$1;`, id)
	return err
}
