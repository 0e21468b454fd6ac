package mysql

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

// Create inserts an application row and fills in the generated id.
func (r *ApplicationRepository) Create(ctx context.Context, a *domain.Application) error {
	const q = `
INSERT INTO applications
  (audit_name, ci_id, audit_date_from, audit_date_to, enable_followups, created_at)
VALUES (?,?,?,?,?,?);
`
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q,
		a.AuditName, a.CIID, a.AuditDateFrom, a.AuditDateTo, a.EnableFollowups, created,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.CreatedAt = created
	return nil
}

// Get by ID
func (r *ApplicationRepository) Get(ctx context.Context, id int64) (*domain.Application, error) {
	const q = `
SELECT id, audit_name, ci_id, audit_date_from, audit_date_to, enable_followups, created_at
FROM applications
WHERE id=? LIMIT 1;
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

// List returns all applications, newest first.
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

// Update replaces the mutable columns.
func (r *ApplicationRepository) Update(ctx context.Context, a *domain.Application) error {
	const q = `
UPDATE applications
SET audit_name=?, ci_id=?, audit_date_from=?, audit_date_to=?, enable_followups=?
WHERE id=?;
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

// Delete removes the application row. Child rows are deleted by the service
// before this is called.
func (r *ApplicationRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id=?;`, id)
	return err
}
