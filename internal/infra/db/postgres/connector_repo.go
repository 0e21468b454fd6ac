package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	domain "github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

type ConnectorRepository struct {
	db *sql.DB
}

func NewConnectorRepository(db *sql.DB) *ConnectorRepository {
	return &ConnectorRepository{db: db}
}

func (r *ConnectorRepository) Save(ctx context.Context, c *domain.Connector) error {
	cfg, err := json.Marshal(c.Configuration)
	if err != nil {
		return err
	}
	if c.ID == 0 {
		const q = `
INSERT INTO tool_connectors
  (application_id, ci_id, connector_type, name, configuration, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;
`
		return r.db.QueryRowContext(ctx, q,
			c.ApplicationID, c.CIID, string(c.Type), c.Name, string(cfg), string(c.Status), c.CreatedAt,
		).Scan(&c.ID)
	}
	const q = `
UPDATE tool_connectors
SET application_id=$1, ci_id=$2, connector_type=$3, name=$4, configuration=$5, status=$6
WHERE id=$7;
`
	_, err = r.db.ExecContext(ctx, q,
		c.ApplicationID, c.CIID, string(c.Type), c.Name, string(cfg), string(c.Status), c.ID,
	)
	return err
}

const selectConnectorCols = `
SELECT id, application_id, ci_id, connector_type, name, configuration, status, created_at
FROM tool_connectors
`

func (r *ConnectorRepository) Get(ctx context.Context, id int64) (*domain.Connector, error) {
	row := r.db.QueryRowContext(ctx, selectConnectorCols+`WHERE id=$1;`, id)
	c, err := scanConnector(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

func (r *ConnectorRepository) ListByCI(ctx context.Context, ciID string) ([]*domain.Connector, error) {
	rows, err := r.db.QueryContext(ctx, selectConnectorCols+`WHERE ci_id=$1 ORDER BY id;`, ciID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConnectors(rows)
}

func (r *ConnectorRepository) ListByApplication(ctx context.Context, appID int64) ([]*domain.Connector, error) {
	rows, err := r.db.QueryContext(ctx, selectConnectorCols+`WHERE application_id=$1 ORDER BY id;`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConnectors(rows)
}

func (r *ConnectorRepository) FindActive(ctx context.Context, ciID string, t tools.Type) (*domain.Connector, error) {
	row := r.db.QueryRowContext(ctx,
		selectConnectorCols+`WHERE ci_id=$1 AND connector_type=$2 AND status=$3 LIMIT 1;`,
		ciID, string(t), string(domain.StatusActive),
	)
	c, err := scanConnector(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *ConnectorRepository) UpdateStatus(ctx context.Context, id int64, s domain.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tool_connectors SET status=$1 WHERE id=$2;`, string(s), id,
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

func (r *ConnectorRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tool_connectors WHERE id=$1;`, id)
	return err
}

func collectConnectors(rows *sql.Rows) ([]*domain.Connector, error) {
	var out []*domain.Connector
	for rows.Next() {
		c, err := scanConnector(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConnector(scan func(dest ...any) error) (*domain.Connector, error) {
	var (
		c       domain.Connector
		typ     string
		cfg     string
		status  string
		created sql.NullTime
	)
	if err := scan(&c.ID, &c.ApplicationID, &c.CIID, &typ, &c.Name, &cfg, &status, &created); err != nil {
		return nil, err
	}
	t, err := tools.Parse(typ)
	if err != nil {
		return nil, err
	}
	c.Type = t
	c.Status = domain.Status(status)
	if created.Valid {
		c.CreatedAt = created.Time
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &c.Configuration); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
