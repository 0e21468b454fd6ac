package settings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeConnectorRepo struct {
	rows   map[int64]*connectors.Connector
	nextID int64
}

func (f *fakeConnectorRepo) Save(_ context.Context, c *connectors.Connector) error {
	if f.rows == nil {
		f.rows = map[int64]*connectors.Connector{}
	}
	if c.ID == 0 {
		f.nextID++
		c.ID = f.nextID
	}
	cp := *c
	f.rows[c.ID] = &cp
	return nil
}

func (f *fakeConnectorRepo) Get(_ context.Context, id int64) (*connectors.Connector, error) {
	c, ok := f.rows[id]
	if !ok {
		return nil, connectors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConnectorRepo) ListByCI(_ context.Context, ciID string) ([]*connectors.Connector, error) {
	var out []*connectors.Connector
	for _, c := range f.rows {
		if c.CIID == ciID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnectorRepo) ListByApplication(_ context.Context, appID int64) ([]*connectors.Connector, error) {
	var out []*connectors.Connector
	for _, c := range f.rows {
		if c.ApplicationID == appID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnectorRepo) FindActive(_ context.Context, ciID string, t tools.Type) (*connectors.Connector, error) {
	for _, c := range f.rows {
		if c.CIID == ciID && c.Type == t && c.Status == connectors.StatusActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeConnectorRepo) UpdateStatus(_ context.Context, id int64, s connectors.Status) error {
	c, ok := f.rows[id]
	if !ok {
		return connectors.ErrNotFound
	}
	c.Status = s
	return nil
}

func (f *fakeConnectorRepo) Delete(_ context.Context, id int64) error {
	delete(f.rows, id)
	return nil
}

func newService() (*Service, *fakeConnectorRepo) {
	repo := &fakeConnectorRepo{}
	return &Service{
		Repo:  repo,
		Clock: fixedClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
	}, repo
}

func TestCreateDefaultsAndLegacyType(t *testing.T) {
	svc, _ := newService()
	c, err := svc.Create(context.Background(), &connectors.Connector{
		CIID: "CI-1",
		Type: "sql_server",
		Configuration: map[string]any{
			"host": "db1", "database": "audit",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, tools.SQLServer, c.Type)
	assert.Equal(t, connectors.StatusPending, c.Status)
	assert.Equal(t, fmt.Sprintf("%s (%s)", tools.SQLServer, "CI-1"), c.Name)
	assert.NotZero(t, c.ID)
}

func TestCreateRejectsUnknownTypeAndMissingCI(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), &connectors.Connector{CIID: "CI-1", Type: "excel"})
	assert.ErrorIs(t, err, tools.ErrUnknownType)

	_, err = svc.Create(context.Background(), &connectors.Connector{Type: "jira"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ciId")
}

func TestCreateEnforcesUniquenessPerCI(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), &connectors.Connector{CIID: "CI-1", Type: "jira"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), &connectors.Connector{CIID: "CI-1", Type: "Jira"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Same type on another CI is fine.
	_, err = svc.Create(context.Background(), &connectors.Connector{CIID: "CI-2", Type: "jira"})
	assert.NoError(t, err)
}

func TestUpdateConfigurationResetsStatus(t *testing.T) {
	svc, repo := newService()
	c, err := svc.Create(context.Background(), &connectors.Connector{
		CIID: "CI-1", Type: "jira",
		Configuration: map[string]any{"url": "https://jira.example.com"},
	})
	require.NoError(t, err)
	_, err = svc.Test(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, connectors.StatusActive, repo.rows[c.ID].Status)

	updated, err := svc.Update(context.Background(), c.ID, "", map[string]any{"url": "https://jira2.example.com"})
	require.NoError(t, err)
	assert.Equal(t, connectors.StatusPending, updated.Status)
}

func TestUpdateNameOnlyKeepsStatus(t *testing.T) {
	svc, _ := newService()
	c, err := svc.Create(context.Background(), &connectors.Connector{CIID: "CI-1", Type: "manual_review"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), c.ID, "Reviews", nil)
	require.NoError(t, err)
	assert.Equal(t, "Reviews", updated.Name)
	assert.Equal(t, connectors.StatusPending, updated.Status)
}

func TestTestTransitions(t *testing.T) {
	svc, repo := newService()

	ok, err := svc.Create(context.Background(), &connectors.Connector{
		CIID: "CI-1", Type: "oracle_db",
		Configuration: map[string]any{"host": "ora1", "database": "fin"},
	})
	require.NoError(t, err)
	c, err := svc.Test(context.Background(), ok.ID)
	require.NoError(t, err)
	assert.Equal(t, connectors.StatusActive, c.Status)

	bad, err := svc.Create(context.Background(), &connectors.Connector{
		CIID: "CI-1", Type: "nas_path",
		Configuration: map[string]any{"path": "  "},
	})
	require.NoError(t, err)
	c, err = svc.Test(context.Background(), bad.ID)
	require.Error(t, err)
	assert.Equal(t, connectors.StatusFailed, c.Status)
	assert.Equal(t, connectors.StatusFailed, repo.rows[bad.ID].Status)
}

func TestTestManualReviewNeedsNoConfig(t *testing.T) {
	svc, _ := newService()
	created, err := svc.Create(context.Background(), &connectors.Connector{CIID: "CI-1", Type: "manual_review"})
	require.NoError(t, err)

	c, err := svc.Test(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, connectors.StatusActive, c.Status)
}

func TestTestUnknownConnector(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Test(context.Background(), 404)
	assert.ErrorIs(t, err, connectors.ErrNotFound)
}
