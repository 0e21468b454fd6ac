package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/veritas-audit/auditflow/internal/application"
	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// ErrDuplicate indicates a connector of the same type already exists for the
// CI.
var ErrDuplicate = errors.New("connector already configured for this tool type")

// Service owns connector settings: create, update, delete, and connectivity
// tests. The analysis coordinator and the execution runner consume the
// registry read-side only.
type Service struct {
	Repo  connectors.Repository
	Clock application.Clock
}

// Create validates the tool type against the closed vocabulary, enforces
// (ciId, connectorType) uniqueness, and stores the connector as pending
// until tested.
func (s *Service) Create(ctx context.Context, c *connectors.Connector) (*connectors.Connector, error) {
	t, err := tools.Parse(string(c.Type))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", tools.ErrUnknownType, c.Type)
	}
	c.Type = t
	if strings.TrimSpace(c.CIID) == "" {
		return nil, errors.New("ciId is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = fmt.Sprintf("%s (%s)", t, c.CIID)
	}

	existing, err := s.Repo.ListByCI(ctx, c.CIID)
	if err != nil {
		return nil, err
	}
	for _, have := range existing {
		if have.Type == t {
			return nil, ErrDuplicate
		}
	}

	if c.Status == "" {
		c.Status = connectors.StatusPending
	}
	c.CreatedAt = s.Clock.Now()
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the mutable fields of an existing connector. Changing the
// configuration resets status to pending until the connector is re-tested.
func (s *Service) Update(ctx context.Context, id int64, name string, configuration map[string]any) (*connectors.Connector, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) != "" {
		c.Name = name
	}
	if configuration != nil {
		c.Configuration = configuration
		c.Status = connectors.StatusPending
	}
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a connector.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.Repo.Delete(ctx, id)
}

// Get returns one connector.
func (s *Service) Get(ctx context.Context, id int64) (*connectors.Connector, error) {
	return s.Repo.Get(ctx, id)
}

// ListByCI returns every connector scoped to the CI.
func (s *Service) ListByCI(ctx context.Context, ciID string) ([]*connectors.Connector, error) {
	return s.Repo.ListByCI(ctx, ciID)
}

// ListByApplication returns connectors created for an application.
func (s *Service) ListByApplication(ctx context.Context, applicationID int64) ([]*connectors.Connector, error) {
	return s.Repo.ListByApplication(ctx, applicationID)
}

// Test checks the connector configuration and transitions status
// pending -> active or failed. The check validates the keys each tool type
// needs; real connectivity is the agent's concern at execution time.
func (s *Service) Test(ctx context.Context, id int64) (*connectors.Connector, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status := connectors.StatusActive
	if reason := missingConfig(c); reason != "" {
		status = connectors.StatusFailed
		c.Status = status
		if err := s.Repo.UpdateStatus(ctx, id, status); err != nil {
			return nil, err
		}
		return c, fmt.Errorf("connector test failed: %s", reason)
	}
	c.Status = status
	if err := s.Repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return c, nil
}

// missingConfig names the first required configuration key absent for the
// connector's tool type, or "" when the configuration is sufficient.
func missingConfig(c *connectors.Connector) string {
	var required []string
	switch c.Type {
	case tools.SQLServer, tools.OracleDB:
		required = []string{"host", "database"}
	case tools.NASPath, tools.Gnosis:
		required = []string{"path"}
	case tools.Jira, tools.QTest, tools.ServiceNow, tools.Outlook:
		required = []string{"url"}
	case tools.ManualReview:
		return ""
	}
	for _, key := range required {
		v, ok := c.Configuration[key]
		if !ok {
			return fmt.Sprintf("missing configuration key %q", key)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return fmt.Sprintf("configuration key %q is empty", key)
		}
	}
	return ""
}
