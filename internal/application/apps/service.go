package apps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/veritas-audit/auditflow/internal/application"
	"github.com/veritas-audit/auditflow/internal/domain/audits"
	"github.com/veritas-audit/auditflow/internal/domain/executions"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
)

// Service owns the application (audit) lifecycle and the question store.
type Service struct {
	Repo      audits.Repository
	Questions questions.Repository
	Analyses  questions.AnalysisRepository
	Results   executions.Repository
	Clock     application.Clock
}

// Create validates and stores a new application.
func (s *Service) Create(ctx context.Context, a *audits.Application) (*audits.Application, error) {
	if strings.TrimSpace(a.AuditName) == "" {
		return nil, errors.New("auditName is required")
	}
	if strings.TrimSpace(a.CIID) == "" {
		return nil, errors.New("ciId is required")
	}
	a.CreatedAt = s.Clock.Now()
	if err := s.Repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, id int64) (*audits.Application, error) {
	return s.Repo.Get(ctx, id)
}

// List returns all applications, newest first.
func (s *Service) List(ctx context.Context) ([]*audits.Application, error) {
	return s.Repo.List(ctx)
}

// Update replaces the mutable fields of an application.
func (s *Service) Update(ctx context.Context, a *audits.Application) (*audits.Application, error) {
	if err := s.Repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, a.ID)
}

// Delete removes an application and cascades its questions, analyses, and
// execution results.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.Results.DeleteByApplication(ctx, id); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	if err := s.Analyses.DeleteByApplication(ctx, id); err != nil {
		return fmt.Errorf("delete analyses: %w", err)
	}
	if err := s.Questions.DeleteByApplication(ctx, id); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	return s.Repo.Delete(ctx, id)
}

// AddQuestions stores a parsed question batch for the application. Parsing
// itself happens upstream; this endpoint receives the structured rows.
func (s *Service) AddQuestions(ctx context.Context, applicationID int64, qs []questions.Question) (int, error) {
	if len(qs) == 0 {
		return 0, errors.New("no questions provided")
	}
	for i := range qs {
		if strings.TrimSpace(qs[i].ID) == "" {
			return 0, fmt.Errorf("question %d has no id", i)
		}
		if strings.TrimSpace(qs[i].Text) == "" {
			return 0, fmt.Errorf("question %s has no text", qs[i].ID)
		}
	}
	if err := s.Questions.SaveBatch(ctx, applicationID, qs); err != nil {
		return 0, err
	}
	return len(qs), nil
}

// ListQuestions returns the merged question set for the application.
func (s *Service) ListQuestions(ctx context.Context, applicationID int64) ([]questions.Question, error) {
	return s.Questions.ListByApplication(ctx, applicationID)
}
