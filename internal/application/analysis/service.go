package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/veritas-audit/auditflow/internal/application"
	"github.com/veritas-audit/auditflow/internal/domain/ai"
	"github.com/veritas-audit/auditflow/internal/domain/audits"
	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
	"github.com/veritas-audit/auditflow/internal/middleware"
)

var (
	// ErrNoQuestions means the application has no parsed questions yet.
	ErrNoQuestions = errors.New("no questions to analyze")
	// ErrBatchRunning means an analysis batch is already in flight for the
	// application.
	ErrBatchRunning = errors.New("analysis already running")
	// ErrAnalysisNotFound means no analysis row exists for the question.
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// Service implements the analysis coordinator use-cases: run classification
// across all questions of an application, persist results, apply manual
// overrides, and gate wizard progression.
type Service struct {
	Questions questions.Repository
	Analyses  questions.AnalysisRepository
	Registry  connectors.Registry
	Analyzer  ai.Analyzer
	Clock     application.Clock

	mu      sync.Mutex
	batches map[int64]*batchState
	dirty   map[int64]bool
}

type batchState struct {
	processed int
	total     int
	running   bool
	err       string
}

// Progress reports classification progress as processedCount/totalCount.
type Progress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Running   bool   `json:"running"`
	Error     string `json:"error,omitempty"`
}

// Readiness is the wizard gate: progression requires at least one analysis,
// an active connector for every suggested tool, and no unsaved edits.
type Readiness struct {
	Ready         bool         `json:"ready"`
	AnalysisCount int          `json:"analysisCount"`
	MissingTools  []tools.Type `json:"missingTools"`
	Unsaved       bool         `json:"unsaved"`
}

// Start kicks off a background analysis batch for the application. The batch
// runs with its own context so it survives the triggering request.
func (s *Service) Start(ctx context.Context, app *audits.Application) error {
	qs, err := s.Questions.ListByApplication(ctx, app.ID)
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		return ErrNoQuestions
	}

	s.mu.Lock()
	if s.batches == nil {
		s.batches = make(map[int64]*batchState)
	}
	if st, ok := s.batches[app.ID]; ok && st.running {
		s.mu.Unlock()
		return ErrBatchRunning
	}
	s.batches[app.ID] = &batchState{total: len(qs), running: true}
	s.mu.Unlock()

	go func() {
		if _, err := s.AnalyzeAll(context.Background(), app, qs); err != nil {
			log.Printf("analysis batch error: application=%d err=%v", app.ID, err)
		}
	}()
	return nil
}

// AnalyzeAll classifies every question sequentially so progress can be
// reported incrementally. A per-question classification failure degrades to
// the fixed fallback analysis and counts as processed; the batch never
// partially aborts.
func (s *Service) AnalyzeAll(ctx context.Context, app *audits.Application, qs []questions.Question) ([]*questions.Analysis, error) {
	s.ensureBatch(app.ID, len(qs))
	middleware.IncrementAnalysesRunning()
	defer middleware.DecrementAnalysesRunning()

	out := make([]*questions.Analysis, 0, len(qs))
	for _, q := range qs {
		result, err := s.Analyzer.Analyze(ctx, q)
		if err != nil {
			log.Printf("analysis fallback: application=%d question=%s err=%v", app.ID, q.ID, err)
			result = ai.Fallback(q)
		}
		a := &questions.Analysis{
			ApplicationID:    app.ID,
			QuestionID:       q.ID,
			OriginalQuestion: q.Text,
			Category:         firstNonEmpty(result.Category, q.Process),
			Subcategory:      firstNonEmpty(result.Subcategory, q.SubProcess),
			AIPrompt:         result.AIPrompt,
			ToolSuggestion:   result.ToolSuggestion,
			ConnectorReason:  result.ConnectorReason,
			ConnectorToUse:   result.ToolSuggestion,
			UpdatedAt:        s.Clock.Now(),
		}
		if err := s.Analyses.Upsert(ctx, a); err != nil {
			s.finishBatch(app.ID, err)
			return out, fmt.Errorf("persist analysis for question %s: %w", q.ID, err)
		}
		out = append(out, a)
		s.advanceBatch(app.ID)
	}
	s.finishBatch(app.ID, nil)

	s.mu.Lock()
	if s.dirty == nil {
		s.dirty = make(map[int64]bool)
	}
	s.dirty[app.ID] = false
	s.mu.Unlock()
	return out, nil
}

// Progress returns the current batch state for an application.
func (s *Service) Progress(applicationID int64) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.batches[applicationID]
	if !ok {
		return Progress{}
	}
	return Progress{Processed: st.processed, Total: st.total, Running: st.running, Error: st.err}
}

// List returns the persisted analyses for an application.
func (s *Service) List(ctx context.Context, applicationID int64) ([]*questions.Analysis, error) {
	return s.Analyses.ListByApplication(ctx, applicationID)
}

// UpdateToolSelection applies a manual tool override. The previously chosen
// connector is cleared, since a new tool type invalidates the old binding,
// and the analysis set is marked as having unsaved changes.
func (s *Service) UpdateToolSelection(ctx context.Context, applicationID int64, questionID string, newTool tools.Selection) (*questions.Analysis, error) {
	if newTool.IsZero() {
		return nil, fmt.Errorf("%w: empty selection", tools.ErrUnknownType)
	}
	a, err := s.Analyses.Get(ctx, applicationID, questionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAnalysisNotFound
	}
	a.ToolSuggestion = newTool
	a.ConnectorToUse = tools.Selection{}
	a.UpdatedAt = s.Clock.Now()
	if err := s.Analyses.Upsert(ctx, a); err != nil {
		return nil, err
	}
	s.markDirty(applicationID)
	return a, nil
}

// Save persists the full (possibly edited) analysis batch and clears the
// unsaved-changes flag. Persistence is transactional in the repository: the
// whole batch persists or the caller is told to retry.
func (s *Service) Save(ctx context.Context, applicationID int64, as []*questions.Analysis) error {
	now := s.Clock.Now()
	for _, a := range as {
		a.ApplicationID = applicationID
		if a.ConnectorToUse.IsZero() {
			a.ConnectorToUse = a.ToolSuggestion
		}
		a.UpdatedAt = now
	}
	if err := s.Analyses.UpsertBatch(ctx, as); err != nil {
		return fmt.Errorf("save analyses: %w", err)
	}
	s.mu.Lock()
	if s.dirty == nil {
		s.dirty = make(map[int64]bool)
	}
	s.dirty[applicationID] = false
	s.mu.Unlock()
	return nil
}

// CanProceed evaluates the readiness gate for the application.
func (s *Service) CanProceed(ctx context.Context, app *audits.Application) (Readiness, error) {
	as, err := s.Analyses.ListByApplication(ctx, app.ID)
	if err != nil {
		return Readiness{}, err
	}

	r := Readiness{AnalysisCount: len(as)}
	s.mu.Lock()
	r.Unsaved = s.dirty[app.ID]
	s.mu.Unlock()

	if len(as) == 0 {
		return r, nil
	}

	missing := make(map[tools.Type]bool)
	for _, a := range as {
		for _, t := range a.ToolSuggestion.Types() {
			if missing[t] {
				continue
			}
			c, err := s.Registry.FindActive(ctx, app.CIID, t)
			if err != nil {
				return Readiness{}, err
			}
			if c == nil {
				missing[t] = true
			}
		}
	}
	for _, t := range tools.All() {
		if missing[t] {
			r.MissingTools = append(r.MissingTools, t)
		}
	}
	r.Ready = len(r.MissingTools) == 0 && !r.Unsaved
	return r, nil
}

func (s *Service) ensureBatch(applicationID int64, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batches == nil {
		s.batches = make(map[int64]*batchState)
	}
	st, ok := s.batches[applicationID]
	if !ok || !st.running {
		s.batches[applicationID] = &batchState{total: total, running: true}
		return
	}
	st.total = total
	st.processed = 0
	st.err = ""
}

func (s *Service) advanceBatch(applicationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.batches[applicationID]; ok {
		st.processed++
	}
}

func (s *Service) finishBatch(applicationID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.batches[applicationID]
	if !ok {
		return
	}
	st.running = false
	if err != nil {
		st.err = err.Error()
	}
}

func (s *Service) markDirty(applicationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty == nil {
		s.dirty = make(map[int64]bool)
	}
	s.dirty[applicationID] = true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
