package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritas-audit/auditflow/internal/application"
	"github.com/veritas-audit/auditflow/internal/domain/audits"
	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/executions"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
	"github.com/veritas-audit/auditflow/internal/middleware"
)

const defaultTimeout = 60 * time.Second

var (
	// ErrNoAnalyses means the application has no saved analyses to execute.
	ErrNoAnalyses = errors.New("no analyses to execute")
	// ErrBatchRunning means an execution batch is already in flight.
	ErrBatchRunning = errors.New("execution already running")
	// ErrResultNotFound means no current result exists for the question.
	ErrResultNotFound = errors.New("execution result not found")
)

// Service implements the execution runner: for each analyzed question with a
// resolved connector it invokes the collection agent and normalizes the
// output into an ExecutionResult. Results live in memory until explicitly
// saved; re-running a question overwrites its current result.
type Service struct {
	Analyses  questions.AnalysisRepository
	Registry  connectors.Registry
	Results   executions.Repository
	Agent     executions.Agent
	Artifacts executions.ArtifactStore
	Clock     application.Clock
	// Timeout bounds one agent call. Zero means defaultTimeout.
	Timeout time.Duration

	mu      sync.Mutex
	batches map[int64]*batch
}

type batch struct {
	results map[string]*executions.Result
	total   int
}

// Progress is the aggregate batch view: terminal-state questions over total.
type Progress struct {
	Done    int  `json:"done"`
	Total   int  `json:"total"`
	Running bool `json:"running"`
}

// SaveReport accounts for a save-all: per-item failures do not roll back
// sibling saves.
type SaveReport struct {
	Saved  []string          `json:"saved"`
	Failed map[string]string `json:"failed,omitempty"`
}

// StartBatch dispatches every analyzed question concurrently so one slow
// tool call does not delay the others. It returns once the batch is
// initialized; the fan-out runs in the background until every question
// reaches a terminal state.
func (s *Service) StartBatch(ctx context.Context, app *audits.Application) error {
	as, err := s.Analyses.ListByApplication(ctx, app.ID)
	if err != nil {
		return err
	}
	if len(as) == 0 {
		return ErrNoAnalyses
	}

	s.mu.Lock()
	if s.batches == nil {
		s.batches = make(map[int64]*batch)
	}
	if b, ok := s.batches[app.ID]; ok && s.inFlightLocked(b) {
		s.mu.Unlock()
		return ErrBatchRunning
	}
	b := &batch{results: make(map[string]*executions.Result, len(as)), total: len(as)}
	for _, a := range as {
		b.results[a.QuestionID] = &executions.Result{
			ApplicationID: app.ID,
			QuestionID:    a.QuestionID,
			Status:        executions.StatusPending,
		}
	}
	s.batches[app.ID] = b
	s.mu.Unlock()

	// Run with a fresh context so the batch survives the triggering request.
	go s.runBatch(context.Background(), app, as)
	return nil
}

func (s *Service) runBatch(ctx context.Context, app *audits.Application, as []*questions.Analysis) {
	middleware.IncrementExecutionsRunning()
	defer middleware.DecrementExecutionsRunning()

	var wg sync.WaitGroup
	for _, a := range as {
		wg.Add(1)
		go func(a *questions.Analysis) {
			defer wg.Done()
			s.runOne(ctx, app, a)
		}(a)
	}
	wg.Wait()
	log.Printf("execution batch finished: application=%d questions=%d", app.ID, len(as))
}

// runOne drives one question through the state machine:
// pending -> running -> {completed|failed}, or pending -> no_connector when
// no active connector matches the chosen tool.
func (s *Service) runOne(ctx context.Context, app *audits.Application, a *questions.Analysis) {
	conn, missing, err := s.resolveConnector(ctx, app.CIID, a)
	if err != nil {
		now := s.Clock.Now()
		s.storeResult(app.ID, &executions.Result{
			ApplicationID: app.ID,
			QuestionID:    a.QuestionID,
			Status:        executions.StatusRunning,
			StartTime:     &now,
		})
		s.storeResult(app.ID, &executions.Result{
			ApplicationID: app.ID,
			QuestionID:    a.QuestionID,
			Status:        executions.StatusFailed,
			Error:         fmt.Sprintf("connector lookup failed: %v", err),
			StartTime:     &now,
			EndTime:       &now,
		})
		middleware.IncrementExecutionsFailed()
		return
	}
	if conn == nil {
		s.storeResult(app.ID, &executions.Result{
			ApplicationID: app.ID,
			QuestionID:    a.QuestionID,
			Status:        executions.StatusNoConnector,
			Error:         fmt.Sprintf("configure a connector for tool %s", missing),
		})
		return
	}

	start := s.Clock.Now()
	s.storeResult(app.ID, &executions.Result{
		ApplicationID: app.ID,
		QuestionID:    a.QuestionID,
		Status:        executions.StatusRunning,
		StartTime:     &start,
	})

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.Agent.Collect(callCtx, executions.CollectionRequest{
		QuestionID: a.QuestionID,
		Question:   a.OriginalQuestion,
		Prompt:     a.AIPrompt,
		ToolType:   conn.Type,
		Connector:  conn,
	})
	end := s.Clock.Now()
	if err != nil {
		s.storeResult(app.ID, &executions.Result{
			ApplicationID: app.ID,
			QuestionID:    a.QuestionID,
			Status:        executions.StatusFailed,
			Error:         err.Error(),
			StartTime:     &start,
			EndTime:       &end,
		})
		middleware.IncrementExecutionsFailed()
		return
	}

	payload := executions.Normalize(raw, conn.Name, end)
	s.storeResult(app.ID, &executions.Result{
		ApplicationID: app.ID,
		QuestionID:    a.QuestionID,
		Status:        executions.StatusCompleted,
		Result:        &payload,
		StartTime:     &start,
		EndTime:       &end,
	})
}

// resolveConnector picks the first tool in the analysis' connector choice
// that has an active connector for the CI. When none does, the first wanted
// tool is reported so the user can be told what to configure.
func (s *Service) resolveConnector(ctx context.Context, ciID string, a *questions.Analysis) (*connectors.Connector, tools.Type, error) {
	selection := a.ConnectorToUse
	if selection.IsZero() {
		selection = a.ToolSuggestion
	}
	if selection.IsZero() {
		return nil, tools.ManualReview, nil
	}
	for _, t := range selection.Types() {
		c, err := s.Registry.FindActive(ctx, ciID, t)
		if err != nil {
			return nil, "", err
		}
		if c != nil {
			return c, "", nil
		}
	}
	return nil, selection.Primary(), nil
}

// Rerun executes a single question again, synchronously. The prior terminal
// result is overwritten; the run restarts at running.
func (s *Service) Rerun(ctx context.Context, app *audits.Application, questionID string) (*executions.Result, error) {
	a, err := s.Analyses.Get(ctx, app.ID, questionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrResultNotFound
	}
	s.ensureBatch(app.ID)
	// Drop the prior terminal result so the run restarts cleanly at running.
	s.mu.Lock()
	if b, ok := s.batches[app.ID]; ok {
		delete(b.results, questionID)
	}
	s.mu.Unlock()
	s.runOne(ctx, app, a)
	return s.current(app.ID, questionID), nil
}

// Progress reports terminal-state questions over total for the current
// batch. Ordering across questions is not meaningful; the count is purely
// additive.
func (s *Service) Progress(applicationID int64) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[applicationID]
	if !ok {
		return Progress{}
	}
	done := 0
	for _, r := range b.results {
		if r.Status.Terminal() {
			done++
		}
	}
	return Progress{Done: done, Total: b.total, Running: done < b.total}
}

// List returns the execution state per question: persisted results overlaid
// by the current in-memory batch, ordered by question id.
func (s *Service) List(ctx context.Context, applicationID int64) ([]*executions.Result, error) {
	persisted, err := s.Results.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]*executions.Result, len(persisted))
	for _, r := range persisted {
		merged[r.QuestionID] = r
	}

	s.mu.Lock()
	if b, ok := s.batches[applicationID]; ok {
		for id, r := range b.results {
			cp := *r
			merged[id] = &cp
		}
	}
	s.mu.Unlock()

	out := make([]*executions.Result, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// SaveResult persists the current result for one question (idempotent
// upsert).
func (s *Service) SaveResult(ctx context.Context, applicationID int64, questionID string) (*executions.Result, error) {
	r := s.current(applicationID, questionID)
	if r == nil {
		return nil, ErrResultNotFound
	}
	if !r.Status.Terminal() {
		return nil, fmt.Errorf("question %s is still %s", questionID, r.Status)
	}
	if err := s.Results.Upsert(ctx, r); err != nil {
		return nil, fmt.Errorf("save result for question %s: %w", questionID, err)
	}
	return r, nil
}

// SaveAll persists every currently-completed result. Per-item failures are
// reported and do not roll back sibling saves.
func (s *Service) SaveAll(ctx context.Context, applicationID int64) (SaveReport, error) {
	s.mu.Lock()
	b, ok := s.batches[applicationID]
	var completed []*executions.Result
	if ok {
		for _, r := range b.results {
			if r.Status == executions.StatusCompleted {
				cp := *r
				completed = append(completed, &cp)
			}
		}
	}
	s.mu.Unlock()
	if len(completed) == 0 {
		return SaveReport{}, ErrResultNotFound
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].QuestionID < completed[j].QuestionID })

	report := SaveReport{}
	for _, r := range completed {
		if err := s.Results.Upsert(ctx, r); err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[r.QuestionID] = err.Error()
			continue
		}
		report.Saved = append(report.Saved, r.QuestionID)
	}
	return report, nil
}

// Export writes the persisted results of an application to a JSON report and
// uploads it, returning the artifact URL. The local file is removed after a
// successful upload.
func (s *Service) Export(ctx context.Context, app *audits.Application) (string, error) {
	results, err := s.Results.ListByApplication(ctx, app.ID)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", ErrResultNotFound
	}
	sort.Slice(results, func(i, j int) bool { return results[i].QuestionID < results[j].QuestionID })

	report := map[string]any{
		"applicationId": app.ID,
		"auditName":     app.AuditName,
		"ciId":          app.CIID,
		"generatedAt":   s.Clock.Now(),
		"results":       results,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}

	tempDir := filepath.Join(".", "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", err
	}
	localPath := filepath.Join(tempDir, fmt.Sprintf("results-%d-%s.json", app.ID, uuid.New().String()))
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%d/%s", app.CIID, app.ID, filepath.Base(localPath))
	url, err := s.Artifacts.UploadAndCleanup(ctx, localPath, key)
	if err != nil {
		os.Remove(localPath)
		return "", err
	}
	return url, nil
}

func (s *Service) current(applicationID int64, questionID string) *executions.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[applicationID]
	if !ok {
		return nil
	}
	r, ok := b.results[questionID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *Service) ensureBatch(applicationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batches == nil {
		s.batches = make(map[int64]*batch)
	}
	if _, ok := s.batches[applicationID]; !ok {
		s.batches[applicationID] = &batch{results: make(map[string]*executions.Result)}
	}
}

// storeResult swaps in the latest state for one question. Writes are keyed
// by (applicationId, questionId); a re-run racing a prior run is
// last-write-wins.
func (s *Service) storeResult(applicationID int64, r *executions.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batches == nil {
		s.batches = make(map[int64]*batch)
	}
	b, ok := s.batches[applicationID]
	if !ok {
		b = &batch{results: make(map[string]*executions.Result)}
		s.batches[applicationID] = b
	}
	if prev, ok := b.results[r.QuestionID]; ok && !executions.ValidTransition(prev.Status, r.Status) && prev.Status != r.Status {
		log.Printf("execution transition out of order: question=%s %s -> %s", r.QuestionID, prev.Status, r.Status)
	}
	b.results[r.QuestionID] = r
	if len(b.results) > b.total {
		b.total = len(b.results)
	}
}

func (s *Service) inFlightLocked(b *batch) bool {
	for _, r := range b.results {
		if !r.Status.Terminal() {
			return true
		}
	}
	return false
}
