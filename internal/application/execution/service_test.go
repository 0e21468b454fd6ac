package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-audit/auditflow/internal/domain/audits"
	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/executions"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
	"github.com/veritas-audit/auditflow/internal/middleware"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeAnalysisRepo struct {
	rows map[string]*questions.Analysis
}

func akey(appID int64, qID string) string { return fmt.Sprintf("%d/%s", appID, qID) }

func (f *fakeAnalysisRepo) Upsert(_ context.Context, a *questions.Analysis) error {
	if f.rows == nil {
		f.rows = map[string]*questions.Analysis{}
	}
	cp := *a
	f.rows[akey(a.ApplicationID, a.QuestionID)] = &cp
	return nil
}

func (f *fakeAnalysisRepo) UpsertBatch(ctx context.Context, as []*questions.Analysis) error {
	for _, a := range as {
		if err := f.Upsert(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAnalysisRepo) Get(_ context.Context, appID int64, qID string) (*questions.Analysis, error) {
	a, ok := f.rows[akey(appID, qID)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAnalysisRepo) ListByApplication(_ context.Context, appID int64) ([]*questions.Analysis, error) {
	var out []*questions.Analysis
	for _, a := range f.rows {
		if a.ApplicationID == appID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAnalysisRepo) DeleteByApplication(_ context.Context, appID int64) error {
	for k, a := range f.rows {
		if a.ApplicationID == appID {
			delete(f.rows, k)
		}
	}
	return nil
}

type fakeRegistry struct {
	active map[tools.Type]*connectors.Connector
}

func (f *fakeRegistry) ListByCI(_ context.Context, _ string) ([]*connectors.Connector, error) {
	return nil, nil
}

func (f *fakeRegistry) FindActive(_ context.Context, _ string, t tools.Type) (*connectors.Connector, error) {
	return f.active[t], nil
}

type fakeResultRepo struct {
	mu      sync.Mutex
	rows    map[string]*executions.Result
	failFor string
}

func (f *fakeResultRepo) Upsert(_ context.Context, r *executions.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && r.QuestionID == f.failFor {
		return errors.New("db down")
	}
	if f.rows == nil {
		f.rows = map[string]*executions.Result{}
	}
	cp := *r
	f.rows[akey(r.ApplicationID, r.QuestionID)] = &cp
	return nil
}

func (f *fakeResultRepo) Get(_ context.Context, appID int64, qID string) (*executions.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[akey(appID, qID)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeResultRepo) ListByApplication(_ context.Context, appID int64) ([]*executions.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*executions.Result
	for _, r := range f.rows {
		if r.ApplicationID == appID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeResultRepo) DeleteByApplication(_ context.Context, appID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, r := range f.rows {
		if r.ApplicationID == appID {
			delete(f.rows, k)
		}
	}
	return nil
}

type fakeAgent struct {
	mu      sync.Mutex
	failFor map[string]bool
	payload string
}

func (f *fakeAgent) Collect(_ context.Context, req executions.CollectionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[req.QuestionID] {
		return "", errors.New("tool unreachable")
	}
	if f.payload != "" {
		return f.payload, nil
	}
	return `{"analysis":{"executiveSummary":"ok","riskLevel":"Low","complianceStatus":"Compliant","dataPoints":1,"findings":[]}}`, nil
}

type fakeArtifacts struct {
	keys []string
}

func (f *fakeArtifacts) Upload(_ context.Context, _, key string) (string, error) {
	f.keys = append(f.keys, key)
	return "http://minio/" + key, nil
}

func (f *fakeArtifacts) UploadAndCleanup(_ context.Context, localPath, key string) (string, error) {
	os.Remove(localPath)
	return f.Upload(context.Background(), localPath, key)
}

var testApp = &audits.Application{ID: 1, AuditName: "FY26", CIID: "CI-1"}

func analysisRow(qID string, t tools.Type) *questions.Analysis {
	return &questions.Analysis{
		ApplicationID:    1,
		QuestionID:       qID,
		OriginalQuestion: "question " + qID,
		AIPrompt:         "Collect data to answer: question " + qID,
		ToolSuggestion:   tools.NewSelection(t),
		ConnectorToUse:   tools.NewSelection(t),
	}
}

func newService(agent executions.Agent, reg *fakeRegistry, rows ...*questions.Analysis) (*Service, *fakeResultRepo) {
	analyses := &fakeAnalysisRepo{}
	for _, a := range rows {
		analyses.Upsert(context.Background(), a)
	}
	results := &fakeResultRepo{}
	svc := &Service{
		Analyses:  analyses,
		Registry:  reg,
		Results:   results,
		Agent:     agent,
		Artifacts: &fakeArtifacts{},
		Clock:     fixedClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
		Timeout:   time.Second,
	}
	return svc, results
}

func activeConnector(t tools.Type) *connectors.Connector {
	return &connectors.Connector{ID: 1, CIID: "CI-1", Type: t, Name: string(t), Status: connectors.StatusActive}
}

func TestRunBatchTerminalAccounting(t *testing.T) {
	reg := &fakeRegistry{active: map[tools.Type]*connectors.Connector{
		tools.SQLServer: activeConnector(tools.SQLServer),
		tools.Jira:      activeConnector(tools.Jira),
	}}
	agent := &fakeAgent{failFor: map[string]bool{"q-2": true}}
	rows := []*questions.Analysis{
		analysisRow("q-1", tools.SQLServer), // completes
		analysisRow("q-2", tools.Jira),      // agent fails
		analysisRow("q-3", tools.Outlook),   // no connector
	}
	svc, _ := newService(agent, reg, rows...)

	require.NoError(t, svc.StartBatch(context.Background(), testApp))

	// Poll until the batch settles.
	deadline := time.After(2 * time.Second)
	for {
		if p := svc.Progress(1); p.Done == p.Total && p.Total == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("batch did not finish")
		case <-time.After(5 * time.Millisecond):
		}
	}

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byID := map[string]*executions.Result{}
	for _, r := range list {
		byID[r.QuestionID] = r
	}
	assert.Equal(t, executions.StatusCompleted, byID["q-1"].Status)
	require.NotNil(t, byID["q-1"].Result)
	assert.Equal(t, "ok", byID["q-1"].Result.Summary)

	assert.Equal(t, executions.StatusFailed, byID["q-2"].Status)
	assert.Equal(t, "tool unreachable", byID["q-2"].Error)
	assert.NotNil(t, byID["q-2"].StartTime)
	assert.NotNil(t, byID["q-2"].EndTime)

	assert.Equal(t, executions.StatusNoConnector, byID["q-3"].Status)
	assert.Contains(t, byID["q-3"].Error, "Outlook")

	for _, r := range list {
		assert.True(t, r.Status.Terminal(), "question %s still %s", r.QuestionID, r.Status)
	}
}

func TestBatchGaugesSettle(t *testing.T) {
	reg := &fakeRegistry{active: map[tools.Type]*connectors.Connector{
		tools.SQLServer: activeConnector(tools.SQLServer),
	}}
	agent := &fakeAgent{failFor: map[string]bool{"q-2": true}}
	svc, _ := newService(agent, reg,
		analysisRow("q-1", tools.SQLServer),
		analysisRow("q-2", tools.SQLServer),
	)

	runningBefore := middleware.GetMetrics()["executions_running"].(uint64)
	failedBefore := middleware.GetMetrics()["executions_failed"].(uint64)
	require.NoError(t, svc.StartBatch(context.Background(), testApp))

	assert.Eventually(t, func() bool {
		m := middleware.GetMetrics()
		return m["executions_running"].(uint64) == runningBefore &&
			m["executions_failed"].(uint64) >= failedBefore+1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartBatchRejectsEmptyAndInFlight(t *testing.T) {
	svc, _ := newService(&fakeAgent{}, &fakeRegistry{})
	err := svc.StartBatch(context.Background(), testApp)
	assert.ErrorIs(t, err, ErrNoAnalyses)

	svc2, _ := newService(&fakeAgent{}, &fakeRegistry{}, analysisRow("q-1", tools.Jira))
	svc2.batches = map[int64]*batch{1: {
		total: 1,
		results: map[string]*executions.Result{
			"q-1": {ApplicationID: 1, QuestionID: "q-1", Status: executions.StatusRunning},
		},
	}}
	err = svc2.StartBatch(context.Background(), testApp)
	assert.ErrorIs(t, err, ErrBatchRunning)
}

func TestConnectorFallsBackToSuggestion(t *testing.T) {
	reg := &fakeRegistry{active: map[tools.Type]*connectors.Connector{
		tools.Jira: activeConnector(tools.Jira),
	}}
	row := analysisRow("q-1", tools.Jira)
	row.ConnectorToUse = tools.Selection{}
	svc, _ := newService(&fakeAgent{}, reg, row)

	svc.runOne(context.Background(), testApp, row)
	r := svc.current(1, "q-1")
	require.NotNil(t, r)
	assert.Equal(t, executions.StatusCompleted, r.Status)
}

func TestMultiToolSelectionPicksFirstActive(t *testing.T) {
	reg := &fakeRegistry{active: map[tools.Type]*connectors.Connector{
		tools.Outlook: activeConnector(tools.Outlook),
	}}
	row := analysisRow("q-1", tools.Jira)
	row.ConnectorToUse = tools.NewSelection(tools.Jira, tools.Outlook)
	svc, _ := newService(&fakeAgent{}, reg, row)

	svc.runOne(context.Background(), testApp, row)
	r := svc.current(1, "q-1")
	require.NotNil(t, r)
	assert.Equal(t, executions.StatusCompleted, r.Status)
	assert.Equal(t, string(tools.Outlook), r.Result.Source)
}

func TestRerunOverwritesTerminalResult(t *testing.T) {
	reg := &fakeRegistry{active: map[tools.Type]*connectors.Connector{
		tools.Jira: activeConnector(tools.Jira),
	}}
	agent := &fakeAgent{failFor: map[string]bool{"q-1": true}}
	row := analysisRow("q-1", tools.Jira)
	svc, _ := newService(agent, reg, row)

	svc.ensureBatch(1)
	svc.runOne(context.Background(), testApp, row)
	require.Equal(t, executions.StatusFailed, svc.current(1, "q-1").Status)

	agent.mu.Lock()
	agent.failFor["q-1"] = false
	agent.mu.Unlock()

	res, err := svc.Rerun(context.Background(), testApp, "q-1")
	require.NoError(t, err)
	assert.Equal(t, executions.StatusCompleted, res.Status)
	assert.Empty(t, res.Error)
}

func TestRerunUnknownQuestion(t *testing.T) {
	svc, _ := newService(&fakeAgent{}, &fakeRegistry{})
	_, err := svc.Rerun(context.Background(), testApp, "nope")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestSaveResultRequiresTerminal(t *testing.T) {
	svc, repo := newService(&fakeAgent{}, &fakeRegistry{})
	svc.storeResult(1, &executions.Result{ApplicationID: 1, QuestionID: "q-1", Status: executions.StatusRunning})

	_, err := svc.SaveResult(context.Background(), 1, "q-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still running")
	assert.Empty(t, repo.rows)
}

func TestSaveResultIdempotent(t *testing.T) {
	svc, repo := newService(&fakeAgent{}, &fakeRegistry{})
	svc.storeResult(1, &executions.Result{ApplicationID: 1, QuestionID: "q-1", Status: executions.StatusCompleted})

	_, err := svc.SaveResult(context.Background(), 1, "q-1")
	require.NoError(t, err)
	_, err = svc.SaveResult(context.Background(), 1, "q-1")
	require.NoError(t, err)
	assert.Len(t, repo.rows, 1)
}

func TestSaveAllIsolatesPerItemFailures(t *testing.T) {
	svc, repo := newService(&fakeAgent{}, &fakeRegistry{})
	repo.failFor = "q-2"
	for _, id := range []string{"q-1", "q-2", "q-3"} {
		svc.storeResult(1, &executions.Result{ApplicationID: 1, QuestionID: id, Status: executions.StatusCompleted})
	}
	svc.storeResult(1, &executions.Result{ApplicationID: 1, QuestionID: "q-4", Status: executions.StatusFailed})

	report, err := svc.SaveAll(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"q-1", "q-3"}, report.Saved)
	assert.Equal(t, map[string]string{"q-2": "db down"}, report.Failed)
	// Failed executions are not persisted by save-all.
	assert.Len(t, repo.rows, 2)
}

func TestSaveAllNothingCompleted(t *testing.T) {
	svc, _ := newService(&fakeAgent{}, &fakeRegistry{})
	_, err := svc.SaveAll(context.Background(), 1)
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestListOverlaysInMemoryOverPersisted(t *testing.T) {
	svc, repo := newService(&fakeAgent{}, &fakeRegistry{})
	repo.Upsert(context.Background(), &executions.Result{
		ApplicationID: 1, QuestionID: "q-1", Status: executions.StatusCompleted,
	})
	svc.storeResult(1, &executions.Result{ApplicationID: 1, QuestionID: "q-1", Status: executions.StatusRunning})
	svc.storeResult(1, &executions.Result{ApplicationID: 1, QuestionID: "q-2", Status: executions.StatusCompleted})

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "q-1", list[0].QuestionID)
	assert.Equal(t, executions.StatusRunning, list[0].Status)
	assert.Equal(t, "q-2", list[1].QuestionID)
}

func TestExportUploadsReport(t *testing.T) {
	svc, repo := newService(&fakeAgent{}, &fakeRegistry{})
	store := svc.Artifacts.(*fakeArtifacts)
	repo.Upsert(context.Background(), &executions.Result{
		ApplicationID: 1, QuestionID: "q-1", Status: executions.StatusCompleted,
		Result: &executions.ResultPayload{Summary: "ok"},
	})
	t.Cleanup(func() { os.RemoveAll("temp") })

	url, err := svc.Export(context.Background(), testApp)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://minio/CI-1/1/"))
	require.Len(t, store.keys, 1)
	assert.True(t, strings.HasPrefix(store.keys[0], "CI-1/1/results-1-"))
}

func TestExportWithoutSavedResults(t *testing.T) {
	svc, _ := newService(&fakeAgent{}, &fakeRegistry{})
	_, err := svc.Export(context.Background(), testApp)
	assert.ErrorIs(t, err, ErrResultNotFound)
}
