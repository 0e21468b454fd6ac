package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appanalysis "github.com/veritas-audit/auditflow/internal/application/analysis"
	appapps "github.com/veritas-audit/auditflow/internal/application/apps"
	appexecution "github.com/veritas-audit/auditflow/internal/application/execution"
	appsettings "github.com/veritas-audit/auditflow/internal/application/settings"
	domai "github.com/veritas-audit/auditflow/internal/domain/ai"
	"github.com/veritas-audit/auditflow/internal/domain/audits"
	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
	"github.com/veritas-audit/auditflow/internal/middleware"
)

type Router struct {
	apps     *appapps.Service
	settings *appsettings.Service
	analysis *appanalysis.Service
	exec     *appexecution.Service
}

func NewRouter(apps *appapps.Service, settings *appsettings.Service, analysis *appanalysis.Service, exec *appexecution.Service, health map[string]middleware.HealthChecker) http.Handler {
	r := &Router{apps: apps, settings: settings, analysis: analysis, exec: exec}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.HealthHandler(health))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/applications", r.wrap(r.handleCreateApplication))
		rt.Get("/applications", r.wrap(r.handleListApplications))
		rt.Get("/applications/{id}", r.wrap(r.handleGetApplication))
		rt.Put("/applications/{id}", r.wrap(r.handleUpdateApplication))
		rt.Delete("/applications/{id}", r.wrap(r.handleDeleteApplication))

		rt.Post("/applications/{id}/questions", r.wrap(r.handleAddQuestions))
		rt.Get("/applications/{id}/questions", r.wrap(r.handleListQuestions))

		rt.Post("/applications/{id}/analyses/run", r.wrap(r.handleRunAnalysis))
		rt.Get("/applications/{id}/analyses/progress", r.wrap(r.handleAnalysisProgress))
		rt.Get("/applications/{id}/analyses", r.wrap(r.handleListAnalyses))
		rt.Put("/applications/{id}/analyses/{questionId}/tool", r.wrap(r.handleUpdateTool))
		rt.Post("/applications/{id}/analyses/save", r.wrap(r.handleSaveAnalyses))
		rt.Get("/applications/{id}/analyses/readiness", r.wrap(r.handleReadiness))

		rt.Post("/connectors", r.wrap(r.handleCreateConnector))
		rt.Get("/connectors/ci/{ciId}", r.wrap(r.handleListConnectorsByCI))
		rt.Get("/connectors/application/{id}", r.wrap(r.handleListConnectorsByApp))
		rt.Put("/connectors/{id}", r.wrap(r.handleUpdateConnector))
		rt.Delete("/connectors/{id}", r.wrap(r.handleDeleteConnector))
		rt.Post("/connectors/{id}/test", r.wrap(r.handleTestConnector))

		rt.Post("/applications/{id}/executions/run", r.wrap(r.handleRunExecutions))
		rt.Get("/applications/{id}/executions/progress", r.wrap(r.handleExecutionProgress))
		rt.Get("/applications/{id}/executions", r.wrap(r.handleListExecutions))
		rt.Post("/applications/{id}/executions/{questionId}/rerun", r.wrap(r.handleRerun))
		rt.Post("/applications/{id}/executions/{questionId}/save", r.wrap(r.handleSaveResult))
		rt.Post("/applications/{id}/executions/save-all", r.wrap(r.handleSaveAll))
		rt.Post("/applications/{id}/executions/export", r.wrap(r.handleExport))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequestError marks validation failures so wrap maps them to 400.
type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return badRequestError{err: fmt.Errorf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br badRequestError
			switch {
			case errors.Is(err, sql.ErrNoRows),
				errors.Is(err, audits.ErrNotFound),
				errors.Is(err, connectors.ErrNotFound),
				errors.Is(err, appanalysis.ErrAnalysisNotFound),
				errors.Is(err, appexecution.ErrResultNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, domai.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			case errors.Is(err, appanalysis.ErrBatchRunning),
				errors.Is(err, appexecution.ErrBatchRunning),
				errors.Is(err, appsettings.ErrDuplicate):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, tools.ErrUnknownType),
				errors.Is(err, appanalysis.ErrNoQuestions),
				errors.Is(err, appexecution.ErrNoAnalyses),
				errors.As(err, &br):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func pathID(req *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, name), 10, 64)
	if err != nil {
		return 0, badRequest("invalid %s", name)
	}
	return id, nil
}

func (r *Router) application(req *http.Request) (*audits.Application, error) {
	id, err := pathID(req, "id")
	if err != nil {
		return nil, err
	}
	return r.apps.Get(req.Context(), id)
}

// POST /v1/applications
func (r *Router) handleCreateApplication(w http.ResponseWriter, req *http.Request) error {
	var body audits.Application
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if err := middleware.ValidateCIID(body.CIID); err != nil {
		return badRequest("%v", err)
	}
	created, err := r.apps.Create(req.Context(), &body)
	if err != nil {
		if strings.Contains(err.Error(), "required") {
			return badRequest("%v", err)
		}
		return err
	}
	return writeJSON(w, http.StatusCreated, created)
}

// GET /v1/applications
func (r *Router) handleListApplications(w http.ResponseWriter, req *http.Request) error {
	list, err := r.apps.List(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/applications/{id}
func (r *Router) handleGetApplication(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, app)
}

// PUT /v1/applications/{id}
func (r *Router) handleUpdateApplication(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body audits.Application
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	body.ID = id
	updated, err := r.apps.Update(req.Context(), &body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, updated)
}

// DELETE /v1/applications/{id}
func (r *Router) handleDeleteApplication(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	if err := r.apps.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/applications/{id}/questions
// Body: [{"id","questionNumber","process","subProcess","question"}, ...]
func (r *Router) handleAddQuestions(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	var body []questions.Question
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	for i := range body {
		if err := middleware.ValidateQuestionID(body[i].ID); err != nil {
			return badRequest("question %d: %v", i, err)
		}
		if err := middleware.ValidateQuestionText(body[i].Text); err != nil {
			return badRequest("question %s: %v", body[i].ID, err)
		}
	}
	n, err := r.apps.AddQuestions(req.Context(), app.ID, body)
	if err != nil {
		return badRequest("%v", err)
	}
	return writeJSON(w, http.StatusCreated, map[string]any{"saved": n})
}

// GET /v1/applications/{id}/questions
func (r *Router) handleListQuestions(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	qs, err := r.apps.ListQuestions(req.Context(), app.ID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, qs)
}

// POST /v1/applications/{id}/analyses/run
func (r *Router) handleRunAnalysis(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	if err := r.analysis.Start(req.Context(), app); err != nil {
		return err
	}
	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}

// GET /v1/applications/{id}/analyses/progress
func (r *Router) handleAnalysisProgress(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.analysis.Progress(id))
}

// GET /v1/applications/{id}/analyses
func (r *Router) handleListAnalyses(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	list, err := r.analysis.List(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// PUT /v1/applications/{id}/analyses/{questionId}/tool
// Body: {"toolSuggestion": "Jira"} or {"toolSuggestion": ["Jira","Outlook"]}
func (r *Router) handleUpdateTool(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	questionID := chi.URLParam(req, "questionId")
	var body struct {
		ToolSuggestion tools.Selection `json:"toolSuggestion"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	a, err := r.analysis.UpdateToolSelection(req.Context(), id, questionID, body.ToolSuggestion)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// POST /v1/applications/{id}/analyses/save
// Body: the full (possibly edited) analysis list.
func (r *Router) handleSaveAnalyses(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body []*questions.Analysis
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if len(body) == 0 {
		return badRequest("no analyses provided")
	}
	if err := r.analysis.Save(req.Context(), id, body); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"saved": len(body)})
}

// GET /v1/applications/{id}/analyses/readiness
func (r *Router) handleReadiness(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	ready, err := r.analysis.CanProceed(req.Context(), app)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ready)
}

// POST /v1/connectors
func (r *Router) handleCreateConnector(w http.ResponseWriter, req *http.Request) error {
	var body connectors.Connector
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	created, err := r.settings.Create(req.Context(), &body)
	if err != nil {
		if strings.Contains(err.Error(), "required") {
			return badRequest("%v", err)
		}
		return err
	}
	return writeJSON(w, http.StatusCreated, created)
}

// GET /v1/connectors/ci/{ciId}
func (r *Router) handleListConnectorsByCI(w http.ResponseWriter, req *http.Request) error {
	ciID := chi.URLParam(req, "ciId")
	if err := middleware.ValidateCIID(ciID); err != nil {
		return badRequest("%v", err)
	}
	list, err := r.settings.ListByCI(req.Context(), ciID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/connectors/application/{id}
func (r *Router) handleListConnectorsByApp(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	list, err := r.settings.ListByApplication(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// PUT /v1/connectors/{id}
// Body: {"name": "...", "configuration": {...}}
func (r *Router) handleUpdateConnector(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body struct {
		Name          string         `json:"name"`
		Configuration map[string]any `json:"configuration"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	c, err := r.settings.Update(req.Context(), id, body.Name, body.Configuration)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, c)
}

// DELETE /v1/connectors/{id}
func (r *Router) handleDeleteConnector(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	if err := r.settings.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/connectors/{id}/test
func (r *Router) handleTestConnector(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	c, err := r.settings.Test(req.Context(), id)
	if err != nil {
		if c != nil {
			// The connector exists but its configuration failed the check.
			return writeJSON(w, http.StatusOK, map[string]any{
				"connector": c,
				"error":     err.Error(),
			})
		}
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"connector": c})
}

// POST /v1/applications/{id}/executions/run
func (r *Router) handleRunExecutions(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	if err := r.exec.StartBatch(req.Context(), app); err != nil {
		return err
	}
	middleware.IncrementExecutions()
	return writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}

// GET /v1/applications/{id}/executions/progress
func (r *Router) handleExecutionProgress(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.exec.Progress(id))
}

// GET /v1/applications/{id}/executions
func (r *Router) handleListExecutions(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	list, err := r.exec.List(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/applications/{id}/executions/{questionId}/rerun
func (r *Router) handleRerun(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	res, err := r.exec.Rerun(req.Context(), app, chi.URLParam(req, "questionId"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/applications/{id}/executions/{questionId}/save
func (r *Router) handleSaveResult(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	res, err := r.exec.SaveResult(req.Context(), id, chi.URLParam(req, "questionId"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/applications/{id}/executions/save-all
func (r *Router) handleSaveAll(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	report, err := r.exec.SaveAll(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, report)
}

// POST /v1/applications/{id}/executions/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	app, err := r.application(req)
	if err != nil {
		return err
	}
	url, err := r.exec.Export(req.Context(), app)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"url": url})
}
