package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/veritas-audit/auditflow/internal/application"
	appanalysis "github.com/veritas-audit/auditflow/internal/application/analysis"
	appapps "github.com/veritas-audit/auditflow/internal/application/apps"
	appexecution "github.com/veritas-audit/auditflow/internal/application/execution"
	appsettings "github.com/veritas-audit/auditflow/internal/application/settings"
	"github.com/veritas-audit/auditflow/internal/config"
	"github.com/veritas-audit/auditflow/internal/domain/ai"
	"github.com/veritas-audit/auditflow/internal/domain/audits"
	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/executions"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/infra/agent/sim"
	"github.com/veritas-audit/auditflow/internal/infra/ai/keyword"
	aiopenai "github.com/veritas-audit/auditflow/internal/infra/ai/openai"
	mysqlp "github.com/veritas-audit/auditflow/internal/infra/db/mysql"
	postgresp "github.com/veritas-audit/auditflow/internal/infra/db/postgres"
	"github.com/veritas-audit/auditflow/internal/infra/httpserver"
	minioStore "github.com/veritas-audit/auditflow/internal/infra/storage"
	"github.com/veritas-audit/auditflow/internal/middleware"
)

type repositories struct {
	apps       audits.Repository
	questions  questions.Repository
	analyses   questions.AnalysisRepository
	connectors connectors.Repository
	results    executions.Repository
}

func main() {
	// Local .env is optional.
	_ = godotenv.Load()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	db, repos, err := connectDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	analyzer, agent := buildProviders(cfg)
	clock := application.SystemClock{}

	appsSvc := &appapps.Service{
		Repo:      repos.apps,
		Questions: repos.questions,
		Analyses:  repos.analyses,
		Results:   repos.results,
		Clock:     clock,
	}
	settingsSvc := &appsettings.Service{
		Repo:  repos.connectors,
		Clock: clock,
	}
	analysisSvc := &appanalysis.Service{
		Questions: repos.questions,
		Analyses:  repos.analyses,
		Registry:  repos.connectors,
		Analyzer:  analyzer,
		Clock:     clock,
	}
	executionSvc := &appexecution.Service{
		Analyses:  repos.analyses,
		Registry:  repos.connectors,
		Results:   repos.results,
		Agent:     agent,
		Artifacts: store,
		Clock:     clock,
		Timeout:   cfg.AgentTimeout(),
	}

	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}
	mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	mux.Mount("/", httpserver.NewRouter(appsSvc, settingsSvc, analysisSvc, executionSvc, health))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// connectDatabase opens the configured backend and builds its repository set.
func connectDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, repositories{}, err
		}
		return db, repositories{
			apps:       postgresp.NewApplicationRepository(db),
			questions:  postgresp.NewQuestionRepository(db),
			analyses:   postgresp.NewAnalysisRepository(db),
			connectors: postgresp.NewConnectorRepository(db),
			results:    postgresp.NewExecutionRepository(db),
		}, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, repositories{}, err
		}
		return db, repositories{
			apps:       mysqlp.NewApplicationRepository(db),
			questions:  mysqlp.NewQuestionRepository(db),
			analyses:   mysqlp.NewAnalysisRepository(db),
			connectors: mysqlp.NewConnectorRepository(db),
			results:    mysqlp.NewExecutionRepository(db),
		}, nil
	default:
		return nil, repositories{}, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// buildProviders selects the classifier and the collection agent. Without an
// OpenAI key both fall back to the local implementations so the pipeline
// still runs end to end.
func buildProviders(cfg *config.Config) (ai.Analyzer, executions.Agent) {
	if cfg.AI.APIKey != "" && cfg.AI.Provider != "keyword" {
		client := aiopenai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
		if cfg.Agent.Provider == "simulated" {
			return client, sim.NewAgent()
		}
		return client, client
	}
	log.Println("no OpenAI key configured, using keyword classifier and simulated agent")
	return keyword.New(), sim.NewAgent()
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.Server.CORSOrigins) > 0 {
		return cfg.Server.CORSOrigins
	}
	return []string{"*"}
}
