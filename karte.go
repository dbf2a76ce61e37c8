// Package karte is the public API for embedding the Karte medical document
// AI server.
//
// Hospital integrations import this package to construct and extend the
// server without forking it:
//
//	app, err := karte.New(
//	    karte.WithVersion(version),
//	    karte.WithLogger(logger),
//	    karte.WithChatProvider(myOnPremGateway{}),
//	    karte.WithCaseHook(myEHRNotifier{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: karte (root) imports
// internal/*, but internal/* never imports karte (root).  Public types
// (ChatRequest, CaseEvent, etc.) are standalone structs with no internal
// imports; conversion helpers (toPublicCaseEvent and the adapters) live here
// because this is the only file that sees both sides of the boundary.
package karte

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/chartmed-ai/karte/api"
	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/config"
	"github.com/chartmed-ai/karte/internal/extract"
	"github.com/chartmed-ai/karte/internal/jobs"
	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/mcp"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/ocr"
	"github.com/chartmed-ai/karte/internal/ratelimit"
	"github.com/chartmed-ai/karte/internal/server"
	"github.com/chartmed-ai/karte/internal/signup"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/telemetry"
	"github.com/chartmed-ai/karte/internal/tumorboard"
	"github.com/chartmed-ai/karte/migrations"
	"github.com/chartmed-ai/karte/ui"
)

// App is the Karte server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	db           *storage.DB
	srv          *server.Server
	executor     *jobs.Executor
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
}

// New initialises the Karte server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.uploadDir != "" {
		cfg.UploadDir = o.uploadDir
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("karte starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run migrations. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so errors here indicate real
	// failures (not "already exists").
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for _, extra := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extra); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations: %w", err)
		}
	}

	// Report uploads are written here before OCR picks them up.
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("upload dir %s: %w", cfg.UploadDir, err)
	}

	// Create JWT manager. Without configured key paths it generates an
	// ephemeral pair, invalidating all tokens on restart.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}
	if cfg.JWTPrivateKeyPath == "" {
		logger.Warn("jwt: using ephemeral keys, sessions will not survive a restart (set KARTE_JWT_PRIVATE_KEY)")
	}

	signupSvc := signup.New(db, jwtMgr, logger)
	owners := authz.NewOwnerCache(0)

	// Chat gateway: external override or the Groq client.
	var provider llm.Provider
	if o.chatProvider != nil {
		provider = &chatProviderAdapter{p: o.chatProvider}
		logger.Info("llm gateway: external provider")
	} else {
		provider = llm.NewGroq(cfg.GroqAPIKey, cfg.GroqBaseURL, logger)
		if cfg.GroqAPIKey == "" {
			logger.Warn("llm gateway: GROQ_API_KEY not set, analysis and board runs will fail")
		} else {
			logger.Info("llm gateway: groq", "base_url", cfg.GroqBaseURL)
		}
	}

	// OCR service. The Azure engine stays dormant unless configured.
	ocrSvc := ocr.New(ocr.Config{
		Engine:        cfg.OCREngine,
		PaddleURL:     cfg.PaddleOCRURL,
		AzureEndpoint: cfg.AzureDocEndpoint,
		AzureKey:      cfg.AzureDocKey,
		MinConfidence: cfg.OCRMinConfidence,
		MaxDPI:        cfg.OCRMaxDPI,
		CacheSize:     cfg.OCRCacheMaxSize,
	}, logger)
	logger.Info("ocr engine", "engine", cfg.OCREngine)

	// Two-stage extraction pipeline.
	extractor := extract.New(provider, extract.Config{
		ModelA:        cfg.LLMAModel,
		ModelB:        cfg.LLMBModel,
		SkipThreshold: cfg.LLMBSkipThreshold,
	}, logger)

	// Tumor board: timeline pass, specialist agents, optional external
	// orchestration overlay.
	orch := tumorboard.NewOrchestrator(tumorboard.OrchestratorConfig{
		Endpoint: cfg.AzureAgentEndpoint,
		Key:      cfg.AzureAgentKey,
		Enabled:  cfg.AzureOrchestrationEnabled,
	}, logger)
	if orch.Enabled() {
		logger.Info("orchestration: azure overlay enabled")
	}
	timeline := tumorboard.NewTimelineGenerator(provider, cfg.TumorBoardModel, logger)
	runner := tumorboard.NewRunner(provider, tumorboard.Config{
		RadiologyModel:      cfg.AgentModel("radiology"),
		PathologyModel:      cfg.AgentModel("pathology"),
		ClinicalModel:       cfg.AgentModel("clinical"),
		ResearchModel:       cfg.AgentModel("research"),
		CoordinatorModel:    cfg.AgentModel("coordinator"),
		MaxConcurrentAgents: cfg.TumorBoardMaxAgents,
	}, orch, logger)

	// Background job executor with its processors. Case hooks convert
	// internal rows to public events at the boundary.
	sems := jobs.NewSemaphores(cfg.MaxConcurrentLLM, cfg.MaxOCRWorkers)
	analysis := jobs.NewAnalysisProcessor(db, ocrSvc, extractor, sems, jobs.AnalysisConfig{
		SecondsPerPage:   cfg.SecondsPerPage,
		SecondsPerReport: cfg.SecondsPerReport,
	}, logger)
	board := jobs.NewBoardProcessor(db, timeline, runner, logger)
	for _, h := range o.caseHooks {
		board = board.WithHooks(&caseHookAdapter{hook: h})
	}
	executor := jobs.NewExecutor(db, analysis, board, jobs.Config{
		PollInterval:  cfg.JobPollInterval,
		MaxConcurrent: cfg.MaxConcurrentJobs,
	}, logger)

	// MCP server (mounted at /mcp by the HTTP server).
	mcpSrv := mcp.New(db, owners, cfg.SecondsPerReport, logger, version)

	// Load embedded UI filesystem (non-nil only when built with -tags ui).
	uiFS, err := ui.DistFS()
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("ui: %w", err)
	}
	if uiFS != nil {
		logger.Info("ui: embedded SPA loaded")
	}

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// Adapt middlewares from karte.Middleware to the server's plain func type.
	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	// Create HTTP server.
	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Signup:              signupSvc,
		Logger:              logger,
		Executor:            executor,
		Orchestrator:        orch,
		Owners:              owners,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSOrigins:         cfg.CORSOrigins,
		UploadDir:           cfg.UploadDir,
		SecondsPerReport:    cfg.SecondsPerReport,
		UIFS:                uiFS,
		OpenAPISpec:         api.OpenAPISpec,
		Middlewares:         middlewares,
	})

	return &App{
		db:           db,
		srv:          srv,
		executor:     executor,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
	}, nil
}

// Run starts the job executor and the HTTP server, then blocks until ctx
// is cancelled or a fatal server error occurs. On return, Shutdown is
// called automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	a.executor.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs a two-phase graceful shutdown: (1) stop accepting
// HTTP requests and drain in-flight ones, (2) stop claiming jobs and wait
// for running analysis and board work to reach a terminal state. It then
// closes the database pool and the OTEL provider. Each phase gets its own
// timeout so early completion doesn't steal budget from later phases.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("karte shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	jobsCtx, jobsCancel := context.WithTimeout(ctx, 30*time.Second)
	a.executor.Drain(jobsCtx)
	jobsCancel()

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("karte stopped")
	return nil
}

// Handler returns the root HTTP handler with the full middleware chain.
// Embedders that manage their own http.Server mount this instead of
// calling Run.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// chatProviderAdapter wraps a karte.ChatProvider to satisfy llm.Provider.
// It converts the public request type to the internal one at the boundary.
type chatProviderAdapter struct {
	p ChatProvider
}

func (a *chatProviderAdapter) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	messages := make([]ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ChatMessage{Role: m.Role, Content: m.Content}
	}
	return a.p.Chat(ctx, ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		JSONMode:    req.JSONMode,
	})
}

// caseHookAdapter wraps a karte.CaseHook to satisfy jobs.CaseHook.
// It converts internal model types to public karte types at the boundary.
type caseHookAdapter struct {
	hook CaseHook
}

func (a *caseHookAdapter) OnCaseCompleted(ctx context.Context, c model.BoardCase, summary string) error {
	return a.hook.OnCaseCompleted(ctx, toPublicCaseEvent(c, CaseCompleted, summary, ""))
}

func (a *caseHookAdapter) OnCaseFailed(ctx context.Context, c model.BoardCase, reason string) error {
	return a.hook.OnCaseFailed(ctx, toPublicCaseEvent(c, CaseFailed, "", reason))
}

// ── Type converters ────────────────────────────────────────────────────────────

// toPublicCaseEvent converts an internal model.BoardCase to the public
// karte.CaseEvent. Lives here because this is the only file that imports
// both sides of the boundary. The case arg is the claimed snapshot, so the
// event timestamp is taken at conversion rather than from the row.
func toPublicCaseEvent(c model.BoardCase, status CaseStatus, summary, reason string) CaseEvent {
	return CaseEvent{
		CaseID:     c.ID,
		HospitalID: c.HospitalID,
		PatientID:  c.PatientID,
		Status:     status,
		Summary:    summary,
		Error:      reason,
		OccurredAt: time.Now().UTC(),
	}
}
