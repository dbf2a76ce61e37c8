package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/jobs"
	"github.com/chartmed-ai/karte/internal/ratelimit"
	"github.com/chartmed-ai/karte/internal/signup"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/tumorboard"
)

// Server is the Karte HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Executor, Orchestrator, Owners,
// Limiter, MCPServer, UIFS, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	DB     *storage.DB
	JWTMgr *auth.JWTManager
	Signup *signup.Service
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Executor     *jobs.Executor
	Orchestrator *tumorboard.Orchestrator
	Owners       *authz.OwnerCache
	Limiter      ratelimit.Limiter
	MCPServer    *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSOrigins         []string
	UploadDir           string
	SecondsPerReport    int

	// Optional embedded assets.
	UIFS        fs.FS  // Embedded UI filesystem (SPA).
	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// Middlewares wrap the whole chain, first registered outermost. They
	// see every request including /healthz and /mcp.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Signup:              cfg.Signup,
		Executor:            cfg.Executor,
		Orchestrator:        cfg.Orchestrator,
		Owners:              cfg.Owners,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		UploadDir:           cfg.UploadDir,
		SecondsPerReport:    cfg.SecondsPerReport,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Auth endpoints are limited per client IP, everything else per
	// hospital. The prefixes keep the two budgets separate.
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc)
	apiRL := ratelimit.Middleware(cfg.Limiter, "api", hospitalKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Hospital accounts (no bearer token required).
	mux.Handle("POST /v1/auth/signup", authRL(http.HandlerFunc(h.HandleSignup)))
	mux.Handle("POST /v1/auth/signin", authRL(http.HandlerFunc(h.HandleSignin)))

	// Patients.
	mux.Handle("GET /v1/patients", apiRL(http.HandlerFunc(h.HandleListPatients)))
	mux.Handle("POST /v1/patients", apiRL(http.HandlerFunc(h.HandleCreatePatient)))
	mux.Handle("GET /v1/patients/{id}", apiRL(http.HandlerFunc(h.HandleGetPatient)))
	mux.Handle("PATCH /v1/patients/{id}", apiRL(http.HandlerFunc(h.HandleUpdatePatient)))
	mux.Handle("DELETE /v1/patients/{id}", apiRL(http.HandlerFunc(h.HandleDeletePatient)))

	// Report files.
	mux.Handle("POST /v1/patients/{id}/reports", apiRL(http.HandlerFunc(h.HandleUploadReports)))
	mux.Handle("GET /v1/patients/{id}/reports", apiRL(http.HandlerFunc(h.HandleListPatientReports)))
	mux.Handle("GET /v1/reports/recent", apiRL(http.HandlerFunc(h.HandleRecentReports)))
	mux.Handle("GET /v1/reports/{id}/download", apiRL(http.HandlerFunc(h.HandleDownloadReport)))
	mux.Handle("DELETE /v1/reports/{id}", apiRL(http.HandlerFunc(h.HandleDeleteReport)))

	// Document analysis jobs.
	mux.Handle("POST /v1/patients/{id}/analysis", apiRL(http.HandlerFunc(h.HandleSubmitAnalysis)))
	mux.Handle("GET /v1/patients/{id}/analysis", apiRL(http.HandlerFunc(h.HandlePatientAnalysisStatus)))
	mux.Handle("POST /v1/patients/{id}/analysis/cancel", apiRL(http.HandlerFunc(h.HandleCancelAnalysis)))
	mux.Handle("GET /v1/analysis/{job_id}", apiRL(http.HandlerFunc(h.HandleGetAnalysisJob)))

	// Tumor board cases.
	mux.Handle("GET /v1/cases", apiRL(http.HandlerFunc(h.HandleListCases)))
	mux.Handle("POST /v1/cases", apiRL(http.HandlerFunc(h.HandleCreateCase)))
	mux.Handle("GET /v1/cases/{id}", apiRL(http.HandlerFunc(h.HandleGetCase)))
	mux.Handle("PUT /v1/cases/{id}", apiRL(http.HandlerFunc(h.HandleUpdateCase)))
	mux.Handle("DELETE /v1/cases/{id}", apiRL(http.HandlerFunc(h.HandleDeleteCase)))
	mux.Handle("GET /v1/cases/{id}/status", apiRL(http.HandlerFunc(h.HandleCaseStatus)))
	mux.Handle("GET /v1/cases/{id}/ai-view", apiRL(http.HandlerFunc(h.HandleCaseAIView)))
	mux.Handle("POST /v1/cases/{id}/submit", apiRL(http.HandlerFunc(h.HandleSubmitCase)))
	mux.Handle("POST /v1/cases/{id}/retry", apiRL(http.HandlerFunc(h.HandleRetryCase)))
	mux.Handle("POST /v1/cases/{id}/cancel", apiRL(http.HandlerFunc(h.HandleCancelCase)))

	// Audit trail.
	mux.Handle("GET /v1/activity", apiRL(http.HandlerFunc(h.HandleListActivity)))
	mux.Handle("GET /v1/activity/stats", apiRL(http.HandlerFunc(h.HandleDashboardStats)))

	// External orchestration diagnostics.
	mux.Handle("GET /v1/orchestration/status", apiRL(http.HandlerFunc(h.HandleOrchestrationStatus)))

	// MCP StreamableHTTP transport (auth required via the middleware chain).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Operational endpoints (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /readyz", h.HandleReady)

	// SPA: serve the embedded UI at the root path.
	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// hospitalKeyFunc keys API rate limits by the authenticated hospital.
// Unauthenticated requests return "" and skip the limiter; they are about
// to be rejected by the auth middleware anyway.
func hospitalKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return "hospital:" + claims.HospitalID.String()
}

// Handlers returns the underlying Handlers for tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
