package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/jobs"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/signup"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/tumorboard"
)

// Handlers bundles the HTTP handler methods and their dependencies.
type Handlers struct {
	db           *storage.DB
	signup       *signup.Service
	executor     *jobs.Executor
	orchestrator *tumorboard.Orchestrator
	owners       *authz.OwnerCache
	logger       *slog.Logger

	version             string
	uploadDir           string
	secondsPerReport    int
	maxRequestBodyBytes int64
	openapiSpec         []byte
	startedAt           time.Time
}

// HandlersDeps holds the dependencies for NewHandlers. Executor,
// Orchestrator, Owners and OpenAPISpec are optional.
type HandlersDeps struct {
	DB           *storage.DB
	Signup       *signup.Service
	Executor     *jobs.Executor
	Orchestrator *tumorboard.Orchestrator
	Owners       *authz.OwnerCache
	Logger       *slog.Logger

	Version             string
	UploadDir           string
	SecondsPerReport    int
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates the handler set with sane defaults for anything unset.
func NewHandlers(deps HandlersDeps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.UploadDir == "" {
		deps.UploadDir = "./uploads"
	}
	if deps.SecondsPerReport <= 0 {
		deps.SecondsPerReport = 300
	}
	if deps.MaxRequestBodyBytes <= 0 {
		deps.MaxRequestBodyBytes = 25 << 20
	}
	return &Handlers{
		db:                  deps.DB,
		signup:              deps.Signup,
		executor:            deps.Executor,
		orchestrator:        deps.Orchestrator,
		owners:              deps.Owners,
		logger:              deps.Logger,
		version:             deps.Version,
		uploadDir:           deps.UploadDir,
		secondsPerReport:    deps.SecondsPerReport,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
		openapiSpec:         deps.OpenAPISpec,
		startedAt:           time.Now(),
	}
}

// requireClaims returns the hospital claims or writes a 401. The auth
// middleware guarantees claims on /v1 routes, so a miss here means a
// routing bug rather than a client error.
func (h *Handlers) requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return nil, false
	}
	return claims, true
}

// HandleSignup handles POST /v1/auth/signup.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	resp, err := h.signup.Signup(r.Context(), req)
	switch {
	case errors.Is(err, signup.ErrDuplicateEmail), errors.Is(err, signup.ErrDuplicateRegNumber):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
		return
	case errors.Is(err, signup.ErrNameRequired), errors.Is(err, signup.ErrRegNumberRequired),
		errors.Is(err, signup.ErrInvalidEmail), errors.Is(err, signup.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	case err != nil:
		h.writeInternalError(w, r, "failed to create hospital account", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, resp)
}

// HandleSignin handles POST /v1/auth/signin.
func (h *Handlers) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req model.SigninRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	resp, err := h.signup.Signin(r.Context(), req)
	switch {
	case errors.Is(err, signup.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, err.Error())
		return
	case err != nil:
		h.writeInternalError(w, r, "failed to sign in", err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	worker := "disabled"
	if h.executor != nil {
		worker = "stopped"
		if h.executor.Running() {
			worker = "running"
		} else if status == "healthy" {
			status = "degraded"
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Worker:   worker,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleReady handles GET /readyz. Ready means the database answers; the
// worker is allowed to lag behind.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "postgres unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// --- Shared helpers ---

// parsePathUUID parses the named path wildcard as a UUID.
func parsePathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return uuid.Nil, errors.New(name + " is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name)
	}
	return id, nil
}

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 100

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// maxQueryOffset prevents absurdly large offsets that force expensive scans.
const maxQueryOffset = 100_000

// queryOffset returns a bounded, non-negative offset from query params.
func queryOffset(r *http.Request) int {
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		return 0
	}
	if offset > maxQueryOffset {
		return maxQueryOffset
	}
	return offset
}
