package karte

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	uploadDir       string
	logger          *slog.Logger
	version         string
	chatProvider    ChatProvider
	caseHooks       []CaseHook
	middlewares     []Middleware
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (KARTE_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithUploadDir overrides the report upload directory from config (KARTE_UPLOAD_DIR env var).
func WithUploadDir(dir string) Option {
	return func(o *resolvedOptions) { o.uploadDir = dir }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithChatProvider replaces the Groq chat gateway with an external
// implementation. Every pipeline stage (extraction, timeline, specialist
// agents) routes through it; use this to keep patient text on a
// hospital-hosted model. Only the last call wins.
func WithChatProvider(p ChatProvider) Option {
	return func(o *resolvedOptions) { o.chatProvider = p }
}

// WithCaseHook registers a hook to receive tumor board case terminal-state
// notifications. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithCaseHook(hook CaseHook) Option {
	return func(o *resolvedOptions) { o.caseHooks = append(o.caseHooks, hook) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run after
// the built-in migrations. Multiple filesystems may be registered; they are
// applied in registration order. File names must be unique across all
// registered filesystems — applied files are tracked by name.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
