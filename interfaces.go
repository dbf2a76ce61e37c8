package karte

import (
	"context"
	"net/http"
)

// ChatProvider executes chat completions and returns the assistant content.
// When provided via WithChatProvider, replaces the built-in Groq gateway for
// every pipeline stage. Implementations must be safe for concurrent use —
// the extraction workers and board agents call it in parallel.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// CaseHook receives async notifications when a tumor board case reaches a
// terminal state. Multiple hooks may be registered via multiple WithCaseHook
// calls. Hook methods run in goroutines after the status is persisted — they
// must not block indefinitely. Failures are logged but never affect the case.
type CaseHook interface {
	OnCaseCompleted(ctx context.Context, event CaseEvent) error
	OnCaseFailed(ctx context.Context, event CaseEvent) error
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including
// /healthz and /mcp. Use for audit logging, IP allowlists, or cross-cutting
// headers. Multiple middlewares are applied in registration order
// (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
