// Package jobs executes queued document analysis jobs and tumor board
// cases against the database queue.
//
// Work is claimed with FOR UPDATE SKIP LOCKED, so any number of processes
// can run executors against the same database and queued work survives a
// restart. Terminal status writes are guarded by the row's processing
// state: a cancellation that lands first always wins, and a finished run
// never overwrites it.
package jobs

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chartmed-ai/karte/internal/llm"
)

// groqUnavailableMessage replaces raw transport errors when the LLM
// gateway cannot be reached at all. Matches what the UI tells operators.
const groqUnavailableMessage = "AI service (Groq) error. Please check your GROQ_API_KEY in .env file."

// terminalWriteTimeout bounds the status write that records a job's
// outcome after its own context has been cancelled.
const terminalWriteTimeout = 10 * time.Second

// Semaphores is the process-wide concurrency budget shared by every job.
// LLM bounds concurrent gateway calls across all page extractions; OCR
// bounds concurrent recognition passes.
type Semaphores struct {
	LLM *semaphore.Weighted
	OCR *semaphore.Weighted
}

// NewSemaphores sizes the substrate. Non-positive values fall back to the
// defaults of two LLM calls and four OCR passes.
func NewSemaphores(maxLLM, maxOCR int) Semaphores {
	if maxLLM <= 0 {
		maxLLM = 2
	}
	if maxOCR <= 0 {
		maxOCR = 4
	}
	return Semaphores{
		LLM: semaphore.NewWeighted(int64(maxLLM)),
		OCR: semaphore.NewWeighted(int64(maxOCR)),
	}
}

// terminalCtx detaches from ctx's cancellation while keeping its values,
// so failure records still land when a run is cancelled mid-flight.
func terminalCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

// failureMessage turns a run error into the operator-facing message stored
// on the job row.
func failureMessage(err error) string {
	switch {
	case llm.IsUnavailable(err):
		return groqUnavailableMessage
	case errors.Is(err, context.Canceled):
		return "Analysis interrupted by worker shutdown"
	default:
		return err.Error()
	}
}

// dedupe removes duplicate strings preserving first-appearance order. The
// result is never nil.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
