package tumorboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chartmed-ai/karte/internal/model"
)

// The orchestrator reports agent execution to Azure AI Agent Service for
// scheduling and audit. It never sends report text or findings and it never
// blocks a run: every call degrades to local-only on failure.

const (
	orchestratorProbeTimeout = 10 * time.Second
	orchestratorLogTimeout   = 5 * time.Second
)

var specialistKeys = []string{"radiology", "pathology", "clinical", "research"}

// OrchestratorConfig wires the Azure AI Agent Service connection.
type OrchestratorConfig struct {
	Endpoint string
	Key      string
	Enabled  bool
}

type Orchestrator struct {
	endpoint string
	key      string
	enabled  bool
	client   *http.Client
	logger   *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		key:      cfg.Key,
		enabled:  cfg.Enabled,
		client:   &http.Client{},
		logger:   logger,
	}
}

// Enabled reports whether the adapter is configured well enough to try.
// Placeholder values shorter than real endpoints or keys do not count.
func (o *Orchestrator) Enabled() bool {
	if o == nil {
		return false
	}
	return o.enabled && len(o.endpoint) > 10 && len(o.key) > 10
}

// Status describes the adapter configuration for the diagnostics endpoint.
func (o *Orchestrator) Status() map[string]any {
	preview := "NOT SET"
	if o.endpoint != "" {
		preview = truncateWithEllipsis(o.endpoint, 40)
	}
	mode := "local"
	if o.Enabled() {
		mode = "azure-ai-agent-service"
	}
	return map[string]any{
		"enabled":             o.Enabled(),
		"endpoint_configured": o.endpoint != "",
		"endpoint_preview":    preview,
		"key_configured":      o.key != "",
		"mode":                mode,
		"governance_note":     "External orchestration is non-clinical. Medical reasoning stays in Karte.",
	}
}

// StartSession probes the service and opens a tracked run. It returns nil
// when orchestration is disabled or the service is unreachable; a nil
// session is valid and records nothing.
func (o *Orchestrator) StartSession(ctx context.Context) *Session {
	if !o.Enabled() {
		return nil
	}
	s := &Session{
		o:       o,
		id:      fmt.Sprintf("karte-tb-%d", time.Now().Unix()),
		started: time.Now(),
		results: make(map[string]AgentResult),
	}
	if !o.checkConnection(ctx, s.id) {
		o.logger.Warn("orchestration service unreachable, continuing local-only", "endpoint", truncateWithEllipsis(o.endpoint, 50))
		return nil
	}
	o.logger.Info("orchestration session started", "session_id", s.id)
	return s
}

// checkConnection verifies the endpoint answers at all. Auth errors still
// prove reachability, so 401 and 403 pass.
func (o *Orchestrator) checkConnection(ctx context.Context, sessionID string) bool {
	ctx, cancel := context.WithTimeout(ctx, orchestratorProbeTimeout)
	defer cancel()

	url := o.endpoint + "/openai/deployments?api-version=2024-02-15-preview"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	o.setHeaders(req, sessionID)

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// logEvent posts one governance event. Failures are swallowed: audit must
// never break a board run.
func (o *Orchestrator) logEvent(ctx context.Context, sessionID string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, orchestratorLogTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/karte/agents/log", bytes.NewReader(body))
	if err != nil {
		return
	}
	o.setHeaders(req, sessionID)

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Debug("orchestration event dropped", "event", payload["event"], "error", err)
		return
	}
	resp.Body.Close()
}

func (o *Orchestrator) setHeaders(req *http.Request, sessionID string) {
	req.Header.Set("api-key", o.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ms-orchestration-source", "karte-tumor-board")
	req.Header.Set("x-ms-session-id", sessionID)
}

// AgentResult is one agent's execution record in a session.
type AgentResult struct {
	AgentID              string  `json:"agent_id"`
	AgentName            string  `json:"agent_name"`
	Status               string  `json:"status"`
	Error                string  `json:"error,omitempty"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

// OrchestrationResult aggregates a finished session.
type OrchestrationResult struct {
	OrchestrationID           string                 `json:"orchestration_id"`
	Status                    string                 `json:"status"`
	AgentsCompleted           []string               `json:"agents_completed"`
	AgentsFailed              []string               `json:"agents_failed"`
	Results                   map[string]AgentResult `json:"results"`
	TotalExecutionTimeSeconds float64                `json:"total_execution_time_seconds"`
	OrchestratedBy            string                 `json:"orchestrated_by"`
}

// Session tracks one orchestrated board run.
type Session struct {
	o       *Orchestrator
	id      string
	started time.Time

	mu      sync.Mutex
	results map[string]AgentResult
}

// AgentStarted reports that a specialist is about to run.
func (s *Session) AgentStarted(ctx context.Context, key, name string) {
	if s == nil {
		return
	}
	s.o.logEvent(ctx, s.id, map[string]any{
		"event":      "agent_start",
		"agent_id":   key + "-agent",
		"agent_name": name,
		"session_id": s.id,
		"timestamp":  time.Now().Unix(),
	})
}

// AgentFinished records a specialist's outcome and reports it. ctxErr is
// the agent context's error after the call, which distinguishes timeouts
// from model failures.
func (s *Session) AgentFinished(ctx context.Context, key, name string, out model.AgentOutput, elapsed time.Duration, ctxErr error) {
	if s == nil {
		return
	}

	res := AgentResult{
		AgentID:              key + "-agent",
		AgentName:            name,
		Status:               "success",
		ExecutionTimeSeconds: math.Round(elapsed.Seconds()*100) / 100,
	}
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		res.Status = "timeout"
		res.Error = fmt.Sprintf("Agent timed out after %.0fs", elapsed.Seconds())
	case !out.Success:
		res.Status = "failed"
		res.Error = deref(out.Error)
	}

	s.mu.Lock()
	s.results[key] = res
	s.mu.Unlock()

	payload := map[string]any{
		"event":                  "agent_complete",
		"agent_id":               res.AgentID,
		"agent_name":             name,
		"session_id":             s.id,
		"status":                 res.Status,
		"execution_time_seconds": res.ExecutionTimeSeconds,
		"timestamp":              time.Now().Unix(),
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	s.o.logEvent(ctx, s.id, payload)
}

// Result aggregates the session: completed when no tracked agent failed,
// partial when some succeeded, failed otherwise.
func (s *Session) Result() OrchestrationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := []string{}
	failed := []string{}
	for _, key := range specialistKeys {
		res, ok := s.results[key]
		if !ok {
			continue
		}
		if res.Status == "success" {
			completed = append(completed, key)
		} else {
			failed = append(failed, key)
		}
	}

	status := "failed"
	switch {
	case len(failed) == 0:
		status = "completed"
	case len(completed) > 0:
		status = "partial"
	}

	results := make(map[string]AgentResult, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}

	return OrchestrationResult{
		OrchestrationID:           "orch-" + s.id,
		Status:                    status,
		AgentsCompleted:           completed,
		AgentsFailed:              failed,
		Results:                   results,
		TotalExecutionTimeSeconds: math.Round(time.Since(s.started).Seconds()*100) / 100,
		OrchestratedBy:            "azure-ai-agent-service",
	}
}

func truncateWithEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
