// Package tumorboard runs the multi-agent tumor board: specialist agents
// extract findings per discipline, a coordinator synthesizes them, and a
// post-processing pass cleans, validates and re-scores the result before it
// is stored on a case.
package tumorboard

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

const (
	agentTemperature = 0.1
	agentMaxTokens   = 2048
)

// Agent is one specialist on the tumor board. Analyze never returns an
// error: failures come back as an AgentOutput with Success false so a
// single bad agent cannot sink the whole board.
type Agent interface {
	Type() model.AgentType
	Name() string
	Analyze(ctx context.Context, ac model.AgentContext) model.AgentOutput
}

// agentCore holds the LLM plumbing shared by every specialist.
type agentCore struct {
	provider llm.Provider
	model    string
}

func (c agentCore) chat(ctx context.Context, prompt string) (string, error) {
	req := llm.UserPrompt(c.model, prompt)
	req.Temperature = agentTemperature
	req.MaxTokens = agentMaxTokens
	req.JSONMode = true
	return c.provider.Chat(ctx, req)
}

// parseMessages carries the per-agent wording for the two decode failure
// modes.
type parseMessages struct {
	badJSON string
	noJSON  string
}

var (
	parseLong  = parseMessages{badJSON: "Failed to parse JSON response", noJSON: "No valid JSON in response"}
	parseShort = parseMessages{badJSON: "Failed to parse JSON", noJSON: "No valid JSON"}
)

// decodeAgent recovers an agent's JSON payload from model output: the raw
// response first, then the widest brace-delimited span.
func decodeAgent(raw string, v any, msgs parseMessages) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	span, ok := llm.FirstJSONObject(raw)
	if !ok {
		return errors.New(msgs.noJSON)
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return errors.New(msgs.badJSON)
	}
	return nil
}

// stamp fills the bookkeeping fields every output carries, success or not.
func stamp(out model.AgentOutput, a Agent, ac model.AgentContext, started time.Time) model.AgentOutput {
	out.AgentType = a.Type()
	out.AgentName = a.Name()
	out.Timestamp = time.Now().UTC().Format(time.RFC3339)
	out.SourcePatientID = ac.PatientID
	out.ProcessingTimeMS = time.Since(started).Milliseconds()
	return out
}

// agentFailed shapes the output for an error that stopped the agent before
// it produced anything, usually the LLM call itself.
func agentFailed(a Agent, ac model.AgentContext, started time.Time, err error) model.AgentOutput {
	msg := err.Error()
	return stamp(model.AgentOutput{
		Success:         false,
		Error:           &msg,
		Confidence:      model.ConfidenceNone,
		Findings:        []model.SpecialistFinding{},
		Recommendations: []model.Recommendation{},
		Warnings:        []string{"Agent failed: " + msg},
	}, a, ac, started)
}

// parseFailed shapes the output for model output that held no usable JSON.
func parseFailed(a Agent, ac model.AgentContext, started time.Time, msg string) model.AgentOutput {
	errMsg := msg
	return stamp(model.AgentOutput{
		Success:         false,
		Error:           &errMsg,
		Confidence:      model.ConfidenceNone,
		Findings:        []model.SpecialistFinding{},
		Recommendations: []model.Recommendation{},
		Warnings:        []string{msg},
	}, a, ac, started)
}

// overallConfidence grades a successful run by how much of it the model was
// sure about: high when at least 70% of findings are high-confidence.
func overallConfidence(findings []model.SpecialistFinding) model.ConfidenceLevel {
	if len(findings) == 0 {
		return model.ConfidenceLow
	}
	high := 0
	for _, f := range findings {
		if f.Confidence == model.ConfidenceHigh {
			high++
		}
	}
	if float64(high) >= float64(len(findings))*0.7 {
		return model.ConfidenceHigh
	}
	return model.ConfidenceMedium
}

// flexString tolerates models emitting numbers, booleans or null where the
// schema asks for a string.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = flexString(t)
	case float64:
		*s = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = flexString(strconv.FormatBool(t))
	default:
		*s = ""
	}
	return nil
}

// or returns the value or def when empty.
func (s flexString) or(def string) string {
	if s == "" {
		return def
	}
	return string(s)
}

// ptr returns a pointer to the value, or nil when empty.
func (s flexString) ptr() *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

// recItem accepts the two shapes models produce in recommendation lists: a
// bare string or an object carrying text and rationale.
type recItem struct {
	Text      flexString `json:"text"`
	Rationale flexString `json:"rationale"`
}

func (r *recItem) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] != '{' {
		return json.Unmarshal(b, &r.Text)
	}
	type plain recItem
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = recItem(p)
	return nil
}

func stringsOf(xs []flexString) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		out = append(out, string(x))
	}
	return out
}

func strPtr(s string) *string { return &s }

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
