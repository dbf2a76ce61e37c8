package karte

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest describes a single chat completion call. TopP of zero leaves
// the provider default in place. JSONMode asks the provider to constrain
// output to a JSON object — external providers that cannot guarantee this
// may return prose-wrapped JSON; the pipeline tolerates fenced payloads.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	TopP        float64
	MaxTokens   int
	JSONMode    bool
}

// CaseStatus is the terminal state a case event reports.
type CaseStatus string

const (
	CaseCompleted CaseStatus = "completed"
	CaseFailed    CaseStatus = "failed"
)

// CaseEvent is the public representation of a tumor board case reaching a
// terminal state. It is a curated view of the internal case row for use in
// extension interfaces. No internal package imports — safe to use from
// outside the module.
type CaseEvent struct {
	CaseID     uuid.UUID
	HospitalID uuid.UUID
	PatientID  uuid.UUID
	Status     CaseStatus
	// Summary is the executive summary of the board run. Set only on
	// completed events.
	Summary string
	// Error is the stored failure reason. Set only on failed events.
	Error      string
	OccurredAt time.Time
}
