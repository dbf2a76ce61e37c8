package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BoardCase is a tumor board case for one patient. The notes fields hold
// clinician input gathered during board review; AITumorBoardJSON holds the
// cleaned multi-agent view once processing completes. Deleted cases stay in
// the table with status "deleted" and the deletion audit fields set.
type BoardCase struct {
	ID                    uuid.UUID       `json:"id"`
	PatientID             uuid.UUID       `json:"patientId"`
	HospitalID            uuid.UUID       `json:"hospitalId"`
	Status                JobStatus       `json:"status"`
	AISummary             *string         `json:"aiSummary,omitempty"`
	RadiologyNotes        *string         `json:"radiologyNotes,omitempty"`
	PathologyNotes        *string         `json:"pathologyNotes,omitempty"`
	OncologyNotes         *string         `json:"oncologyNotes,omitempty"`
	GuidelinesRef         *string         `json:"guidelinesRef,omitempty"`
	Recommendations       *string         `json:"recommendations,omitempty"`
	FinalDecision         *string         `json:"finalDecision,omitempty"`
	ProgressPercent       int             `json:"progressPercent"`
	ProgressMessage       *string         `json:"progressMessage,omitempty"`
	ErrorMessage          *string         `json:"errorMessage,omitempty"`
	AITumorBoardJSON      json.RawMessage `json:"aiTumorBoardJson,omitempty"`
	ProcessingStartedAt   *time.Time      `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt *time.Time      `json:"processingCompletedAt,omitempty"`
	DeletedAt             *time.Time      `json:"deletedAt,omitempty"`
	DeletedBy             *string         `json:"deletedBy,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// HasAIData reports whether a processed view is stored for the case.
func (c BoardCase) HasAIData() bool {
	return len(c.AITumorBoardJSON) > 0
}

// BoardCaseWithPatient is a case row joined with its patient, as returned
// by the list query.
type BoardCaseWithPatient struct {
	BoardCase
	Patient Patient `json:"patient"`
}
