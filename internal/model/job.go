package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an analysis job or a tumor
// board case. Analysis jobs are born queued; board cases are born draft.
type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusDeleted    JobStatus = "deleted"
)

// Terminal reports whether no worker will touch the record again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusDeleted:
		return true
	}
	return false
}

// Active reports whether the record is waiting for or undergoing processing.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

// CanTransition reports whether a status change is allowed by the state
// machine. Deleted is a sink. Completed and cancelled never move again;
// failed can only be requeued.
func CanTransition(from, to JobStatus) bool {
	if from == JobStatusDeleted {
		return false
	}
	if to == JobStatusDeleted {
		return true
	}
	switch to {
	case JobStatusQueued:
		return from == JobStatusDraft || from == JobStatusFailed
	case JobStatusProcessing:
		return from == JobStatusQueued
	case JobStatusCompleted, JobStatusFailed:
		return from == JobStatusProcessing
	case JobStatusCancelled:
		return from.Active()
	}
	return false
}

// AnalysisJob is one AI analysis request over a patient's uploaded reports.
// Result holds the AnalysisResult JSON once the job completes, or an
// {"error": ...} payload when it fails.
type AnalysisJob struct {
	ID               uuid.UUID       `json:"id"`
	PatientID        uuid.UUID       `json:"patientId"`
	HospitalID       uuid.UUID       `json:"hospitalId"`
	Status           JobStatus       `json:"status"`
	ReportCount      int             `json:"reportCount"`
	EstimatedSeconds *int            `json:"estimatedSeconds,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	ErrorMessage     *string         `json:"errorMessage,omitempty"`
	GeneratedAt      time.Time       `json:"generatedAt"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}
