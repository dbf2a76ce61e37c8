package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// Field length limits for caller-controlled text. These keep a single
// oversized field from filling Postgres TEXT columns with garbage.
const (
	MaxNameLen  = 200
	MaxEmailLen = 254
	MaxNotesLen = 64 * 1024 // 64 KB
)

// SignupRequest is the request body for POST /v1/auth/signup.
type SignupRequest struct {
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Password           string  `json:"password"`
	RegistrationNumber string  `json:"registrationNumber"`
	Address            *string `json:"address,omitempty"`
	Phone              *string `json:"phone,omitempty"`
}

// SigninRequest is the request body for POST /v1/auth/signin.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the response for signup and signin.
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	Hospital    Hospital `json:"hospital"`
}

// CreatePatientRequest is the request body for POST /v1/patients.
type CreatePatientRequest struct {
	PatientID  string  `json:"patientId"`
	Name       string  `json:"name"`
	Age        *int    `json:"age,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	CancerType *string `json:"cancerType,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// UpdatePatientRequest is the request body for PATCH /v1/patients/{id}.
// Nil fields are left unchanged.
type UpdatePatientRequest struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	CancerType *string `json:"cancerType,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// Empty reports whether the request carries no changes.
func (r UpdatePatientRequest) Empty() bool {
	return r.Name == nil && r.Age == nil && r.Gender == nil &&
		r.CancerType == nil && r.Status == nil
}

// PatientListResponse is the response for GET /v1/patients.
type PatientListResponse struct {
	Patients []Patient `json:"patients"`
	Total    int       `json:"total"`
}

// PatientDetailResponse is the response for GET /v1/patients/{id}.
type PatientDetailResponse struct {
	Patient
	Reports      []Report            `json:"reports"`
	AnalysisJobs []JobStatusResponse `json:"analysisJobs"`
}

// UploadResponse is the response for POST /v1/patients/{id}/reports.
type UploadResponse struct {
	Message  string   `json:"message"`
	Uploaded int      `json:"uploaded"`
	Reports  []Report `json:"reports"`
}

// RecentUpload is one row of GET /v1/reports/recent. FileType carries the
// category display label and Timestamp a relative age ("2 min ago"), which
// is what the dashboard feed renders directly.
type RecentUpload struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patientName"`
	PatientID   string    `json:"patientId"`
	FileType    string    `json:"fileType"`
	Category    string    `json:"category"`
	Timestamp   string    `json:"timestamp"`
	Status      string    `json:"status"`
}

// Pseudo-statuses used only on the wire, never stored on a job row:
// "idle" when a patient has no analysis history, "no_reports" when a
// submission found nothing to analyze.
const (
	AnalysisStatusIdle      = "idle"
	AnalysisStatusNoReports = "no_reports"
)

// JobStatusResponse is the standardized analysis job status shape, returned
// by submit, job lookup and patient status endpoints. JobID is null for the
// "no_reports" and "idle" variants. Result is set only for completed jobs.
type JobStatusResponse struct {
	JobID            *uuid.UUID      `json:"jobId"`
	Status           string          `json:"status"`
	GeneratedAt      *time.Time      `json:"generatedAt"`
	StartedAt        *time.Time      `json:"startedAt"`
	CompletedAt      *time.Time      `json:"completedAt"`
	ReportCount      int             `json:"reportCount"`
	EstimatedSeconds *int            `json:"estimatedSeconds"`
	ElapsedSeconds   *int            `json:"elapsedSeconds"`
	Result           json.RawMessage `json:"result"`
	Error            *string         `json:"error"`
}

// NewJobStatusResponse builds the wire shape from a job row. Elapsed time
// runs live until the job reaches a terminal state; failed jobs surface the
// stored error message, falling back to the error recorded in the result
// payload.
func NewJobStatusResponse(job AnalysisJob, now time.Time) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:            &job.ID,
		Status:           string(job.Status),
		GeneratedAt:      &job.GeneratedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		ReportCount:      job.ReportCount,
		EstimatedSeconds: job.EstimatedSeconds,
	}
	if job.StartedAt != nil {
		end := now
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		elapsed := int(end.Sub(*job.StartedAt).Seconds())
		if elapsed < 0 {
			elapsed = 0
		}
		resp.ElapsedSeconds = &elapsed
	}
	if job.Status == JobStatusCompleted && len(job.Result) > 0 {
		resp.Result = job.Result
	}
	if job.ErrorMessage != nil {
		resp.Error = job.ErrorMessage
	} else if job.Status == JobStatusFailed && len(job.Result) > 0 {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(job.Result, &payload); err == nil && payload.Error != "" {
			resp.Error = &payload.Error
		}
	}
	return resp
}

// CancelAnalysisResponse is the response for POST /v1/patients/{id}/analysis/cancel.
type CancelAnalysisResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateCaseRequest is the request body for POST /v1/cases.
type CreateCaseRequest struct {
	PatientID string `json:"patientId"`
}

// UpdateCaseRequest is the request body for PUT /v1/cases/{id}.
// Nil fields are left unchanged.
type UpdateCaseRequest struct {
	RadiologyNotes  *string `json:"radiologyNotes,omitempty"`
	PathologyNotes  *string `json:"pathologyNotes,omitempty"`
	OncologyNotes   *string `json:"oncologyNotes,omitempty"`
	GuidelinesRef   *string `json:"guidelinesRef,omitempty"`
	Recommendations *string `json:"recommendations,omitempty"`
	FinalDecision   *string `json:"finalDecision,omitempty"`
	Status          *string `json:"status,omitempty"`
}

// Empty reports whether the update carries no fields at all.
func (r UpdateCaseRequest) Empty() bool {
	return r.RadiologyNotes == nil && r.PathologyNotes == nil &&
		r.OncologyNotes == nil && r.GuidelinesRef == nil &&
		r.Recommendations == nil && r.FinalDecision == nil && r.Status == nil
}

// CaseResponse is a tumor board case as returned by the case CRUD
// endpoints. Patient is attached when the row was loaded with its patient.
type CaseResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patientId"`
	HospitalID      uuid.UUID `json:"hospitalId"`
	AISummary       *string   `json:"aiSummary"`
	RadiologyNotes  *string   `json:"radiologyNotes"`
	PathologyNotes  *string   `json:"pathologyNotes"`
	OncologyNotes   *string   `json:"oncologyNotes"`
	GuidelinesRef   *string   `json:"guidelinesRef"`
	Recommendations *string   `json:"recommendations"`
	FinalDecision   *string   `json:"finalDecision"`
	Status          JobStatus `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Patient         *Patient  `json:"patient,omitempty"`
}

// NewCaseResponse builds the wire shape from a case row.
func NewCaseResponse(c BoardCase, p *Patient) CaseResponse {
	return CaseResponse{
		ID:              c.ID,
		PatientID:       c.PatientID,
		HospitalID:      c.HospitalID,
		AISummary:       c.AISummary,
		RadiologyNotes:  c.RadiologyNotes,
		PathologyNotes:  c.PathologyNotes,
		OncologyNotes:   c.OncologyNotes,
		GuidelinesRef:   c.GuidelinesRef,
		Recommendations: c.Recommendations,
		FinalDecision:   c.FinalDecision,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		Patient:         p,
	}
}

// CaseStatusResponse is the response for GET /v1/cases/{id}/status.
type CaseStatusResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Status                JobStatus  `json:"status"`
	ProgressPercent       int        `json:"progressPercent"`
	ProgressMessage       *string    `json:"progressMessage"`
	ErrorMessage          *string    `json:"errorMessage"`
	ProcessingStartedAt   *time.Time `json:"processingStartedAt"`
	ProcessingCompletedAt *time.Time `json:"processingCompletedAt"`
	PatientName           *string    `json:"patientName"`
	HasAIData             bool       `json:"hasAIData"`
}

// CaseActionResponse is the response for submit, retry, cancel and delete
// actions on a case.
type CaseActionResponse struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
	Warning *string   `json:"warning,omitempty"`
	CaseID  uuid.UUID `json:"caseId"`
}

// CasePatientRef is the patient block embedded in a case AI view response.
type CasePatientRef struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PatientID  string    `json:"patientId"`
	CancerType *string   `json:"cancerType"`
}

// CaseViewResponse is the response for GET /v1/cases/{id}/ai-view.
// TumorBoardView carries the stored view verbatim; Message is set only on
// the "no_data" variant.
type CaseViewResponse struct {
	Status         string          `json:"status"`
	CaseID         uuid.UUID       `json:"case_id"`
	Patient        *CasePatientRef `json:"patient,omitempty"`
	TumorBoardView json.RawMessage `json:"tumor_board_view,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// ActivityListResponse is the response for GET /v1/activity.
type ActivityListResponse struct {
	Activities []ActivityEntry `json:"activities"`
	Total      int             `json:"total"`
}

// DashboardStats is the response for GET /v1/activity/stats.
type DashboardStats struct {
	TotalPatients  int             `json:"totalPatients"`
	TotalReports   int             `json:"totalReports"`
	TotalAnalyses  int             `json:"totalAnalyses"`
	ActiveCases    int             `json:"activeCases"`
	RecentActivity []ActivityEntry `json:"recentActivity"`
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Worker   string `json:"worker"`
	Uptime   int64  `json:"uptime_seconds"`
}
