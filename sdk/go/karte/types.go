package karte

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an analysis job or a tumor board
// case. Analysis jobs are born queued; board cases are born draft.
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

// Pseudo-statuses returned by the analysis endpoints but never stored on
// a job row: "idle" when a patient has no analysis history, "no_reports"
// when a submission found nothing to analyze.
const (
	AnalysisStatusIdle      = "idle"
	AnalysisStatusNoReports = "no_reports"
)

// Report categories accepted on upload.
const (
	CategoryImaging   = "imaging"
	CategoryPathology = "pathology"
	CategoryLab       = "lab"
	CategoryClinical  = "clinical"
)

// Patient statuses understood by the dashboard. Free-form strings are
// accepted on write.
const (
	PatientStatusActive    = "active"
	PatientStatusRemission = "remission"
	PatientStatusDeceased  = "deceased"
)

// Hospital is a registered hospital account.
type Hospital struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	RegistrationNumber string    `json:"registrationNumber"`
	Address            *string   `json:"address,omitempty"`
	Phone              *string   `json:"phone,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Patient is a patient record owned by a hospital. PatientID is the
// hospital-assigned identifier shown on documents; ID is the row key.
type Patient struct {
	ID         uuid.UUID `json:"id"`
	PatientID  string    `json:"patientId"`
	Name       string    `json:"name"`
	Age        *int      `json:"age,omitempty"`
	Gender     *string   `json:"gender,omitempty"`
	CancerType *string   `json:"cancerType,omitempty"`
	Status     string    `json:"status"`
	HospitalID uuid.UUID `json:"hospitalId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Report is an uploaded report file attached to a patient.
type Report struct {
	ID         uuid.UUID `json:"id"`
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	FileSize   int64     `json:"fileSize"`
	FileType   string    `json:"fileType"`
	Category   string    `json:"category"`
	Status     string    `json:"status"`
	PatientID  uuid.UUID `json:"patientId"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// RecentUpload is one row of the dashboard's latest-uploads feed. FileType
// carries the category display label and Timestamp a relative age
// ("2 min ago").
type RecentUpload struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patientName"`
	PatientID   string    `json:"patientId"`
	FileType    string    `json:"fileType"`
	Category    string    `json:"category"`
	Timestamp   string    `json:"timestamp"`
	Status      string    `json:"status"`
}

// ActivityEntry is one row of the hospital's audit trail.
type ActivityEntry struct {
	ID          uuid.UUID `json:"id"`
	HospitalID  uuid.UUID `json:"hospitalId"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entityType"`
	EntityID    *string   `json:"entityId,omitempty"`
	Description string    `json:"description"`
	Metadata    *string   `json:"metadata,omitempty"`
	PerformedBy *string   `json:"performedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// --- Request types ---

// SignupRequest is the input for Client.Signup.
type SignupRequest struct {
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Password           string  `json:"password"`
	RegistrationNumber string  `json:"registrationNumber"`
	Address            *string `json:"address,omitempty"`
	Phone              *string `json:"phone,omitempty"`
}

// CreatePatientRequest is the input for Client.CreatePatient.
type CreatePatientRequest struct {
	PatientID  string  `json:"patientId"`
	Name       string  `json:"name"`
	Age        *int    `json:"age,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	CancerType *string `json:"cancerType,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// UpdatePatientRequest is the input for Client.UpdatePatient.
// Nil fields are left unchanged.
type UpdatePatientRequest struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	CancerType *string `json:"cancerType,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// UpdateCaseRequest is the input for Client.UpdateCase.
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

// --- Response types ---

// AuthResponse is the output of Client.Signup and Client.Signin.
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	Hospital    Hospital `json:"hospital"`
}

// PatientListResponse is the output of Client.ListPatients.
type PatientListResponse struct {
	Patients []Patient `json:"patients"`
	Total    int       `json:"total"`
}

// PatientDetailResponse is the output of Client.GetPatient: the patient
// row together with its reports and analysis history.
type PatientDetailResponse struct {
	Patient
	Reports      []Report            `json:"reports"`
	AnalysisJobs []JobStatusResponse `json:"analysisJobs"`
}

// UploadResponse is the output of Client.UploadReports.
type UploadResponse struct {
	Message  string   `json:"message"`
	Uploaded int      `json:"uploaded"`
	Reports  []Report `json:"reports"`
}

// JobStatusResponse is the standardized analysis job status shape, returned
// by submit, job lookup and patient status calls. JobID is null for the
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

// CancelAnalysisResponse is the output of Client.CancelAnalysis.
type CancelAnalysisResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CaseResponse is a tumor board case as returned by the case endpoints.
// Patient is attached when the row was loaded with its patient.
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

// CaseStatusResponse is the output of Client.CaseStatus.
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

// CaseActionResponse is the output of the submit, retry, cancel and delete
// actions on a case.
type CaseActionResponse struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
	Warning *string   `json:"warning,omitempty"`
	CaseID  uuid.UUID `json:"caseId"`
}

// CasePatientRef is the patient block embedded in a case AI view.
type CasePatientRef struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PatientID  string    `json:"patientId"`
	CancerType *string   `json:"cancerType"`
}

// CaseViewResponse is the output of Client.CaseAIView. TumorBoardView
// carries the stored multi-agent view verbatim; Message is set only on
// the "no_data" variant.
type CaseViewResponse struct {
	Status         string          `json:"status"`
	CaseID         uuid.UUID       `json:"case_id"`
	Patient        *CasePatientRef `json:"patient,omitempty"`
	TumorBoardView json.RawMessage `json:"tumor_board_view,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// ActivityListResponse is the output of Client.ListActivity.
type ActivityListResponse struct {
	Activities []ActivityEntry `json:"activities"`
	Total      int             `json:"total"`
}

// DashboardStats is the output of Client.DashboardStats.
type DashboardStats struct {
	TotalPatients  int             `json:"totalPatients"`
	TotalReports   int             `json:"totalReports"`
	TotalAnalyses  int             `json:"totalAnalyses"`
	ActiveCases    int             `json:"activeCases"`
	RecentActivity []ActivityEntry `json:"recentActivity"`
}

// HealthResponse is the output of Client.Health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Worker   string `json:"worker"`
	Uptime   int64  `json:"uptime_seconds"`
}
