package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Hospital is a registered hospital account. PasswordHash never leaves
// the server.
type Hospital struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	RegistrationNumber string    `json:"registrationNumber"`
	Address            *string   `json:"address,omitempty"`
	Phone              *string   `json:"phone,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// PatientStatus values used by the dashboard. Free-form strings are
// accepted on write; these are the ones the UI understands.
const (
	PatientStatusActive    = "active"
	PatientStatusRemission = "remission"
	PatientStatusDeceased  = "deceased"
)

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

// ReportCategory values accepted on upload.
const (
	ReportCategoryImaging   = "imaging"
	ReportCategoryPathology = "pathology"
	ReportCategoryLab       = "lab"
	ReportCategoryClinical  = "clinical"
)

// ValidReportCategory reports whether c is an accepted upload category.
func ValidReportCategory(c string) bool {
	switch c {
	case ReportCategoryImaging, ReportCategoryPathology, ReportCategoryLab, ReportCategoryClinical:
		return true
	}
	return false
}

// CategoryLabel returns the display label for a report category.
func CategoryLabel(c string) string {
	switch c {
	case ReportCategoryImaging:
		return "Imaging"
	case ReportCategoryPathology:
		return "Pathology"
	case ReportCategoryLab:
		return "Lab"
	case ReportCategoryClinical:
		return "Clinical"
	}
	return "Other"
}

// FileTypeFor classifies an uploaded file by its extension.
func FileTypeFor(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return "PDF"
	case "dcm", "dicom":
		return "DICOM"
	case "jpg", "jpeg", "png":
		return "Image"
	}
	return "Document"
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

// ReportWithPatient is a report row joined with its owning patient, used
// by the recent uploads feed.
type ReportWithPatient struct {
	Report
	PatientName string `json:"patientName"`
	PatientRef  string `json:"-"`
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

// Activity log actions recorded by the API handlers and the worker.
const (
	ActionPatientAdd       = "patient_add"
	ActionPatientUpdate    = "patient_update"
	ActionPatientDelete    = "patient_delete"
	ActionReportUpload     = "report_upload"
	ActionReportDelete     = "report_delete"
	ActionAnalysisSubmit   = "analysis_submit"
	ActionAnalysisCancel   = "analysis_cancel"
	ActionTumorBoardCreate = "tumor_board_create"
	ActionTumorBoardUpdate = "tumor_board_update"
	ActionTumorBoardSubmit = "tumor_board_submit"
	ActionTumorBoardRetry  = "tumor_board_retry"
	ActionTumorBoardCancel = "tumor_board_cancel"
	ActionTumorBoardDelete = "tumor_board_delete"

	// Recorded by the background worker rather than a handler.
	ActionTumorBoardAIStart    = "tumor_board_ai_start"
	ActionTumorBoardAIComplete = "tumor_board_ai_complete"
)
