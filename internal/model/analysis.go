// Package model defines the core domain types for Karte.
//
// Pipeline artifacts (OCR pages, page analyses, merged documents, tumor
// board views) keep snake_case JSON tags because they are stored verbatim
// as job results and re-served to clients. REST request/response types
// use the camelCase wire names of the HTTP API.
package model

import "time"

// PatientIdentity is the identification block extracted from a page.
// Fields are nil when the source text does not show them; extraction
// never infers a missing field.
type PatientIdentity struct {
	Name   *string `json:"name"`
	ID     *string `json:"id"`
	DOB    *string `json:"dob"`
	Gender *string `json:"gender"`
	Age    *string `json:"age"`
}

// ReportMetadata describes the report document itself.
type ReportMetadata struct {
	ReportType         *string `json:"report_type"`
	Date               *string `json:"date"`
	LabName            *string `json:"lab_name"`
	ReferringPhysician *string `json:"referring_physician"`
}

// MedicalFinding is a single test-result row extracted from a page.
// Value is always the verbatim printed value, never normalized.
type MedicalFinding struct {
	TestName       string  `json:"test_name"`
	Value          string  `json:"value"`
	Unit           *string `json:"unit"`
	ReferenceRange *string `json:"reference_range"`
	Status         *string `json:"status"`
	Interpretation *string `json:"interpretation"`
}

// MergedFinding is a finding annotated with the page it was taken from.
type MergedFinding struct {
	MedicalFinding
	SourcePage int `json:"source_page"`
}

// PageAnalysis is the structured extraction for a single page after both
// LLM stages and deterministic verification.
type PageAnalysis struct {
	PageNumber           int              `json:"page_number"`
	PatientIdentity      PatientIdentity  `json:"patient_identity"`
	ReportMetadata       ReportMetadata   `json:"report_metadata"`
	Findings             []MedicalFinding `json:"findings"`
	Diagnosis            *string          `json:"diagnosis"`
	Recommendations      []string         `json:"recommendations"`
	Warnings             []string         `json:"warnings"`
	ExtractionConfidence float64          `json:"extraction_confidence"`
	RawTextPreview       string           `json:"raw_text_preview"`
}

// DocumentAnalysis is the merged document-level view of all page analyses.
// AggregateConfidence is the mean of nonzero page confidences, rounded to
// two decimals.
type DocumentAnalysis struct {
	PatientIdentity     PatientIdentity `json:"patient_identity"`
	ReportMetadata      ReportMetadata  `json:"report_metadata"`
	AllFindings         []MergedFinding `json:"all_findings"`
	Diagnoses           []string        `json:"diagnoses"`
	Recommendations     []string        `json:"recommendations"`
	AggregateConfidence float64         `json:"aggregate_confidence"`
	MergeWarnings       []string        `json:"merge_warnings"`
}

// PageView is the per-page slice of a stored report result. Page warnings
// are hoisted to the report level, so the view omits them.
type PageView struct {
	Page                 int              `json:"page"`
	PatientIdentity      PatientIdentity  `json:"patient_identity"`
	ReportMetadata       ReportMetadata   `json:"report_metadata"`
	Findings             []MedicalFinding `json:"findings"`
	Diagnosis            *string          `json:"diagnosis"`
	Recommendations      []string         `json:"recommendations"`
	ExtractionConfidence float64          `json:"extraction_confidence"`
}

// ReportStatus is the per-report outcome inside an analysis result.
type ReportStatus string

const (
	ReportStatusSuccess ReportStatus = "success"
	ReportStatusWarning ReportStatus = "warning"
	ReportStatusSkipped ReportStatus = "skipped"
	ReportStatusError   ReportStatus = "error"
)

// ReportResult is the outcome of analyzing one uploaded report.
// Exactly one of Error, Reason or Message is set for non-success statuses;
// the extraction fields are populated only on success.
type ReportResult struct {
	FileName       string            `json:"file_name"`
	Status         ReportStatus      `json:"status"`
	Error          string            `json:"error,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Message        string            `json:"message,omitempty"`
	TotalPages     int               `json:"total_pages,omitempty"`
	SourceType     SourceType        `json:"source_type,omitempty"`
	Pages          []PageView        `json:"pages,omitempty"`
	MergedAnalysis *DocumentAnalysis `json:"merged_analysis,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// AnalysisResult is the stored payload of a completed analysis job.
type AnalysisResult struct {
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	Results               []ReportResult `json:"results"`
	PatientName           string         `json:"patient_name"`
	ReportCount           int            `json:"report_count"`
	CompletedAt           time.Time      `json:"completed_at"`
}
