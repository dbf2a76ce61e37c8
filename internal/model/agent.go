package model

import "strings"

// AgentType identifies a specialized tumor board agent.
type AgentType string

const (
	AgentRadiology   AgentType = "radiology"
	AgentPathology   AgentType = "pathology"
	AgentClinical    AgentType = "clinical"
	AgentResearch    AgentType = "research"
	AgentCoordinator AgentType = "coordinator"
	AgentUnknown     AgentType = "unknown"
)

// ConfidenceLevel grades an agent output. "none" means the agent could not
// determine anything from the data it was given.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceNone   ConfidenceLevel = "none"
)

// SeverityLevel grades a finding or the priority of a recommendation.
type SeverityLevel string

const (
	SeverityCritical      SeverityLevel = "critical"
	SeverityHigh          SeverityLevel = "high"
	SeverityModerate      SeverityLevel = "moderate"
	SeverityLow           SeverityLevel = "low"
	SeverityInformational SeverityLevel = "info"
)

// ParseSeverity maps a model-produced severity string to a SeverityLevel,
// defaulting to moderate for anything unrecognized.
func ParseSeverity(s string) SeverityLevel {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high", "severe":
		// Models often grade symptoms as "severe" rather than "high".
		return SeverityHigh
	case "moderate":
		return SeverityModerate
	case "low":
		return SeverityLow
	case "info":
		return SeverityInformational
	}
	return SeverityModerate
}

// ParseConfidence maps a model-produced confidence string to a
// ConfidenceLevel, defaulting to medium for anything unrecognized.
func ParseConfidence(s string) ConfidenceLevel {
	switch strings.ToLower(s) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	}
	return ConfidenceMedium
}

// AgentContext is the input handed to each specialized agent.
type AgentContext struct {
	PatientID         string         `json:"patient_id"`
	PatientName       string         `json:"patient_name,omitempty"`
	PatientAge        string         `json:"patient_age,omitempty"`
	PatientGender     string         `json:"patient_gender,omitempty"`
	ReportText        string         `json:"report_text"`
	ReportType        string         `json:"report_type,omitempty"`
	ReportDate        string         `json:"report_date,omitempty"`
	OCRConfidence     float64        `json:"ocr_confidence,omitempty"`
	AdditionalContext map[string]any `json:"additional_context,omitempty"`
}

// SpecialistFinding is a single clinical finding produced by an agent.
type SpecialistFinding struct {
	Category       string          `json:"category"`
	Name           string          `json:"name"`
	Value          string          `json:"value"`
	Unit           *string         `json:"unit"`
	Severity       SeverityLevel   `json:"severity"`
	Confidence     ConfidenceLevel `json:"confidence"`
	SourcePage     *int            `json:"source_page"`
	SourceReport   *string         `json:"source_report"`
	Interpretation *string         `json:"interpretation"`
	RawText        *string         `json:"raw_text"`
}

// Recommendation is a clinical recommendation produced by an agent.
type Recommendation struct {
	Category      string        `json:"category"`
	Text          string        `json:"text"`
	Priority      SeverityLevel `json:"priority"`
	Rationale     *string       `json:"rationale"`
	EvidenceLevel *string       `json:"evidence_level"`
	Source        *string       `json:"source"`
}

// AgentOutput is the standardized result from any tumor board agent.
// A failed agent carries Error and confidence "none" but is still a valid
// output; downstream synthesis skips unsuccessful outputs.
type AgentOutput struct {
	AgentType        AgentType           `json:"agent_type"`
	AgentName        string              `json:"agent_name"`
	Success          bool                `json:"success"`
	Error            *string             `json:"error"`
	Confidence       ConfidenceLevel     `json:"confidence"`
	Findings         []SpecialistFinding `json:"findings"`
	Recommendations  []Recommendation    `json:"recommendations"`
	Summary          string              `json:"summary"`
	Warnings         []string            `json:"warnings"`
	Conflicts        []Conflict          `json:"conflicts,omitempty"`
	Staging          *ViewStaging        `json:"staging_summary,omitempty"`
	Timestamp        string              `json:"timestamp"`
	SourcePatientID  string              `json:"source_patient_id"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	SubAgentOutputs  map[string]any      `json:"sub_agent_outputs,omitempty"`
}
