package model

// TumorBoardFinding is a finding as displayed in the tumor board view.
type TumorBoardFinding struct {
	Category       string  `json:"category"`
	Title          string  `json:"title"`
	Value          string  `json:"value"`
	Severity       string  `json:"severity"`
	SourceAgent    string  `json:"source_agent"`
	SourceReport   *string `json:"source_report"`
	Interpretation *string `json:"interpretation"`
}

// TumorBoardRecommendation is a recommendation as displayed in the tumor
// board view.
type TumorBoardRecommendation struct {
	Category      string  `json:"category"`
	Text          string  `json:"text"`
	Priority      string  `json:"priority"`
	Rationale     *string `json:"rationale"`
	EvidenceLevel *string `json:"evidence_level"`
}

// ClinicalTrial is a trial suggestion surfaced by the research agent.
type ClinicalTrial struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Eligibility string `json:"eligibility"`
}

// Conflict records disagreeing findings between agents.
type Conflict struct {
	Description    string   `json:"description"`
	AgentsInvolved []string `json:"agents_involved,omitempty"`
}

// ViewStaging groups the staging fields of a view. All fields stay nil
// unless staging was explicitly present in the source data.
type ViewStaging struct {
	ClinicalStage     *string `json:"clinical_stage"`
	PathologicalStage *string `json:"pathological_stage"`
	TNMStaging        *string `json:"tnm_staging"`
}

// ViewFindings groups findings by presentation category.
type ViewFindings struct {
	Imaging    []TumorBoardFinding `json:"imaging"`
	Pathology  []TumorBoardFinding `json:"pathology"`
	Clinical   []TumorBoardFinding `json:"clinical"`
	Biomarkers []TumorBoardFinding `json:"biomarkers"`
}

// ViewRecommendations groups recommendations by presentation category.
type ViewRecommendations struct {
	Treatment []TumorBoardRecommendation `json:"treatment"`
	Imaging   []TumorBoardRecommendation `json:"imaging"`
	Other     []TumorBoardRecommendation `json:"other"`
}

// OrchestrationInfo records how an agent run was supervised. Medical
// reasoning always happens locally; external orchestration only schedules
// and audits it.
type OrchestrationInfo struct {
	Mode            string   `json:"mode"`
	AzureEnabled    bool     `json:"azure_enabled"`
	AzureStatus     *string  `json:"azure_status"`
	AgentsCompleted []string `json:"azure_agents_completed,omitempty"`
	AgentsFailed    []string `json:"azure_agents_failed,omitempty"`
	GovernanceNote  string   `json:"governance_note"`
}

// TumorBoardView is the complete tumor board analysis stored on a case and
// rendered by the UI. The trailing block of fields is attached by the
// cleaning pass, never by the runner.
type TumorBoardView struct {
	PatientID        string  `json:"patient_id"`
	PatientName      string  `json:"patient_name"`
	PatientAge       *string `json:"patient_age"`
	PatientGender    *string `json:"patient_gender"`
	CaseID           string  `json:"case_id"`
	CaseDate         string  `json:"case_date"`
	GeneratedAt      string  `json:"generated_at"`
	ExecutiveSummary string  `json:"executive_summary"`

	Staging         ViewStaging         `json:"staging"`
	Findings        ViewFindings        `json:"findings"`
	Recommendations ViewRecommendations `json:"recommendations"`
	ClinicalTrials  []ClinicalTrial     `json:"clinical_trials"`

	Warnings  []string   `json:"warnings"`
	Conflicts []Conflict `json:"conflicts"`

	OverallConfidence     string   `json:"overall_confidence"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	AgentsUsed            []string `json:"agents_used"`

	Orchestration *OrchestrationInfo `json:"orchestration,omitempty"`

	// Attached by the cleaning pass.
	DetectedDiseaseCategory string   `json:"detected_disease_category,omitempty"`
	DiagnosticStatus        string   `json:"diagnostic_status,omitempty"`
	DataCompletenessScore   float64  `json:"data_completeness_score,omitempty"`
	MissingCriticalData     []string `json:"missing_critical_data,omitempty"`
	CaseComplexity          string   `json:"case_complexity,omitempty"`
	ConfidenceScore         float64  `json:"confidence_score,omitempty"`
	ConfidenceJustification string   `json:"confidence_justification,omitempty"`
}
