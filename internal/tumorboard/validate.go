package tumorboard

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/chartmed-ai/karte/internal/model"
)

// Diagnostic readiness of a case, derived from the completeness score.
const (
	StatusWorkupRequired      = "diagnostic_workup_required"
	StatusPendingConfirmation = "pending_confirmation"
	StatusPreliminary         = "preliminary"
	StatusReadyForReview      = "ready_for_review"
)

// ValidationResult is the outcome of the clinical safety gate.
type ValidationResult struct {
	SafeForTreatmentRecs  bool     `json:"is_safe_for_treatment_recs"`
	DataCompletenessScore float64  `json:"data_completeness_score"`
	Status                string   `json:"status"`
	MissingCriticalData   []string `json:"missing_critical_data"`
	Warnings              []string `json:"warnings"`
	ComplexityOverride    string   `json:"complexity_override,omitempty"`
}

var (
	invalidDiagnoses        = []string{"blood", "unknown", "pending", "suspected", "possible", "n/a", "none", "string", "null", ""}
	confirmedDiagnosisTerms = []string{"carcinoma", "lymphoma", "leukemia", "sarcoma", "melanoma", "adenoma", "myeloma"}
	placeholderValues       = []string{"string", "unknown", "n/a", "null", "none", ""}
	stagingTitleTerms       = []string{"stage", "tnm", "t1", "t2", "t3", "t4", "n0", "n1", "m0", "m1"}
	stagingInvalidValues    = []string{"unknown", "pending", "n/a", ""}
	hematologicIndicators   = []string{"wbc", "rbc", "hemoglobin", "platelet", "blast", "lymphocyte"}
)

// diagnosisConfirmed reports whether pathology carries a specific,
// non-placeholder histological diagnosis.
func diagnosisConfirmed(findings model.ViewFindings) bool {
	for _, f := range findings.Pathology {
		if f.Category != "diagnosis" {
			continue
		}
		value := strings.TrimSpace(strings.ToLower(f.Value))
		if value == "" || slices.Contains(invalidDiagnoses, value) {
			continue
		}
		if containsAny(value, confirmedDiagnosisTerms) {
			return true
		}
	}
	return false
}

func stagingAvailable(findings model.ViewFindings, staging model.ViewStaging) bool {
	if deref(staging.ClinicalStage) != "" || deref(staging.PathologicalStage) != "" || deref(staging.TNMStaging) != "" {
		return true
	}
	for _, list := range [][]model.TumorBoardFinding{findings.Pathology, findings.Clinical} {
		for _, f := range list {
			if !containsAny(strings.ToLower(f.Title), stagingTitleTerms) {
				continue
			}
			if f.Value != "" && !slices.Contains(stagingInvalidValues, strings.ToLower(f.Value)) {
				return true
			}
		}
	}
	return false
}

func pathologyConfirmation(findings model.ViewFindings) bool {
	for _, f := range findings.Pathology {
		value := strings.TrimSpace(strings.ToLower(f.Value))
		if value != "" && !slices.Contains(placeholderValues, value) {
			return true
		}
	}
	return false
}

// DetectDiseaseCategory classifies the case by diagnosis keywords, falling
// back to hematology indicators in the clinical findings when no diagnosis
// text is given.
func DetectDiseaseCategory(findings model.ViewFindings, diagnosis string) string {
	d := strings.ToLower(diagnosis)
	switch {
	case containsAny(d, []string{"breast", "mammary"}):
		return "breast"
	case containsAny(d, []string{"lung", "pulmonary", "bronchial"}):
		return "lung"
	case containsAny(d, []string{"colon", "rectal", "colorectal", "bowel"}):
		return "colorectal"
	case containsAny(d, []string{"blood", "leukemia", "lymphoma", "myeloma", "hematologic"}):
		return "hematologic"
	case strings.Contains(d, "prostate"):
		return "prostate"
	case containsAny(d, []string{"ovary", "ovarian"}):
		return "ovarian"
	case containsAny(d, []string{"melanoma", "skin"}):
		return "melanoma"
	}

	indicators := 0
	for _, f := range findings.Clinical {
		if containsAny(strings.ToLower(f.Title), hematologicIndicators) {
			indicators++
		}
	}
	if indicators >= 3 {
		return "hematologic"
	}
	return "unknown"
}

// completenessScore weights the five evidence pillars of a reviewable
// case: diagnosis 30%, imaging 20%, staging 20%, pathology 15%, labs 15%.
func completenessScore(findings model.ViewFindings, staging model.ViewStaging) (float64, []string) {
	score := 0.0
	missing := []string{}

	if diagnosisConfirmed(findings) {
		score += 0.30
	} else {
		missing = append(missing, "Confirmed pathological diagnosis")
	}
	if len(findings.Imaging) > 0 {
		score += 0.20
	} else {
		missing = append(missing, "Imaging/radiology data")
	}
	if stagingAvailable(findings, staging) {
		score += 0.20
	} else {
		missing = append(missing, "Cancer staging (TNM)")
	}
	if pathologyConfirmation(findings) {
		score += 0.15
	} else {
		missing = append(missing, "Pathology confirmation")
	}
	labs := 0
	for _, f := range findings.Clinical {
		if f.Category == "lab" {
			labs++
		}
	}
	if labs >= 3 {
		score += 0.15
	} else {
		missing = append(missing, "Complete laboratory workup")
	}

	return math.Round(score*100) / 100, missing
}

func statusFor(score float64) string {
	switch {
	case score < 0.3:
		return StatusWorkupRequired
	case score < 0.5:
		return StatusPendingConfirmation
	case score < 0.7:
		return StatusPreliminary
	}
	return StatusReadyForReview
}

var numberRE = regexp.MustCompile(`[\d.]+`)

// checkCriticalFindings scans clinical lab values for results that demand
// immediate attention and escalate case complexity.
func checkCriticalFindings(findings model.ViewFindings) (override string, warnings []string) {
	warnings = []string{}
	critical := false

	for _, f := range findings.Clinical {
		title := strings.ToLower(f.Title)
		match := numberRE.FindString(f.Value)
		if match == "" {
			continue
		}
		value, err := strconv.ParseFloat(match, 64)
		if err != nil {
			continue
		}

		if containsAny(title, []string{"hemoglobin", "hb", "hgb"}) && value < 7.0 {
			critical = true
			warnings = append(warnings, fmt.Sprintf("⚠️ CRITICAL: Severe anemia (Hgb %s g/dL)", formatNum(value)))
		}
		if strings.Contains(title, "platelet") && value < 50000 {
			critical = true
			warnings = append(warnings, fmt.Sprintf("⚠️ CRITICAL: Severe thrombocytopenia (Plt %s)", formatNum(value)))
		}
		if containsAny(title, []string{"wbc", "leucocyte", "leukocyte"}) {
			switch {
			case value < 1000:
				critical = true
				warnings = append(warnings, fmt.Sprintf("⚠️ CRITICAL: Severe leukopenia (WBC %s)", formatNum(value)))
			case value > 50000:
				critical = true
				warnings = append(warnings, fmt.Sprintf("⚠️ CRITICAL: Leukocytosis (WBC %s)", formatNum(value)))
			}
		}
		if strings.Contains(title, "neutrophil") && value < 500 {
			critical = true
			warnings = append(warnings, fmt.Sprintf("⚠️ CRITICAL: Severe neutropenia (ANC %s)", formatNum(value)))
		}
		if strings.Contains(title, "creatinine") && value > 3.0 {
			critical = true
			warnings = append(warnings, fmt.Sprintf("⚠️ CRITICAL: Renal impairment (Creatinine %s mg/dL)", formatNum(value)))
		}
	}

	if critical {
		override = "high"
	}
	return override, warnings
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Validate runs the clinical safety gate over a view's findings:
// completeness scoring, critical lab escalation, and the standard warning
// set. Treatment recommendations stay locked until the score reaches 0.5
// with both a confirmed diagnosis and pathology backing.
func Validate(findings model.ViewFindings, staging model.ViewStaging) ValidationResult {
	score, missing := completenessScore(findings, staging)
	override, warnings := checkCriticalFindings(findings)

	if len(findings.Imaging) == 0 {
		warnings = append(warnings, "⚠️ No imaging data available. Imaging required before tumor board conclusions.")
	}
	diagnosisOK := diagnosisConfirmed(findings)
	if !diagnosisOK {
		warnings = append(warnings, "⚠️ Diagnosis pending. Treatment recommendations are preliminary only.")
	}
	pathologyOK := pathologyConfirmation(findings)
	if !pathologyOK {
		warnings = append(warnings, "⚠️ Pathology confirmation required before treatment initiation.")
	}
	if !stagingAvailable(findings, staging) {
		warnings = append(warnings, "⚠️ Staging data incomplete. Cannot determine treatment eligibility.")
	}

	return ValidationResult{
		SafeForTreatmentRecs:  score >= 0.5 && diagnosisOK && pathologyOK,
		DataCompletenessScore: score,
		Status:                statusFor(score),
		MissingCriticalData:   missing,
		Warnings:              warnings,
		ComplexityOverride:    override,
	}
}

var diseaseBiomarkers = map[string][]string{
	"breast":      {"ER", "PR", "HER2", "KI-67", "BRCA1", "BRCA2"},
	"lung":        {"EGFR", "ALK", "PD-L1", "ROS1", "KRAS", "MET", "BRAF"},
	"colorectal":  {"KRAS", "NRAS", "BRAF", "MSI", "MMR"},
	"hematologic": {"BCR-ABL", "FLT3", "NPM1", "IDH1", "IDH2", "CD MARKERS", "JAK2", "MPL", "CALR"},
	"prostate":    {"PSA", "AR", "PTEN", "BRCA"},
	"ovarian":     {"BRCA1", "BRCA2", "HRD", "CA-125"},
	"melanoma":    {"BRAF", "NRAS", "KIT", "PD-L1"},
}

var genericBiomarkers = []string{"LDH", "AFP", "CEA", "CA-125", "CA-19"}

// FilterBiomarkers drops biomarkers with no relevance to the detected
// disease. An unknown disease keeps everything; pan-cancer markers always
// pass.
func FilterBiomarkers(biomarkers []model.TumorBoardFinding, diseaseCategory string) []model.TumorBoardFinding {
	if diseaseCategory == "unknown" {
		return biomarkers
	}
	relevant, ok := diseaseBiomarkers[diseaseCategory]
	if !ok {
		return biomarkers
	}

	filtered := []model.TumorBoardFinding{}
	for _, b := range biomarkers {
		name := strings.ToUpper(b.Title)
		if containsAny(name, relevant) || containsAny(name, genericBiomarkers) {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

var (
	allowedUnsafeCategories = []string{"diagnostic", "imaging", "biopsy", "referral", "workup", "consultation"}
	diagnosticIntentTerms   = []string{"confirm", "rule out", "evaluate", "assess", "test", "biopsy", "imaging", "refer"}
)

// SanitizeRecommendations strips treatment advice when the case is not safe
// for it. Recommendations with diagnostic intent are kept but recategorized.
func SanitizeRecommendations(recs []model.TumorBoardRecommendation, v ValidationResult) []model.TumorBoardRecommendation {
	if v.SafeForTreatmentRecs {
		return recs
	}
	filtered := []model.TumorBoardRecommendation{}
	for _, r := range recs {
		if slices.Contains(allowedUnsafeCategories, strings.ToLower(r.Category)) {
			filtered = append(filtered, r)
			continue
		}
		if containsAny(strings.ToLower(r.Text), diagnosticIntentTerms) {
			r.Category = "diagnostic"
			filtered = append(filtered, r)
		}
	}
	return filtered
}
