package tumorboard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chartmed-ai/karte/internal/model"
)

// Placeholder output the models sometimes echo back from their prompt
// schemas instead of real values.
var placeholderRE = regexp.MustCompile(`(?i)^string$|^string \(|^unknown$|^none$|^null$|^n/a$|^\s*$|^2-3 sentence`)

func isPlaceholder(value string) bool {
	return placeholderRE.MatchString(strings.TrimSpace(value))
}

var (
	dupSlashUnitRE = regexp.MustCompile(`(\w+/\w+)\s+(\w+/\w+)`)
	dupPercentRE   = regexp.MustCompile(`%\s+%`)
	dupLakhRE      = regexp.MustCompile(`lakh/cu\.mm\s+lakh/cu\.mm`)
	dupMillionRE   = regexp.MustCompile(`million/cu\.mm\s+million/cu\.mm`)
	dupPgRE        = regexp.MustCompile(`pg\s+pg`)
	dupFlRE        = regexp.MustCompile(`fL\s+fL`)
	noneParenRE    = regexp.MustCompile(`\s*\(None\)\s*$`)
	noneTailRE     = regexp.MustCompile(`\s+None$`)
)

// cleanValue trims a value, collapses stuttered units like "g/dL g/dL" and
// strips trailing None artifacts from upstream string formatting.
func cleanValue(value string) string {
	cleaned := strings.TrimSpace(value)

	cleaned = dupSlashUnitRE.ReplaceAllStringFunc(cleaned, func(m string) string {
		parts := dupSlashUnitRE.FindStringSubmatch(m)
		if parts[1] == parts[2] {
			return parts[1]
		}
		return m
	})
	cleaned = dupPercentRE.ReplaceAllString(cleaned, "%")
	cleaned = dupLakhRE.ReplaceAllString(cleaned, "lakh/cu.mm")
	cleaned = dupMillionRE.ReplaceAllString(cleaned, "million/cu.mm")
	cleaned = dupPgRE.ReplaceAllString(cleaned, "pg")
	cleaned = dupFlRE.ReplaceAllString(cleaned, "fL")

	cleaned = noneParenRE.ReplaceAllString(cleaned, "")
	cleaned = noneTailRE.ReplaceAllString(cleaned, "")

	return strings.TrimSpace(cleaned)
}

var genderNames = map[string]string{
	"male": "Male", "m": "Male", "man": "Male",
	"female": "Female", "f": "Female", "woman": "Female",
}

func standardizeGender(gender string) string {
	if gender == "" {
		return ""
	}
	if g, ok := genderNames[strings.ToLower(strings.TrimSpace(gender))]; ok {
		return g
	}
	return capitalize(gender)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
}

// cleanFinding normalizes one finding, reporting false when it carries
// nothing displayable. Empty values survive only on informational or low
// severity findings and labs.
func cleanFinding(f model.TumorBoardFinding) (model.TumorBoardFinding, bool) {
	if isPlaceholder(f.Title) && isPlaceholder(f.Value) {
		return model.TumorBoardFinding{}, false
	}
	if f.Title == "" || isPlaceholder(f.Title) {
		return model.TumorBoardFinding{}, false
	}

	value := ""
	if f.Value != "" {
		value = cleanValue(f.Value)
	}
	if value == "" && f.Severity != "info" && f.Severity != "low" && f.Category != "lab" {
		return model.TumorBoardFinding{}, false
	}

	f.Title = cleanValue(f.Title)
	f.Value = value
	if f.Interpretation != nil {
		f.Interpretation = optStr(cleanValue(*f.Interpretation))
	}
	return f, true
}

func cleanRecommendation(r model.TumorBoardRecommendation) (model.TumorBoardRecommendation, bool) {
	if isPlaceholder(r.Text) {
		return model.TumorBoardRecommendation{}, false
	}
	r.Text = cleanValue(r.Text)
	if r.Rationale != nil {
		r.Rationale = optStr(cleanValue(*r.Rationale))
	}
	return r, true
}

// cleanTrial drops placeholder trials and trials that obviously target a
// different disease than the detected one.
func cleanTrial(t model.ClinicalTrial, diseaseCategory string) (model.ClinicalTrial, bool) {
	if isPlaceholder(t.Name) {
		return model.ClinicalTrial{}, false
	}
	if diseaseCategory != "" && diseaseCategory != "unknown" {
		name := strings.ToLower(t.Name)
		if diseaseCategory == "hematologic" && containsAny(name, []string{"breast", "lung", "colon"}) {
			return model.ClinicalTrial{}, false
		}
		if diseaseCategory == "breast" && containsAny(name, []string{"leukemia", "lymphoma", "myeloma"}) {
			return model.ClinicalTrial{}, false
		}
	}
	t.Name = cleanValue(t.Name)
	t.Source = cleanValue(t.Source)
	t.Eligibility = cleanValue(t.Eligibility)
	return t, true
}

// CleanView runs the full post-processing pass over a raw multi-agent
// view: placeholder scrubbing, disease detection, biomarker filtering, the
// clinical safety gate, and evidence-based confidence replacing the
// models' self-assessment.
func CleanView(view model.TumorBoardView) model.TumorBoardView {
	if view.PatientGender != nil {
		g := standardizeGender(*view.PatientGender)
		view.PatientGender = &g
	}

	view.Findings.Imaging = cleanFindings(view.Findings.Imaging)
	view.Findings.Pathology = cleanFindings(view.Findings.Pathology)
	view.Findings.Clinical = cleanFindings(view.Findings.Clinical)
	view.Findings.Biomarkers = cleanFindings(view.Findings.Biomarkers)

	diseaseCategory := DetectDiseaseCategory(view.Findings, "")
	view.DetectedDiseaseCategory = diseaseCategory

	view.Findings.Biomarkers = FilterBiomarkers(view.Findings.Biomarkers, diseaseCategory)

	validation := Validate(view.Findings, view.Staging)
	view.DiagnosticStatus = validation.Status
	view.DataCompletenessScore = validation.DataCompletenessScore
	view.MissingCriticalData = validation.MissingCriticalData
	if validation.ComplexityOverride != "" {
		view.CaseComplexity = validation.ComplexityOverride
	}
	view.Warnings = mergeWarnings(view.Warnings, validation.Warnings)

	view.Recommendations.Treatment = SanitizeRecommendations(cleanRecommendations(view.Recommendations.Treatment), validation)
	view.Recommendations.Imaging = cleanRecommendations(view.Recommendations.Imaging)
	view.Recommendations.Other = cleanRecommendations(view.Recommendations.Other)

	trials := []model.ClinicalTrial{}
	for _, t := range view.ClinicalTrials {
		if cleaned, ok := cleanTrial(t, diseaseCategory); ok {
			trials = append(trials, cleaned)
		}
	}
	if !validation.SafeForTreatmentRecs {
		trials = []model.ClinicalTrial{}
	}
	view.ClinicalTrials = trials

	assessment := CalculateConfidence(view.Findings, view.Staging)
	view.OverallConfidence = assessment.Level
	view.ConfidenceScore = assessment.Score
	view.ConfidenceJustification = assessment.Justification

	if isPlaceholder(view.ExecutiveSummary) {
		view.ExecutiveSummary = fallbackSummary(view, validation)
	}

	return view
}

func cleanFindings(findings []model.TumorBoardFinding) []model.TumorBoardFinding {
	out := []model.TumorBoardFinding{}
	for _, f := range findings {
		if cleaned, ok := cleanFinding(f); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

func cleanRecommendations(recs []model.TumorBoardRecommendation) []model.TumorBoardRecommendation {
	out := []model.TumorBoardRecommendation{}
	for _, r := range recs {
		if cleaned, ok := cleanRecommendation(r); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

// mergeWarnings appends extra warnings, dropping duplicates while keeping
// first-appearance order.
func mergeWarnings(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	merged := []string{}
	for _, list := range [][]string{existing, extra} {
		for _, w := range list {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			merged = append(merged, w)
		}
	}
	return merged
}

// fallbackSummary writes a safety-first executive summary when the
// coordinator produced placeholder text.
func fallbackSummary(view model.TumorBoardView, validation ValidationResult) string {
	parts := []string{}

	name := valueOr(view.PatientName, "Patient")
	demo := []string{}
	if deref(view.PatientAge) != "" {
		demo = append(demo, *view.PatientAge+" year old")
	}
	if deref(view.PatientGender) != "" {
		demo = append(demo, strings.ToLower(*view.PatientGender))
	}
	if len(demo) > 0 {
		parts = append(parts, fmt.Sprintf("%s, %s.", name, strings.Join(demo, " ")))
	} else {
		parts = append(parts, fmt.Sprintf("Patient: %s.", name))
	}

	if !validation.SafeForTreatmentRecs {
		parts = append(parts, "Diagnosis is PENDING pathology confirmation.")
	}

	total := len(view.Findings.Imaging) + len(view.Findings.Pathology) + len(view.Findings.Clinical) + len(view.Findings.Biomarkers)
	if total > 0 {
		parts = append(parts, fmt.Sprintf("Analysis identified %d clinical findings.", total))
	}

	if len(validation.MissingCriticalData) > 0 {
		parts = append(parts, fmt.Sprintf("Missing: %s.", strings.Join(firstN(validation.MissingCriticalData, 2), ", ")))
	}

	if !validation.SafeForTreatmentRecs {
		parts = append(parts, "Treatment recommendations are preliminary only.")
	}

	summary := strings.Join(parts, " ")
	if summary == "" {
		return "Case analysis completed. Diagnostic workup recommended."
	}
	return summary
}
