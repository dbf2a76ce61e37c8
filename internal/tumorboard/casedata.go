package tumorboard

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/chartmed-ai/karte/internal/model"
)

// PatientInfo is the demographic block the agents and the unified view see.
type PatientInfo struct {
	PatientID  string  `json:"patient_id"`
	Name       string  `json:"name"`
	Age        string  `json:"age"`
	Gender     string  `json:"gender"`
	CancerType *string `json:"cancer_type"`
}

// CaseData is the material a tumor board runs on, assembled from the
// patient record and their latest completed analysis result.
type CaseData struct {
	PatientInfo     PatientInfo           `json:"patient_info"`
	AllFindings     []model.MergedFinding `json:"all_findings"`
	Diagnoses       []string              `json:"diagnoses"`
	Recommendations []string              `json:"recommendations"`
	Warnings        []string              `json:"warnings"`
	ReportCount     int                   `json:"report_count"`
}

// BuildCaseData pools every successfully analyzed report into one case.
// The patient row wins for demographics; extracted identity only fills
// blanks. Diagnoses, recommendations and warnings are deduplicated in
// first-appearance order.
func BuildCaseData(patient model.Patient, result model.AnalysisResult) *CaseData {
	info := PatientInfo{
		PatientID:  patient.PatientID,
		Name:       patient.Name,
		CancerType: patient.CancerType,
	}
	if patient.Age != nil {
		info.Age = strconv.Itoa(*patient.Age)
	}
	if patient.Gender != nil {
		info.Gender = *patient.Gender
	}

	data := &CaseData{
		PatientInfo:     info,
		AllFindings:     []model.MergedFinding{},
		Diagnoses:       []string{},
		Recommendations: []string{},
		Warnings:        []string{},
		ReportCount:     result.ReportCount,
	}

	for _, r := range result.Results {
		if r.Status != model.ReportStatusSuccess || r.MergedAnalysis == nil {
			continue
		}
		merged := r.MergedAnalysis

		identity := merged.PatientIdentity
		if data.PatientInfo.Name == "" && identity.Name != nil {
			data.PatientInfo.Name = *identity.Name
		}
		if data.PatientInfo.Age == "" && identity.Age != nil {
			data.PatientInfo.Age = *identity.Age
		}
		if data.PatientInfo.Gender == "" && identity.Gender != nil {
			data.PatientInfo.Gender = *identity.Gender
		}

		data.AllFindings = append(data.AllFindings, merged.AllFindings...)
		for _, d := range merged.Diagnoses {
			if d != "" && !slices.Contains(data.Diagnoses, d) {
				data.Diagnoses = append(data.Diagnoses, d)
			}
		}
		for _, rec := range merged.Recommendations {
			if rec != "" && !slices.Contains(data.Recommendations, rec) {
				data.Recommendations = append(data.Recommendations, rec)
			}
		}
		for _, w := range r.Warnings {
			if w != "" && !slices.Contains(data.Warnings, w) {
				data.Warnings = append(data.Warnings, w)
			}
		}
	}
	return data
}

var (
	imagingTerms   = []string{"ct", "mri", "x-ray", "ultrasound", "pet", "scan", "imaging"}
	pathologyTerms = []string{"biopsy", "histology", "specimen", "wbc", "rbc", "hemoglobin", "platelet", "blast", "cd"}
)

// AgentTexts renders the per-specialty report text handed to the
// specialist agents. Findings route by test name: imaging terms first,
// then pathology and hematology markers, everything else to clinical.
// Diagnoses ride along to pathology and clinical, recommendations to
// clinical only.
func (d *CaseData) AgentTexts() (radiology, pathology, clinical string) {
	var imaging, path, clin []model.MergedFinding
	for _, f := range d.AllFindings {
		name := strings.ToLower(f.TestName)
		switch {
		case containsAny(name, imagingTerms):
			imaging = append(imaging, f)
		case containsAny(name, pathologyTerms):
			path = append(path, f)
		default:
			clin = append(clin, f)
		}
	}

	radiology = findingsToText(imaging, "No imaging findings available.")
	pathology = findingsToText(path, "No pathology findings available.")
	clinical = findingsToText(clin, "No clinical findings available.")

	if len(d.Diagnoses) > 0 {
		suffix := "\n\nDiagnoses: " + strings.Join(d.Diagnoses, ", ")
		pathology += suffix
		clinical += suffix
	}
	if len(d.Recommendations) > 0 {
		clinical += "\n\nRecommendations: " + strings.Join(firstN(d.Recommendations, 5), ", ")
	}
	return radiology, pathology, clinical
}

func findingsToText(findings []model.MergedFinding, empty string) string {
	if len(findings) == 0 {
		return empty
	}
	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		line := fmt.Sprintf("%s: %s %s", valueOr(f.TestName, "Unknown"), valueOr(f.Value, "N/A"), deref(f.Unit))
		if deref(f.ReferenceRange) != "" {
			line += fmt.Sprintf(" (Ref: %s)", *f.ReferenceRange)
		}
		if deref(f.Status) != "" {
			line += fmt.Sprintf(" [%s]", *f.Status)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// prioritizedFindings orders what the unified view's model sees: every
// critical finding, at most 20 abnormal, at most 10 others.
func (d *CaseData) prioritizedFindings() []model.MergedFinding {
	var critical, abnormal, other []model.MergedFinding
	for _, f := range d.AllFindings {
		switch deref(f.Status) {
		case "CRITICAL":
			critical = append(critical, f)
		case "ABNORMAL":
			abnormal = append(abnormal, f)
		default:
			other = append(other, f)
		}
	}

	out := make([]model.MergedFinding, 0, len(critical)+20+10)
	out = append(out, critical...)
	out = append(out, firstNFindings(abnormal, 20)...)
	out = append(out, firstNFindings(other, 10)...)
	return out
}

// criticalFindings returns only the findings flagged CRITICAL upstream.
func (d *CaseData) criticalFindings() []model.MergedFinding {
	var critical []model.MergedFinding
	for _, f := range d.AllFindings {
		if deref(f.Status) == "CRITICAL" {
			critical = append(critical, f)
		}
	}
	return critical
}

func firstN(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

func firstNFindings(xs []model.MergedFinding, n int) []model.MergedFinding {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}
