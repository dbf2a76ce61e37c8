package tumorboard

import (
	"context"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

// PathologyAgent extracts histology, grade, biomarkers, mutations, margins
// and hematology panels from pathology reports.
type PathologyAgent struct {
	core agentCore
}

func NewPathologyAgent(provider llm.Provider, llmModel string) *PathologyAgent {
	return &PathologyAgent{core: agentCore{provider: provider, model: llmModel}}
}

func (a *PathologyAgent) Type() model.AgentType { return model.AgentPathology }
func (a *PathologyAgent) Name() string          { return "Pathology Agent" }

type pathologyPayload struct {
	Diagnosis *struct {
		Type        flexString `json:"type"`
		Description flexString `json:"description"`
		Confidence  flexString `json:"confidence"`
	} `json:"diagnosis"`
	Grade *struct {
		Value      flexString `json:"value"`
		Confidence flexString `json:"confidence"`
	} `json:"grade"`
	Biomarkers []struct {
		Name           flexString `json:"name"`
		Value          flexString `json:"value"`
		Interpretation flexString `json:"interpretation"`
		Confidence     flexString `json:"confidence"`
	} `json:"biomarkers"`
	Mutations []struct {
		Gene                 flexString `json:"gene"`
		Status               flexString `json:"status"`
		ClinicalSignificance flexString `json:"clinical_significance"`
		Confidence           flexString `json:"confidence"`
	} `json:"mutations"`
	Margins *struct {
		Status     flexString `json:"status"`
		Confidence flexString `json:"confidence"`
	} `json:"margins"`
	HematologicFindings []struct {
		Name           flexString `json:"name"`
		Value          flexString `json:"value"`
		Interpretation flexString `json:"interpretation"`
		IsAbnormal     bool       `json:"is_abnormal"`
	} `json:"hematologic_findings"`
	Recommendations []recItem    `json:"recommendations"`
	Summary         flexString   `json:"summary"`
	Warnings        []flexString `json:"warnings"`
}

func (a *PathologyAgent) prompt(ac model.AgentContext) string {
	return strings.NewReplacer(
		"{patient_id}", ac.PatientID,
		"{patient_name}", valueOr(ac.PatientName, "Unknown"),
		"{report_text}", ac.ReportText,
		"{report_type}", valueOr(ac.ReportType, "Pathology Report"),
	).Replace(pathologyPrompt)
}

func (a *PathologyAgent) Analyze(ctx context.Context, ac model.AgentContext) model.AgentOutput {
	started := time.Now()

	raw, err := a.core.chat(ctx, a.prompt(ac))
	if err != nil {
		return agentFailed(a, ac, started, err)
	}

	var p pathologyPayload
	if err := decodeAgent(raw, &p, parseLong); err != nil {
		return parseFailed(a, ac, started, err.Error())
	}

	sourceReport := optStr(ac.ReportType)
	findings := []model.SpecialistFinding{}

	if p.Diagnosis != nil {
		findings = append(findings, model.SpecialistFinding{
			Category:       "diagnosis",
			Name:           "Histological Diagnosis",
			Value:          p.Diagnosis.Type.or("Unknown"),
			Severity:       model.SeverityHigh,
			Confidence:     model.ParseConfidence(p.Diagnosis.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: p.Diagnosis.Description.ptr(),
		})
	}
	if p.Grade != nil {
		findings = append(findings, model.SpecialistFinding{
			Category:     "grade",
			Name:         "Tumor Grade",
			Value:        p.Grade.Value.or("Unknown"),
			Severity:     model.SeverityModerate,
			Confidence:   model.ParseConfidence(p.Grade.Confidence.or("medium")),
			SourceReport: sourceReport,
		})
	}
	for _, b := range p.Biomarkers {
		severity := model.SeverityModerate
		if strings.ToLower(string(b.Value)) == "positive" {
			severity = model.SeverityHigh
		}
		findings = append(findings, model.SpecialistFinding{
			Category:       "biomarker",
			Name:           b.Name.or("Unknown Biomarker"),
			Value:          b.Value.or("Unknown"),
			Severity:       severity,
			Confidence:     model.ParseConfidence(b.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: b.Interpretation.ptr(),
		})
	}
	for _, m := range p.Mutations {
		findings = append(findings, model.SpecialistFinding{
			Category:       "mutation",
			Name:           m.Gene.or("Unknown Gene"),
			Value:          m.Status.or("Unknown"),
			Severity:       model.SeverityHigh,
			Confidence:     model.ParseConfidence(m.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: m.ClinicalSignificance.ptr(),
		})
	}
	if p.Margins != nil {
		severity := model.SeverityLow
		if strings.ToLower(string(p.Margins.Status)) == "positive" {
			severity = model.SeverityHigh
		}
		findings = append(findings, model.SpecialistFinding{
			Category:     "surgical",
			Name:         "Surgical Margins",
			Value:        p.Margins.Status.or("Unknown"),
			Severity:     severity,
			Confidence:   model.ParseConfidence(p.Margins.Confidence.or("medium")),
			SourceReport: sourceReport,
		})
	}
	for _, h := range p.HematologicFindings {
		severity := model.SeverityInformational
		if h.IsAbnormal {
			severity = model.SeverityModerate
		}
		findings = append(findings, model.SpecialistFinding{
			Category:       "hematologic",
			Name:           h.Name.or("Unknown"),
			Value:          h.Value.or("Unknown"),
			Severity:       severity,
			Confidence:     model.ConfidenceMedium,
			SourceReport:   sourceReport,
			Interpretation: h.Interpretation.ptr(),
		})
	}

	recs := make([]model.Recommendation, 0, len(p.Recommendations))
	for _, r := range p.Recommendations {
		recs = append(recs, model.Recommendation{
			Category: "pathology",
			Text:     string(r.Text),
			Priority: model.SeverityModerate,
		})
	}

	return stamp(model.AgentOutput{
		Success:         true,
		Confidence:      overallConfidence(findings),
		Findings:        findings,
		Recommendations: recs,
		Summary:         string(p.Summary),
		Warnings:        stringsOf(p.Warnings),
	}, a, ac, started)
}
