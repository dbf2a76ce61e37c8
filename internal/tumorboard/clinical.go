package tumorboard

import (
	"context"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

// ClinicalAgent extracts performance status, comorbidities, symptoms, labs
// and treatment history from clinical notes.
type ClinicalAgent struct {
	core agentCore
}

func NewClinicalAgent(provider llm.Provider, llmModel string) *ClinicalAgent {
	return &ClinicalAgent{core: agentCore{provider: provider, model: llmModel}}
}

func (a *ClinicalAgent) Type() model.AgentType { return model.AgentClinical }
func (a *ClinicalAgent) Name() string          { return "Clinical Agent" }

type clinicalPayload struct {
	PerformanceStatus *struct {
		Value      flexString `json:"value"`
		Confidence flexString `json:"confidence"`
	} `json:"performance_status"`
	Comorbidities []struct {
		Name       flexString `json:"name"`
		Status     flexString `json:"status"`
		Confidence flexString `json:"confidence"`
	} `json:"comorbidities"`
	Symptoms []struct {
		Name       flexString `json:"name"`
		Severity   flexString `json:"severity"`
		Confidence flexString `json:"confidence"`
	} `json:"symptoms"`
	Labs []struct {
		Name           flexString `json:"name"`
		Value          flexString `json:"value"`
		Unit           flexString `json:"unit"`
		Interpretation flexString `json:"interpretation"`
		Confidence     flexString `json:"confidence"`
	} `json:"labs"`
	TreatmentHistory []struct {
		Type       flexString `json:"type"`
		Name       flexString `json:"name"`
		Response   flexString `json:"response"`
		Confidence flexString `json:"confidence"`
	} `json:"treatment_history"`
	Recommendations []recItem    `json:"recommendations"`
	Summary         flexString   `json:"summary"`
	Warnings        []flexString `json:"warnings"`
}

func (a *ClinicalAgent) prompt(ac model.AgentContext) string {
	return strings.NewReplacer(
		"{patient_id}", ac.PatientID,
		"{patient_name}", valueOr(ac.PatientName, "Unknown"),
		"{patient_age}", valueOr(ac.PatientAge, "Unknown"),
		"{patient_gender}", valueOr(ac.PatientGender, "Unknown"),
		"{report_text}", ac.ReportText,
		"{report_type}", valueOr(ac.ReportType, "Clinical Notes"),
	).Replace(clinicalPrompt)
}

// performanceSeverity maps an ECOG or KPS value onto severity. ECOG 0-1
// tolerates full treatment, 2 is borderline, 3-4 restricts options.
func performanceSeverity(value string) model.SeverityLevel {
	switch {
	case strings.Contains(value, "0"), strings.Contains(value, "1"):
		return model.SeverityLow
	case strings.Contains(value, "2"):
		return model.SeverityModerate
	case strings.Contains(value, "3"), strings.Contains(value, "4"):
		return model.SeverityHigh
	}
	return model.SeverityModerate
}

func (a *ClinicalAgent) Analyze(ctx context.Context, ac model.AgentContext) model.AgentOutput {
	started := time.Now()

	raw, err := a.core.chat(ctx, a.prompt(ac))
	if err != nil {
		return agentFailed(a, ac, started, err)
	}

	var p clinicalPayload
	if err := decodeAgent(raw, &p, parseShort); err != nil {
		return parseFailed(a, ac, started, err.Error())
	}

	sourceReport := optStr(ac.ReportType)
	findings := []model.SpecialistFinding{}

	if p.PerformanceStatus != nil {
		value := p.PerformanceStatus.Value.or("Unknown")
		findings = append(findings, model.SpecialistFinding{
			Category:     "performance_status",
			Name:         "ECOG Performance Status",
			Value:        value,
			Severity:     performanceSeverity(value),
			Confidence:   model.ParseConfidence(p.PerformanceStatus.Confidence.or("medium")),
			SourceReport: sourceReport,
		})
	}
	for _, c := range p.Comorbidities {
		findings = append(findings, model.SpecialistFinding{
			Category:     "comorbidity",
			Name:         c.Name.or("Unknown"),
			Value:        c.Status.or("Present"),
			Severity:     model.SeverityModerate,
			Confidence:   model.ParseConfidence(c.Confidence.or("medium")),
			SourceReport: sourceReport,
		})
	}
	for _, s := range p.Symptoms {
		findings = append(findings, model.SpecialistFinding{
			Category:     "symptom",
			Name:         s.Name.or("Unknown"),
			Value:        s.Severity.or("Present"),
			Severity:     model.ParseSeverity(s.Severity.or("moderate")),
			Confidence:   model.ParseConfidence(s.Confidence.or("medium")),
			SourceReport: sourceReport,
		})
	}
	for _, l := range p.Labs {
		findings = append(findings, model.SpecialistFinding{
			Category:       "lab",
			Name:           l.Name.or("Unknown"),
			Value:          l.Value.or("Unknown"),
			Unit:           l.Unit.ptr(),
			Severity:       model.SeverityInformational,
			Confidence:     model.ParseConfidence(l.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: l.Interpretation.ptr(),
		})
	}
	for _, t := range p.TreatmentHistory {
		findings = append(findings, model.SpecialistFinding{
			Category:       "treatment",
			Name:           t.Type.or("Treatment"),
			Value:          t.Name.or("Unknown"),
			Severity:       model.SeverityInformational,
			Confidence:     model.ParseConfidence(t.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: t.Response.ptr(),
		})
	}

	recs := make([]model.Recommendation, 0, len(p.Recommendations))
	for _, r := range p.Recommendations {
		recs = append(recs, model.Recommendation{
			Category: "clinical",
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
