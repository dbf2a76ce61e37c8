package tumorboard

import (
	"context"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

// RadiologyAgent extracts verifiable imaging findings: tumors, lymph node
// involvement and metastatic sites.
type RadiologyAgent struct {
	core agentCore
}

func NewRadiologyAgent(provider llm.Provider, llmModel string) *RadiologyAgent {
	return &RadiologyAgent{core: agentCore{provider: provider, model: llmModel}}
}

func (a *RadiologyAgent) Type() model.AgentType { return model.AgentRadiology }
func (a *RadiologyAgent) Name() string          { return "Radiology Agent" }

type radiologyPayload struct {
	Tumors []struct {
		Location    flexString `json:"location"`
		Size        flexString `json:"size"`
		SizeUnit    flexString `json:"size_unit"`
		Description flexString `json:"description"`
		Severity    flexString `json:"severity"`
		Confidence  flexString `json:"confidence"`
	} `json:"tumors"`
	LymphNodes []struct {
		Location    flexString `json:"location"`
		Status      flexString `json:"status"`
		Description flexString `json:"description"`
		Severity    flexString `json:"severity"`
		Confidence  flexString `json:"confidence"`
	} `json:"lymph_nodes"`
	Metastases []struct {
		Location    flexString `json:"location"`
		Status      flexString `json:"status"`
		Description flexString `json:"description"`
		Confidence  flexString `json:"confidence"`
	} `json:"metastases"`
	Recommendations []recItem    `json:"recommendations"`
	Summary         flexString   `json:"summary"`
	Warnings        []flexString `json:"warnings"`
}

func (a *RadiologyAgent) prompt(ac model.AgentContext) string {
	return strings.NewReplacer(
		"{patient_id}", ac.PatientID,
		"{patient_name}", valueOr(ac.PatientName, "Unknown"),
		"{report_text}", ac.ReportText,
		"{report_type}", valueOr(ac.ReportType, "Imaging Report"),
	).Replace(radiologyPrompt)
}

func (a *RadiologyAgent) Analyze(ctx context.Context, ac model.AgentContext) model.AgentOutput {
	started := time.Now()

	raw, err := a.core.chat(ctx, a.prompt(ac))
	if err != nil {
		return agentFailed(a, ac, started, err)
	}

	var p radiologyPayload
	if err := decodeAgent(raw, &p, parseLong); err != nil {
		return parseFailed(a, ac, started, err.Error())
	}

	sourceReport := optStr(ac.ReportType)
	findings := make([]model.SpecialistFinding, 0, len(p.Tumors)+len(p.LymphNodes)+len(p.Metastases))

	for _, t := range p.Tumors {
		findings = append(findings, model.SpecialistFinding{
			Category:       "tumor",
			Name:           t.Location.or("Primary Tumor"),
			Value:          t.Size.or("Unknown"),
			Unit:           strPtr(t.SizeUnit.or("cm")),
			Severity:       model.ParseSeverity(t.Severity.or("moderate")),
			Confidence:     model.ParseConfidence(t.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: t.Description.ptr(),
		})
	}
	for _, n := range p.LymphNodes {
		findings = append(findings, model.SpecialistFinding{
			Category:       "lymph_nodes",
			Name:           n.Location.or("Lymph Nodes"),
			Value:          n.Status.or("Unknown"),
			Severity:       model.ParseSeverity(n.Severity.or("moderate")),
			Confidence:     model.ParseConfidence(n.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: n.Description.ptr(),
		})
	}
	for _, m := range p.Metastases {
		findings = append(findings, model.SpecialistFinding{
			Category:       "metastasis",
			Name:           m.Location.or("Metastatic Site"),
			Value:          m.Status.or("Present"),
			Severity:       model.SeverityHigh,
			Confidence:     model.ParseConfidence(m.Confidence.or("medium")),
			SourceReport:   sourceReport,
			Interpretation: m.Description.ptr(),
		})
	}

	recs := make([]model.Recommendation, 0, len(p.Recommendations))
	for _, r := range p.Recommendations {
		recs = append(recs, model.Recommendation{
			Category:  "imaging",
			Text:      string(r.Text),
			Priority:  model.SeverityModerate,
			Rationale: r.Rationale.ptr(),
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
