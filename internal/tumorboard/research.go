package tumorboard

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

// ResearchAgent suggests evidence-based treatment options and clinical
// trials. It never emits findings, only recommendations.
type ResearchAgent struct {
	core agentCore
}

func NewResearchAgent(provider llm.Provider, llmModel string) *ResearchAgent {
	return &ResearchAgent{core: agentCore{provider: provider, model: llmModel}}
}

func (a *ResearchAgent) Type() model.AgentType { return model.AgentResearch }
func (a *ResearchAgent) Name() string          { return "Research Agent" }

type researchPayload struct {
	TreatmentOptions []struct {
		Name          flexString `json:"name"`
		Priority      flexString `json:"priority"`
		Rationale     flexString `json:"rationale"`
		EvidenceLevel flexString `json:"evidence_level"`
		Source        flexString `json:"source"`
	} `json:"treatment_options"`
	ClinicalTrials []struct {
		Name        flexString `json:"name"`
		NCTID       flexString `json:"nct_id"`
		Eligibility flexString `json:"eligibility"`
	} `json:"clinical_trials"`
	AdditionalRecommendations []recItem    `json:"additional_recommendations"`
	Summary                   flexString   `json:"summary"`
	Warnings                  []flexString `json:"warnings"`
}

// researchPriority maps treatment priorities onto severity. The model often
// answers with line-of-therapy labels; anything unmapped lands on moderate.
func researchPriority(priority string) model.SeverityLevel {
	switch strings.ToLower(priority) {
	case "high":
		return model.SeverityHigh
	case "moderate":
		return model.SeverityModerate
	case "low":
		return model.SeverityLow
	}
	return model.SeverityModerate
}

func (a *ResearchAgent) prompt(ac model.AgentContext) string {
	extra := ac.AdditionalContext
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, _ := json.Marshal(extra)
	return strings.NewReplacer(
		"{patient_id}", ac.PatientID,
		"{patient_name}", valueOr(ac.PatientName, "Unknown"),
		"{patient_age}", valueOr(ac.PatientAge, "Unknown"),
		"{clinical_summary}", ac.ReportText,
		"{additional_context}", string(extraJSON),
	).Replace(researchPrompt)
}

func (a *ResearchAgent) Analyze(ctx context.Context, ac model.AgentContext) model.AgentOutput {
	started := time.Now()

	raw, err := a.core.chat(ctx, a.prompt(ac))
	if err != nil {
		return agentFailed(a, ac, started, err)
	}

	var p researchPayload
	if err := decodeAgent(raw, &p, parseShort); err != nil {
		return parseFailed(a, ac, started, err.Error())
	}

	recs := []model.Recommendation{}
	for _, t := range p.TreatmentOptions {
		recs = append(recs, model.Recommendation{
			Category:      "treatment",
			Text:          t.Name.or("Unknown"),
			Priority:      researchPriority(t.Priority.or("moderate")),
			Rationale:     t.Rationale.ptr(),
			EvidenceLevel: t.EvidenceLevel.ptr(),
			Source:        t.Source.ptr(),
		})
	}
	for _, t := range p.ClinicalTrials {
		recs = append(recs, model.Recommendation{
			Category:      "clinical_trial",
			Text:          t.Name.or("Clinical Trial"),
			Priority:      model.SeverityModerate,
			Rationale:     t.Eligibility.ptr(),
			EvidenceLevel: strPtr("Clinical Trial"),
			Source:        t.NCTID.ptr(),
		})
	}
	for _, r := range p.AdditionalRecommendations {
		recs = append(recs, model.Recommendation{
			Category: "additional",
			Text:     string(r.Text),
			Priority: model.SeverityLow,
		})
	}

	return stamp(model.AgentOutput{
		Success:         true,
		Confidence:      model.ConfidenceMedium,
		Findings:        []model.SpecialistFinding{},
		Recommendations: recs,
		Summary:         string(p.Summary),
		Warnings:        stringsOf(p.Warnings),
	}, a, ac, started)
}
