package tumorboard

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

// CoordinatorAgent synthesizes the specialist outputs into an executive
// summary, prioritized findings and recommendations.
type CoordinatorAgent struct {
	core agentCore
}

func NewCoordinatorAgent(provider llm.Provider, llmModel string) *CoordinatorAgent {
	return &CoordinatorAgent{core: agentCore{provider: provider, model: llmModel}}
}

func (a *CoordinatorAgent) Type() model.AgentType { return model.AgentCoordinator }
func (a *CoordinatorAgent) Name() string          { return "Coordinator Agent" }

type coordinatorPayload struct {
	KeyFindings []struct {
		Category    flexString `json:"category"`
		Name        flexString `json:"name"`
		Value       flexString `json:"value"`
		Severity    flexString `json:"severity"`
		Confidence  flexString `json:"confidence"`
		SourceAgent flexString `json:"source_agent"`
	} `json:"key_findings"`
	PrioritizedRecommendations []struct {
		Category      flexString `json:"category"`
		Text          flexString `json:"text"`
		Priority      flexString `json:"priority"`
		Rationale     flexString `json:"rationale"`
		EvidenceLevel flexString `json:"evidence_level"`
	} `json:"prioritized_recommendations"`
	Conflicts []struct {
		Description    flexString   `json:"description"`
		AgentsInvolved []flexString `json:"agents_involved"`
	} `json:"conflicts"`
	StagingSummary struct {
		TNM               flexString `json:"tnm"`
		ClinicalStage     flexString `json:"clinical_stage"`
		PathologicalStage flexString `json:"pathological_stage"`
	} `json:"staging_summary"`
	OverallConfidence flexString   `json:"overall_confidence"`
	ExecutiveSummary  flexString   `json:"executive_summary"`
	Warnings          []flexString `json:"warnings"`
}

func (a *CoordinatorAgent) prompt(ac model.AgentContext) string {
	return strings.NewReplacer(
		"{patient_id}", ac.PatientID,
		"{patient_name}", valueOr(ac.PatientName, "Unknown"),
		"{agent_outputs}", ac.ReportText,
	).Replace(coordinatorPrompt)
}

func (a *CoordinatorAgent) Analyze(ctx context.Context, ac model.AgentContext) model.AgentOutput {
	started := time.Now()

	raw, err := a.core.chat(ctx, a.prompt(ac))
	if err != nil {
		return agentFailed(a, ac, started, err)
	}

	var p coordinatorPayload
	if err := decodeAgent(raw, &p, parseShort); err != nil {
		return parseFailed(a, ac, started, err.Error())
	}

	findings := []model.SpecialistFinding{}
	for _, f := range p.KeyFindings {
		findings = append(findings, model.SpecialistFinding{
			Category:     f.Category.or("summary"),
			Name:         f.Name.or("Finding"),
			Value:        string(f.Value),
			Severity:     model.ParseSeverity(f.Severity.or("moderate")),
			Confidence:   model.ParseConfidence(f.Confidence.or("medium")),
			SourceReport: f.SourceAgent.ptr(),
		})
	}

	recs := []model.Recommendation{}
	for _, r := range p.PrioritizedRecommendations {
		recs = append(recs, model.Recommendation{
			Category:      r.Category.or("treatment"),
			Text:          string(r.Text),
			Priority:      model.ParseSeverity(r.Priority.or("moderate")),
			Rationale:     r.Rationale.ptr(),
			EvidenceLevel: r.EvidenceLevel.ptr(),
		})
	}

	conflicts := []model.Conflict{}
	for _, c := range p.Conflicts {
		if string(c.Description) == "" {
			continue
		}
		conflicts = append(conflicts, model.Conflict{
			Description:    string(c.Description),
			AgentsInvolved: stringsOf(c.AgentsInvolved),
		})
	}

	return stamp(model.AgentOutput{
		Success:         true,
		Confidence:      model.ParseConfidence(p.OverallConfidence.or("medium")),
		Findings:        findings,
		Recommendations: recs,
		Summary:         string(p.ExecutiveSummary),
		Warnings:        stringsOf(p.Warnings),
		Conflicts:       conflicts,
		Staging:         stagingOf(p),
		SubAgentOutputs: ac.AdditionalContext,
	}, a, ac, started)
}

// Case bundles everything the board produced for one patient.
type Case struct {
	PatientID            string
	PatientName          string
	CaseDate             string
	Radiology            *model.AgentOutput
	Pathology            *model.AgentOutput
	Clinical             *model.AgentOutput
	Research             *model.AgentOutput
	Coordinator          *model.AgentOutput
	FinalSummary         string
	FinalRecommendations []model.Recommendation
	AllWarnings          []string
}

// Synthesize feeds the specialist outputs through the coordinator and
// assembles the case. Missing specialists show up as null in the
// coordinator's input so the model knows what was unavailable.
func (a *CoordinatorAgent) Synthesize(ctx context.Context, patientID, patientName string, radiology, pathology, clinical, research *model.AgentOutput) Case {
	agentData := struct {
		Radiology *model.AgentOutput `json:"radiology"`
		Pathology *model.AgentOutput `json:"pathology"`
		Clinical  *model.AgentOutput `json:"clinical"`
		Research  *model.AgentOutput `json:"research"`
	}{radiology, pathology, clinical, research}

	agentJSON, _ := json.MarshalIndent(agentData, "", "  ")

	out := a.Analyze(ctx, model.AgentContext{
		PatientID:   patientID,
		PatientName: patientName,
		ReportText:  string(agentJSON),
		AdditionalContext: map[string]any{
			"radiology": radiology,
			"pathology": pathology,
			"clinical":  clinical,
			"research":  research,
		},
	})

	return Case{
		PatientID:            patientID,
		PatientName:          patientName,
		CaseDate:             time.Now().UTC().Format(time.RFC3339),
		Radiology:            radiology,
		Pathology:            pathology,
		Clinical:             clinical,
		Research:             research,
		Coordinator:          &out,
		FinalSummary:         out.Summary,
		FinalRecommendations: out.Recommendations,
		AllWarnings:          collectWarnings(radiology, pathology, clinical, research, &out),
	}
}

// stagingOf lifts the coordinator's staging summary into the view shape.
// Returns nil when no stage was present so downstream scoring treats the
// case as unstaged. Models occasionally emit the string "null" instead of
// JSON null; those count as absent too.
func stagingOf(p coordinatorPayload) *model.ViewStaging {
	tnm := stageValue(p.StagingSummary.TNM)
	clinical := stageValue(p.StagingSummary.ClinicalStage)
	pathological := stageValue(p.StagingSummary.PathologicalStage)
	if tnm == nil && clinical == nil && pathological == nil {
		return nil
	}
	return &model.ViewStaging{
		TNMStaging:        tnm,
		ClinicalStage:     clinical,
		PathologicalStage: pathological,
	}
}

func stageValue(s flexString) *string {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "", "null", "none", "n/a", "unknown":
		return nil
	}
	return s.ptr()
}

// collectWarnings gathers unique warnings across outputs, keeping first
// appearance order.
func collectWarnings(outputs ...*model.AgentOutput) []string {
	seen := make(map[string]struct{})
	all := []string{}
	for _, o := range outputs {
		if o == nil {
			continue
		}
		for _, w := range o.Warnings {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			all = append(all, w)
		}
	}
	return all
}
