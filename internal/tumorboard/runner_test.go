package tumorboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runnerConfig() Config {
	return Config{
		RadiologyModel:   "rad-m",
		PathologyModel:   "path-m",
		ClinicalModel:    "clin-m",
		ResearchModel:    "res-m",
		CoordinatorModel: "coord-m",
	}
}

func fullRunInput() RunInput {
	return RunInput{
		PatientID:     "PT-100",
		PatientName:   "Mina Sato",
		PatientAge:    "58",
		PatientGender: "female",
		RadiologyText: "CT shows right upper lobe mass.",
		PathologyText: "Biopsy confirms adenocarcinoma.",
		ClinicalText:  "ECOG 1, fatigue reported.",
	}
}

func happyPathReplies() map[string]string {
	return map[string]string{
		"rad-m": `{
			"tumors": [{"location": "Right upper lobe", "size": "3.2", "size_unit": "cm", "severity": "high", "confidence": "high"}],
			"summary": "Single lung mass.",
			"warnings": []
		}`,
		"path-m": `{
			"diagnosis": {"type": "Adenocarcinoma", "confidence": "high"},
			"biomarkers": [{"name": "PD-L1", "value": "Positive", "confidence": "high"}],
			"summary": "Adenocarcinoma confirmed.",
			"warnings": []
		}`,
		"clin-m": `{
			"performance_status": {"value": "ECOG 1", "confidence": "high"},
			"summary": "Fit for treatment.",
			"warnings": []
		}`,
		"res-m": `{
			"treatment_options": [{"name": "Osimertinib", "priority": "high", "rationale": "EGFR positive", "evidence_level": "Level 1", "source": "NCCN"}],
			"clinical_trials": [{"name": "TRIAL-1", "nct_id": "NCT000001", "eligibility": "Stage IV NSCLC"}],
			"additional_recommendations": ["Molecular tumor board referral"],
			"summary": "Targeted options available.",
			"warnings": []
		}`,
		"coord-m": `{
			"executive_summary": "58 year old with confirmed lung adenocarcinoma.",
			"key_findings": [],
			"prioritized_recommendations": [],
			"conflicts": [{"description": "Lesion size differs between CT and biopsy report.", "agents_involved": ["radiology", "pathology"]}],
			"staging_summary": {"tnm": "cT2aN0M0", "clinical_stage": "Stage IB", "pathological_stage": null},
			"overall_confidence": "high",
			"warnings": ["Staging incomplete"]
		}`,
	}
}

func TestRunnerFullBoard(t *testing.T) {
	fake := &fakeLLM{replies: happyPathReplies()}
	runner := NewRunner(fake, runnerConfig(), nil, testLogger())

	view := runner.Run(context.Background(), fullRunInput())

	assert.Equal(t, "PT-100", view.PatientID)
	assert.Equal(t, "Mina Sato", view.PatientName)
	require.NotNil(t, view.PatientAge)
	assert.Equal(t, "58", *view.PatientAge)
	require.NotNil(t, view.PatientGender)
	assert.Equal(t, "female", *view.PatientGender)
	assert.NotEmpty(t, view.CaseDate)
	assert.NotEmpty(t, view.GeneratedAt)

	assert.Equal(t, []string{"Radiology Agent", "Pathology Agent", "Clinical Agent", "Research Agent", "Coordinator Agent"}, view.AgentsUsed)
	assert.Equal(t, "58 year old with confirmed lung adenocarcinoma.", view.ExecutiveSummary)
	assert.Equal(t, "high", view.OverallConfidence)

	require.Len(t, view.Findings.Imaging, 1)
	assert.Equal(t, "Right upper lobe", view.Findings.Imaging[0].Title)
	assert.Equal(t, "radiology", view.Findings.Imaging[0].SourceAgent)

	// Biomarkers split out of the pathology bucket.
	require.Len(t, view.Findings.Pathology, 1)
	assert.Equal(t, "Histological Diagnosis", view.Findings.Pathology[0].Title)
	require.Len(t, view.Findings.Biomarkers, 1)
	assert.Equal(t, "PD-L1", view.Findings.Biomarkers[0].Title)

	require.Len(t, view.Findings.Clinical, 1)
	assert.Equal(t, "ECOG Performance Status", view.Findings.Clinical[0].Title)

	require.Len(t, view.Recommendations.Treatment, 1)
	assert.Equal(t, "Osimertinib", view.Recommendations.Treatment[0].Text)
	assert.Equal(t, "high", view.Recommendations.Treatment[0].Priority)
	require.Len(t, view.ClinicalTrials, 1)
	assert.Equal(t, "TRIAL-1", view.ClinicalTrials[0].Name)
	assert.Equal(t, "NCT000001", view.ClinicalTrials[0].Source)
	assert.Equal(t, "Stage IV NSCLC", view.ClinicalTrials[0].Eligibility)
	require.Len(t, view.Recommendations.Other, 1)
	assert.Equal(t, "additional", view.Recommendations.Other[0].Category)

	assert.Equal(t, []string{"Staging incomplete"}, view.Warnings)

	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, []string{"radiology", "pathology"}, view.Conflicts[0].AgentsInvolved)
	require.NotNil(t, view.Staging.TNMStaging)
	assert.Equal(t, "cT2aN0M0", *view.Staging.TNMStaging)
	require.NotNil(t, view.Staging.ClinicalStage)
	assert.Equal(t, "Stage IB", *view.Staging.ClinicalStage)
	assert.Nil(t, view.Staging.PathologicalStage)

	assert.GreaterOrEqual(t, view.ProcessingTimeSeconds, 0.0)

	require.NotNil(t, view.Orchestration)
	assert.Equal(t, "local", view.Orchestration.Mode)
	assert.False(t, view.Orchestration.AzureEnabled)
	assert.Nil(t, view.Orchestration.AzureStatus)
}

func TestRunnerResearchSeesCombinedSummary(t *testing.T) {
	fake := &fakeLLM{replies: happyPathReplies()}
	runner := NewRunner(fake, runnerConfig(), nil, testLogger())

	runner.Run(context.Background(), fullRunInput())

	prompt := fake.requestFor(t, "res-m").Messages[0].Content
	assert.Contains(t, prompt, "IMAGING: Single lung mass.")
	assert.Contains(t, prompt, "  - Right upper lobe: 3.2")
	assert.Contains(t, prompt, "PATHOLOGY: Adenocarcinoma confirmed.")
	assert.Contains(t, prompt, "CLINICAL: Fit for treatment.")
	// Raw specialist outputs ride along as additional context.
	assert.Contains(t, prompt, `"agent_type":"radiology"`)

	coordPrompt := fake.requestFor(t, "coord-m").Messages[0].Content
	assert.Contains(t, coordPrompt, `"radiology": {`)
	assert.Contains(t, coordPrompt, `"research": {`)
}

func TestRunnerSkipsAgentsWithoutText(t *testing.T) {
	fake := &fakeLLM{replies: happyPathReplies()}
	runner := NewRunner(fake, runnerConfig(), nil, testLogger())

	in := fullRunInput()
	in.PathologyText = ""
	view := runner.Run(context.Background(), in)

	assert.Zero(t, fake.callCount("path-m"))
	assert.Equal(t, []string{"Radiology Agent", "Clinical Agent", "Research Agent", "Coordinator Agent"}, view.AgentsUsed)
	assert.Empty(t, view.Findings.Pathology)
	assert.Empty(t, view.Findings.Biomarkers)

	// A skipped specialist shows up as null downstream, not as a failure.
	prompt := fake.requestFor(t, "res-m").Messages[0].Content
	assert.Contains(t, prompt, `"pathology":null`)
	assert.NotContains(t, prompt, "PATHOLOGY:")
	coordPrompt := fake.requestFor(t, "coord-m").Messages[0].Content
	assert.Contains(t, coordPrompt, `"pathology": null`)
}

func TestRunnerIsolatesAgentFailure(t *testing.T) {
	fake := &fakeLLM{
		replies: happyPathReplies(),
		errs:    map[string]error{"path-m": errors.New("pathology model down")},
	}
	runner := NewRunner(fake, runnerConfig(), nil, testLogger())

	view := runner.Run(context.Background(), fullRunInput())

	assert.NotContains(t, view.AgentsUsed, "Pathology Agent")
	assert.Contains(t, view.AgentsUsed, "Radiology Agent")
	assert.Contains(t, view.AgentsUsed, "Coordinator Agent")
	assert.Empty(t, view.Findings.Pathology)
	assert.Contains(t, view.Warnings, "Agent failed: pathology model down")
	assert.Equal(t, "high", view.OverallConfidence)

	// Failed agents drop out of the research summary.
	prompt := fake.requestFor(t, "res-m").Messages[0].Content
	assert.NotContains(t, prompt, "PATHOLOGY:")
	assert.Contains(t, prompt, "IMAGING:")
}

func TestRunnerCoordinatorFailure(t *testing.T) {
	replies := happyPathReplies()
	delete(replies, "coord-m")
	fake := &fakeLLM{
		replies: replies,
		errs:    map[string]error{"coord-m": errors.New("synthesis failed")},
	}
	runner := NewRunner(fake, runnerConfig(), nil, testLogger())

	view := runner.Run(context.Background(), fullRunInput())

	assert.Empty(t, view.ExecutiveSummary)
	assert.Equal(t, "none", view.OverallConfidence)
	assert.Contains(t, view.AgentsUsed, "Coordinator Agent")
	assert.Contains(t, view.Warnings, "Agent failed: synthesis failed")
	// Specialist findings survive a failed synthesis.
	assert.Len(t, view.Findings.Imaging, 1)
}

// blockingLLM parks until the request context expires, standing in for a
// model that never answers.
type blockingLLM struct{}

func (blockingLLM) Chat(ctx context.Context, _ llm.ChatRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunnerAgentTimeout(t *testing.T) {
	cfg := runnerConfig()
	cfg.AgentTimeout = 20 * time.Millisecond
	runner := NewRunner(blockingLLM{}, cfg, nil, testLogger())

	in := fullRunInput()
	in.PathologyText = ""
	in.ClinicalText = ""
	view := runner.Run(context.Background(), in)

	assert.NotContains(t, view.AgentsUsed, "Radiology Agent")
	assert.Contains(t, view.Warnings, "Agent failed: context deadline exceeded")
}

func TestRunnerDefaults(t *testing.T) {
	runner := NewRunner(&fakeLLM{}, Config{}, nil, nil)
	assert.Equal(t, DefaultAgentTimeout, runner.agentTimeout)
	assert.NotNil(t, runner.logger)
	assert.NotNil(t, runner.sem)
}
