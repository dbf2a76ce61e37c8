package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/model"
)

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityCritical, model.ParseSeverity("critical"))
	assert.Equal(t, model.SeverityHigh, model.ParseSeverity("HIGH"))
	assert.Equal(t, model.SeverityInformational, model.ParseSeverity("info"))
	assert.Equal(t, model.SeverityHigh, model.ParseSeverity("Severe"))
	assert.Equal(t, model.SeverityModerate, model.ParseSeverity("mild-ish"), "unknown values default to moderate")
	assert.Equal(t, model.SeverityModerate, model.ParseSeverity(""))
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, model.ConfidenceHigh, model.ParseConfidence("High"))
	assert.Equal(t, model.ConfidenceLow, model.ParseConfidence("low"))
	assert.Equal(t, model.ConfidenceMedium, model.ParseConfidence("very_low"), "unknown values default to medium")
	assert.Equal(t, model.ConfidenceMedium, model.ParseConfidence("moderate"))
}

func TestTumorBoardView_WireShape(t *testing.T) {
	view := model.TumorBoardView{
		PatientID:   "p-1",
		PatientName: "Jane Roe",
		Findings: model.ViewFindings{
			Imaging: []model.TumorBoardFinding{
				{Category: "tumor", Title: "Right lung mass", Value: "3.2", Severity: "high", SourceAgent: "radiology"},
			},
		},
		OverallConfidence: "medium",
	}

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	staging, ok := decoded["staging"].(map[string]any)
	require.True(t, ok, "staging must be a nested object")
	for _, key := range []string{"clinical_stage", "pathological_stage", "tnm_staging"} {
		v, present := staging[key]
		require.True(t, present)
		assert.Nil(t, v, "unstated staging stays null")
	}

	findings, ok := decoded["findings"].(map[string]any)
	require.True(t, ok, "findings must be grouped by category")
	for _, key := range []string{"imaging", "pathology", "clinical", "biomarkers"} {
		_, present := findings[key]
		assert.True(t, present, "findings group %q must be present", key)
	}

	recs, ok := decoded["recommendations"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"treatment", "imaging", "other"} {
		_, present := recs[key]
		assert.True(t, present, "recommendation group %q must be present", key)
	}

	// Cleaner-attached fields stay out of the raw runner output.
	_, present := decoded["diagnostic_status"]
	assert.False(t, present)
	_, present = decoded["confidence_score"]
	assert.False(t, present)
}

func TestMergedFinding_FlattensIntoOneObject(t *testing.T) {
	f := model.MergedFinding{
		MedicalFinding: model.MedicalFinding{TestName: "Hemoglobin", Value: "6.2"},
		SourcePage:     2,
	}

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "Hemoglobin", decoded["test_name"])
	assert.Equal(t, float64(2), decoded["source_page"])
	_, nested := decoded["MedicalFinding"]
	assert.False(t, nested, "embedded finding must flatten")
}

func TestAgentOutput_FailureShape(t *testing.T) {
	out := model.AgentOutput{
		AgentType:  model.AgentRadiology,
		AgentName:  "Radiology Agent",
		Success:    false,
		Error:      ptr("Failed to parse JSON response"),
		Confidence: model.ConfidenceNone,
		Warnings:   []string{"Agent failed: Failed to parse JSON response"},
	}

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"confidence":"none"`)
	assert.Contains(t, string(raw), `"success":false`)
}
