package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/model"
)

func page(number int, confidence float64, findings ...model.MedicalFinding) model.PageAnalysis {
	return model.PageAnalysis{
		PageNumber:           number,
		Findings:             findings,
		ExtractionConfidence: confidence,
	}
}

func TestMergeNoPages(t *testing.T) {
	merged := Merge(nil)

	assert.Empty(t, merged.AllFindings)
	assert.Empty(t, merged.Diagnoses)
	assert.Empty(t, merged.Recommendations)
	assert.Empty(t, merged.MergeWarnings)
	assert.Zero(t, merged.AggregateConfidence)
	assert.Nil(t, merged.PatientIdentity.Name)
}

func TestMergeIdentityFirstNonEmptyWins(t *testing.T) {
	p1 := page(1, 0.9)
	p1.PatientIdentity.Gender = strPtr("M")
	p2 := page(2, 0.9)
	p2.PatientIdentity.Name = strPtr("John Smith")
	p2.PatientIdentity.Gender = strPtr("F")
	p3 := page(3, 0.9)
	p3.PatientIdentity.Name = strPtr("Jane Doe")
	p3.ReportMetadata.LabName = strPtr("City Lab")

	merged := Merge([]model.PageAnalysis{p1, p2, p3})

	require.NotNil(t, merged.PatientIdentity.Name)
	assert.Equal(t, "John Smith", *merged.PatientIdentity.Name)
	assert.Equal(t, "M", *merged.PatientIdentity.Gender)
	assert.Equal(t, "City Lab", *merged.ReportMetadata.LabName)
}

func TestMergeDeduplicatesByNormalizedName(t *testing.T) {
	f1 := model.MedicalFinding{TestName: "Hemoglobin", Value: "13.2", Unit: strPtr("g/dL")}
	f2 := model.MedicalFinding{TestName: "  hemoglobin ", Value: "12.9", Unit: strPtr("g/dL")}

	merged := Merge([]model.PageAnalysis{page(1, 0.9, f1), page(2, 0.8, f2)})

	require.Len(t, merged.AllFindings, 1)
	assert.Equal(t, "13.2", merged.AllFindings[0].Value)
	assert.Equal(t, 1, merged.AllFindings[0].SourcePage)
	assert.Empty(t, merged.MergeWarnings)
}

func TestMergeReplacesOnHigherConfidence(t *testing.T) {
	f1 := model.MedicalFinding{TestName: "Hemoglobin", Value: "12.9", Unit: strPtr("g/dL")}
	f2 := model.MedicalFinding{TestName: "Hemoglobin", Value: "13.2", Unit: strPtr("g/dL")}

	merged := Merge([]model.PageAnalysis{page(1, 0.5, f1), page(2, 0.9, f2)})

	require.Len(t, merged.AllFindings, 1)
	assert.Equal(t, "13.2", merged.AllFindings[0].Value)
	assert.Equal(t, 2, merged.AllFindings[0].SourcePage)
	require.Len(t, merged.MergeWarnings, 1)
	assert.Equal(t, "Replaced 'Hemoglobin' from page 1 with page 2 (higher confidence)", merged.MergeWarnings[0])
}

func TestMergeEqualConfidenceKeepsEarlierPage(t *testing.T) {
	f1 := model.MedicalFinding{TestName: "WBC", Value: "7.1"}
	f2 := model.MedicalFinding{TestName: "WBC", Value: "9.9"}

	merged := Merge([]model.PageAnalysis{page(1, 0.8, f1), page(2, 0.8, f2)})

	require.Len(t, merged.AllFindings, 1)
	assert.Equal(t, "7.1", merged.AllFindings[0].Value)
	assert.Equal(t, 1, merged.AllFindings[0].SourcePage)
	assert.Empty(t, merged.MergeWarnings)
}

func TestMergeUnitConflictWarns(t *testing.T) {
	f1 := model.MedicalFinding{TestName: "Hemoglobin", Value: "13.2", Unit: strPtr("g/dL")}
	f2 := model.MedicalFinding{TestName: "Hemoglobin", Value: "132", Unit: strPtr("g/L")}

	merged := Merge([]model.PageAnalysis{page(1, 0.9, f1), page(2, 0.7, f2)})

	require.Len(t, merged.MergeWarnings, 1)
	assert.Equal(t, "Unit conflict for 'Hemoglobin': 'g/dL' (page 1) vs 'g/L' (page 2)", merged.MergeWarnings[0])
	// Lower confidence does not replace, conflict or not.
	assert.Equal(t, "13.2", merged.AllFindings[0].Value)
}

func TestMergeKeepsFindingsWithoutNames(t *testing.T) {
	loose1 := model.MedicalFinding{TestName: "", Value: "5.5"}
	named := model.MedicalFinding{TestName: "WBC", Value: "7.1"}
	loose2 := model.MedicalFinding{TestName: "  ", Value: "8.8"}

	merged := Merge([]model.PageAnalysis{page(1, 0.9, loose1, named), page(2, 0.9, loose2)})

	// Unnamed findings come first in encounter order, then the
	// deduplicated ones.
	require.Len(t, merged.AllFindings, 3)
	assert.Equal(t, "5.5", merged.AllFindings[0].Value)
	assert.Equal(t, 1, merged.AllFindings[0].SourcePage)
	assert.Equal(t, "8.8", merged.AllFindings[1].Value)
	assert.Equal(t, 2, merged.AllFindings[1].SourcePage)
	assert.Equal(t, "WBC", merged.AllFindings[2].TestName)
}

func TestMergeDiagnosesAndRecommendations(t *testing.T) {
	p1 := page(1, 0.9)
	p1.Diagnosis = strPtr("Iron deficiency anemia")
	p1.Recommendations = []string{"Repeat CBC in 2 weeks", ""}
	p2 := page(2, 0.9)
	p2.Diagnosis = strPtr("Iron deficiency anemia")
	p2.Recommendations = []string{"Repeat CBC in 2 weeks", "Iron studies"}
	p3 := page(3, 0.9)
	p3.Diagnosis = strPtr("")

	merged := Merge([]model.PageAnalysis{p1, p2, p3})

	assert.Equal(t, []string{"Iron deficiency anemia"}, merged.Diagnoses)
	assert.Equal(t, []string{"Repeat CBC in 2 weeks", "Iron studies"}, merged.Recommendations)
}

func TestMergeAggregateConfidenceIgnoresZeroPages(t *testing.T) {
	merged := Merge([]model.PageAnalysis{page(1, 0.8), page(2, 0), page(3, 0.7)})
	assert.InDelta(t, 0.75, merged.AggregateConfidence, 1e-9)

	merged = Merge([]model.PageAnalysis{page(1, 0)})
	assert.Zero(t, merged.AggregateConfidence)
}
