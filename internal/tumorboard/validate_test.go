package tumorboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/model"
)

func vf(category, title, value string) model.TumorBoardFinding {
	return model.TumorBoardFinding{Category: category, Title: title, Value: value}
}

func completeFindings() model.ViewFindings {
	return model.ViewFindings{
		Imaging: []model.TumorBoardFinding{vf("tumor", "Right lung", "3.2 cm")},
		Pathology: []model.TumorBoardFinding{
			vf("diagnosis", "Histological Diagnosis", "Invasive ductal carcinoma"),
		},
		Clinical: []model.TumorBoardFinding{
			vf("lab", "Hemoglobin", "12.1"),
			vf("lab", "WBC", "6200"),
			vf("lab", "Platelets", "280000"),
		},
		Biomarkers: []model.TumorBoardFinding{},
	}
}

func TestValidateCompleteCase(t *testing.T) {
	staging := model.ViewStaging{TNMStaging: strPtr("T2N1M0")}

	v := Validate(completeFindings(), staging)

	assert.True(t, v.SafeForTreatmentRecs)
	assert.InDelta(t, 1.0, v.DataCompletenessScore, 1e-9)
	assert.Equal(t, StatusReadyForReview, v.Status)
	assert.Empty(t, v.MissingCriticalData)
	assert.Empty(t, v.Warnings)
	assert.Empty(t, v.ComplexityOverride)
}

func TestValidateEmptyCase(t *testing.T) {
	v := Validate(model.ViewFindings{}, model.ViewStaging{})

	assert.False(t, v.SafeForTreatmentRecs)
	assert.InDelta(t, 0.0, v.DataCompletenessScore, 1e-9)
	assert.Equal(t, StatusWorkupRequired, v.Status)
	assert.Equal(t, []string{
		"Confirmed pathological diagnosis",
		"Imaging/radiology data",
		"Cancer staging (TNM)",
		"Pathology confirmation",
		"Complete laboratory workup",
	}, v.MissingCriticalData)
	assert.Equal(t, []string{
		"⚠️ No imaging data available. Imaging required before tumor board conclusions.",
		"⚠️ Diagnosis pending. Treatment recommendations are preliminary only.",
		"⚠️ Pathology confirmation required before treatment initiation.",
		"⚠️ Staging data incomplete. Cannot determine treatment eligibility.",
	}, v.Warnings)
}

func TestValidatePartialScore(t *testing.T) {
	findings := model.ViewFindings{
		Imaging: []model.TumorBoardFinding{vf("tumor", "Mass", "present")},
		Clinical: []model.TumorBoardFinding{
			vf("lab", "Hemoglobin", "12.1"),
			vf("lab", "WBC", "6200"),
			vf("lab", "Creatinine", "0.9"),
		},
	}

	v := Validate(findings, model.ViewStaging{})

	// Imaging 0.20 plus labs 0.15.
	assert.InDelta(t, 0.35, v.DataCompletenessScore, 1e-9)
	assert.Equal(t, StatusPendingConfirmation, v.Status)
	assert.False(t, v.SafeForTreatmentRecs)
	assert.Equal(t, []string{
		"Confirmed pathological diagnosis",
		"Cancer staging (TNM)",
		"Pathology confirmation",
	}, v.MissingCriticalData)
}

func TestStatusBoundaries(t *testing.T) {
	assert.Equal(t, StatusWorkupRequired, statusFor(0.29))
	assert.Equal(t, StatusPendingConfirmation, statusFor(0.3))
	assert.Equal(t, StatusPendingConfirmation, statusFor(0.49))
	assert.Equal(t, StatusPreliminary, statusFor(0.5))
	assert.Equal(t, StatusPreliminary, statusFor(0.69))
	assert.Equal(t, StatusReadyForReview, statusFor(0.7))
}

func TestValidateCriticalLabEscalation(t *testing.T) {
	findings := model.ViewFindings{
		Clinical: []model.TumorBoardFinding{
			vf("lab", "Hemoglobin", "6.5 g/dL"),
			vf("lab", "Platelet count", "20000"),
			vf("lab", "WBC", "60000"),
			vf("lab", "Neutrophil count", "400"),
			vf("lab", "Creatinine", "3.5 mg/dL"),
		},
	}

	v := Validate(findings, model.ViewStaging{})

	assert.Equal(t, "high", v.ComplexityOverride)
	require.GreaterOrEqual(t, len(v.Warnings), 5)
	assert.Equal(t, "⚠️ CRITICAL: Severe anemia (Hgb 6.5 g/dL)", v.Warnings[0])
	assert.Equal(t, "⚠️ CRITICAL: Severe thrombocytopenia (Plt 20000)", v.Warnings[1])
	assert.Equal(t, "⚠️ CRITICAL: Leukocytosis (WBC 60000)", v.Warnings[2])
	assert.Equal(t, "⚠️ CRITICAL: Severe neutropenia (ANC 400)", v.Warnings[3])
	assert.Equal(t, "⚠️ CRITICAL: Renal impairment (Creatinine 3.5 mg/dL)", v.Warnings[4])
	// Standard completeness warnings follow the critical ones.
	assert.Contains(t, v.Warnings[5:], "⚠️ Diagnosis pending. Treatment recommendations are preliminary only.")
}

func TestValidateSevereLeukopenia(t *testing.T) {
	findings := model.ViewFindings{
		Clinical: []model.TumorBoardFinding{vf("lab", "WBC", "800")},
	}
	v := Validate(findings, model.ViewStaging{})
	assert.Equal(t, "⚠️ CRITICAL: Severe leukopenia (WBC 800)", v.Warnings[0])
	assert.Equal(t, "high", v.ComplexityOverride)
}

func TestValidateIgnoresNonNumericValues(t *testing.T) {
	findings := model.ViewFindings{
		Clinical: []model.TumorBoardFinding{vf("lab", "Hemoglobin", "pending")},
	}
	v := Validate(findings, model.ViewStaging{})
	assert.Empty(t, v.ComplexityOverride)
	for _, w := range v.Warnings {
		assert.NotContains(t, w, "CRITICAL")
	}
}

func TestDiagnosisConfirmed(t *testing.T) {
	path := func(value string) model.ViewFindings {
		return model.ViewFindings{Pathology: []model.TumorBoardFinding{vf("diagnosis", "Diagnosis", value)}}
	}

	assert.True(t, diagnosisConfirmed(path("Invasive ductal carcinoma")))
	assert.True(t, diagnosisConfirmed(path("Suspected lymphoma")))
	assert.False(t, diagnosisConfirmed(path("blood")))
	assert.False(t, diagnosisConfirmed(path("unknown")))
	assert.False(t, diagnosisConfirmed(path("Chronic inflammation")))
	assert.False(t, diagnosisConfirmed(path("")))

	// Only pathology findings with the diagnosis category count.
	other := model.ViewFindings{Pathology: []model.TumorBoardFinding{vf("grade", "Grade", "carcinoma")}}
	assert.False(t, diagnosisConfirmed(other))
}

func TestStagingAvailable(t *testing.T) {
	assert.True(t, stagingAvailable(model.ViewFindings{}, model.ViewStaging{ClinicalStage: strPtr("Stage II")}))

	withFinding := model.ViewFindings{
		Pathology: []model.TumorBoardFinding{vf("staging", "TNM Stage", "T2N0M0")},
	}
	assert.True(t, stagingAvailable(withFinding, model.ViewStaging{}))

	pendingStage := model.ViewFindings{
		Clinical: []model.TumorBoardFinding{vf("staging", "Stage", "pending")},
	}
	assert.False(t, stagingAvailable(pendingStage, model.ViewStaging{}))

	// Imaging findings never satisfy staging.
	imagingOnly := model.ViewFindings{
		Imaging: []model.TumorBoardFinding{vf("tumor", "T2 lesion", "T2N0M0")},
	}
	assert.False(t, stagingAvailable(imagingOnly, model.ViewStaging{}))
}

func TestDetectDiseaseCategory(t *testing.T) {
	none := model.ViewFindings{}

	assert.Equal(t, "breast", DetectDiseaseCategory(none, "Invasive breast carcinoma"))
	assert.Equal(t, "lung", DetectDiseaseCategory(none, "Pulmonary adenocarcinoma"))
	assert.Equal(t, "colorectal", DetectDiseaseCategory(none, "Rectal cancer"))
	assert.Equal(t, "hematologic", DetectDiseaseCategory(none, "Acute myeloid leukemia"))
	assert.Equal(t, "prostate", DetectDiseaseCategory(none, "Prostate adenocarcinoma"))
	assert.Equal(t, "ovarian", DetectDiseaseCategory(none, "Ovarian serous carcinoma"))
	assert.Equal(t, "melanoma", DetectDiseaseCategory(none, "Cutaneous melanoma, skin"))
	assert.Equal(t, "unknown", DetectDiseaseCategory(none, "Glioblastoma"))

	hemeLabs := model.ViewFindings{Clinical: []model.TumorBoardFinding{
		vf("lab", "WBC", "55"),
		vf("lab", "Hemoglobin", "7.1"),
		vf("lab", "Platelet count", "32000"),
	}}
	assert.Equal(t, "hematologic", DetectDiseaseCategory(hemeLabs, ""))

	twoLabs := model.ViewFindings{Clinical: []model.TumorBoardFinding{
		vf("lab", "WBC", "55"),
		vf("lab", "Hemoglobin", "7.1"),
	}}
	assert.Equal(t, "unknown", DetectDiseaseCategory(twoLabs, ""))
}

func TestFilterBiomarkers(t *testing.T) {
	markers := []model.TumorBoardFinding{
		vf("biomarker", "EGFR mutation", "Exon 19 deletion"),
		vf("biomarker", "ER", "Positive"),
		vf("biomarker", "LDH", "Elevated"),
	}

	lung := FilterBiomarkers(markers, "lung")
	require.Len(t, lung, 2)
	assert.Equal(t, "EGFR mutation", lung[0].Title)
	assert.Equal(t, "LDH", lung[1].Title)

	// Unknown or unmapped diseases keep everything.
	assert.Len(t, FilterBiomarkers(markers, "unknown"), 3)
	assert.Len(t, FilterBiomarkers(markers, "gastric"), 3)

	assert.Empty(t, FilterBiomarkers(nil, "lung"))
}

func TestSanitizeRecommendations(t *testing.T) {
	recs := []model.TumorBoardRecommendation{
		{Category: "treatment", Text: "Start FOLFOX chemotherapy"},
		{Category: "imaging", Text: "Staging CT chest/abdomen/pelvis"},
		{Category: "treatment", Text: "Confirm diagnosis with core biopsy"},
	}

	safe := ValidationResult{SafeForTreatmentRecs: true}
	assert.Equal(t, recs, SanitizeRecommendations(recs, safe))

	unsafe := ValidationResult{SafeForTreatmentRecs: false}
	out := SanitizeRecommendations(recs, unsafe)
	require.Len(t, out, 2)
	assert.Equal(t, "imaging", out[0].Category)
	// Diagnostic intent survives under a new category.
	assert.Equal(t, "diagnostic", out[1].Category)
	assert.Equal(t, "Confirm diagnosis with core biopsy", out[1].Text)
}
