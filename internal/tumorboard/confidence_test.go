package tumorboard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chartmed-ai/karte/internal/model"
)

func TestCalculateConfidenceFullEvidence(t *testing.T) {
	findings := model.ViewFindings{
		Imaging: []model.TumorBoardFinding{
			vf("tumor", "Mass 1", "a"), vf("tumor", "Mass 2", "b"), vf("tumor", "Mass 3", "c"),
			vf("tumor", "Mass 4", "d"), vf("tumor", "Mass 5", "e"),
		},
		Pathology: []model.TumorBoardFinding{vf("diagnosis", "Diagnosis", "Adenocarcinoma of the colon")},
		Biomarkers: []model.TumorBoardFinding{
			vf("biomarker", "KRAS", "Wild type"), vf("biomarker", "NRAS", "Wild type"),
			vf("biomarker", "BRAF", "V600E"), vf("biomarker", "MSI", "Stable"),
		},
	}
	for i := 0; i < 10; i++ {
		findings.Clinical = append(findings.Clinical, vf("lab", fmt.Sprintf("Lab %d", i), "5.0"))
	}
	staging := model.ViewStaging{
		TNMStaging:        strPtr("T3N1M0"),
		ClinicalStage:     strPtr("Stage III"),
		PathologicalStage: strPtr("Stage IIIa"),
	}

	a := CalculateConfidence(findings, staging)

	assert.Equal(t, "high", a.Level)
	assert.InDelta(t, 1.0, a.Score, 1e-9)
	assert.InDelta(t, 0.30, a.Factors["diagnosis"], 1e-9)
	assert.InDelta(t, 0.20, a.Factors["imaging"], 1e-9)
	assert.InDelta(t, 0.20, a.Factors["staging"], 1e-9)
	assert.InDelta(t, 0.15, a.Factors["biomarkers"], 1e-9)
	assert.InDelta(t, 0.15, a.Factors["labs"], 1e-9)
	assert.Equal(t, "Sufficient evidence available for tumor board review.", a.Justification)
}

func TestCalculateConfidenceEmpty(t *testing.T) {
	a := CalculateConfidence(model.ViewFindings{}, model.ViewStaging{})

	assert.Equal(t, "very_low", a.Level)
	assert.InDelta(t, 0.0, a.Score, 1e-9)
	assert.Equal(t, "Insufficient data for reliable conclusions. Missing: diagnosis, imaging, staging, biomarkers, labs.", a.Justification)
}

func TestCalculateConfidenceLevels(t *testing.T) {
	// Diagnosis plus a single imaging finding lands at 0.40.
	low := model.ViewFindings{
		Imaging:   []model.TumorBoardFinding{vf("tumor", "Mass", "present")},
		Pathology: []model.TumorBoardFinding{vf("diagnosis", "Diagnosis", "Lymphoma")},
	}
	a := CalculateConfidence(low, model.ViewStaging{})
	assert.Equal(t, "low", a.Level)
	assert.InDelta(t, 0.40, a.Score, 1e-9)
	assert.Equal(t, "Major data gaps present. Requires additional workup before treatment decisions.", a.Justification)

	// Adding full imaging and a biomarker crosses into moderate.
	moderate := model.ViewFindings{
		Imaging: []model.TumorBoardFinding{
			vf("tumor", "A", "a"), vf("tumor", "B", "b"), vf("tumor", "C", "c"),
			vf("tumor", "D", "d"), vf("tumor", "E", "e"),
		},
		Pathology:  []model.TumorBoardFinding{vf("diagnosis", "Diagnosis", "Lymphoma")},
		Biomarkers: []model.TumorBoardFinding{vf("biomarker", "CD20", "Positive")},
	}
	a = CalculateConfidence(moderate, model.ViewStaging{})
	assert.Equal(t, "moderate", a.Level)
	assert.InDelta(t, 0.56, a.Score, 1e-9)
	assert.Equal(t, "Some data gaps exist. Recommendations are preliminary pending complete workup.", a.Justification)
}

func TestAssessDiagnosisTiers(t *testing.T) {
	path := func(value string) model.ViewFindings {
		return model.ViewFindings{Pathology: []model.TumorBoardFinding{vf("diagnosis", "Diagnosis", value)}}
	}

	assert.InDelta(t, 1.0, assessDiagnosis(path("Acute leukemia")), 1e-9)
	assert.InDelta(t, 0.7, assessDiagnosis(path("Malignant neoplasm of unknown origin")), 1e-9)
	assert.InDelta(t, 0.4, assessDiagnosis(path("Chronic gastritis")), 1e-9)
	assert.InDelta(t, 0.0, assessDiagnosis(path("unknown")), 1e-9)
	assert.InDelta(t, 0.0, assessDiagnosis(model.ViewFindings{}), 1e-9)

	// A named malignancy wins over weaker co-findings.
	both := model.ViewFindings{Pathology: []model.TumorBoardFinding{
		vf("diagnosis", "Diagnosis", "Suspicious cells"),
		vf("diagnosis", "Diagnosis", "Sarcoma"),
	}}
	assert.InDelta(t, 1.0, assessDiagnosis(both), 1e-9)
}

func TestAssessImaging(t *testing.T) {
	build := func(n int) model.ViewFindings {
		f := model.ViewFindings{}
		for i := 0; i < n; i++ {
			f.Imaging = append(f.Imaging, vf("tumor", "x", "y"))
		}
		return f
	}
	assert.InDelta(t, 0.0, assessImaging(build(0)), 1e-9)
	assert.InDelta(t, 0.5, assessImaging(build(1)), 1e-9)
	assert.InDelta(t, 0.8, assessImaging(build(3)), 1e-9)
	assert.InDelta(t, 1.0, assessImaging(build(5)), 1e-9)
}

func TestAssessStaging(t *testing.T) {
	assert.InDelta(t, 0.4, assessStaging(model.ViewFindings{}, model.ViewStaging{TNMStaging: strPtr("T1N0M0")}), 1e-9)
	assert.InDelta(t, 0.3, assessStaging(model.ViewFindings{}, model.ViewStaging{ClinicalStage: strPtr("Stage I")}), 1e-9)

	withFinding := model.ViewFindings{Pathology: []model.TumorBoardFinding{vf("staging", "TNM Stage", "T2N0M0")}}
	assert.InDelta(t, 0.7, assessStaging(withFinding, model.ViewStaging{TNMStaging: strPtr("T2N0M0")}), 1e-9)
	assert.InDelta(t, 0.3, assessStaging(withFinding, model.ViewStaging{}), 1e-9)

	pending := model.ViewFindings{Clinical: []model.TumorBoardFinding{vf("staging", "Stage", "pending")}}
	assert.InDelta(t, 0.0, assessStaging(pending, model.ViewStaging{}), 1e-9)

	full := model.ViewStaging{TNMStaging: strPtr("x"), ClinicalStage: strPtr("y"), PathologicalStage: strPtr("z")}
	assert.InDelta(t, 1.0, assessStaging(withFinding, full), 1e-9)
}

func TestAssessBiomarkers(t *testing.T) {
	build := func(values ...string) model.ViewFindings {
		f := model.ViewFindings{}
		for _, v := range values {
			f.Biomarkers = append(f.Biomarkers, vf("biomarker", "marker", v))
		}
		return f
	}
	assert.InDelta(t, 0.0, assessBiomarkers(build()), 1e-9)
	assert.InDelta(t, 0.0, assessBiomarkers(build("unknown", "n/a")), 1e-9)
	assert.InDelta(t, 0.4, assessBiomarkers(build("Positive")), 1e-9)
	assert.InDelta(t, 0.7, assessBiomarkers(build("Positive", "Negative")), 1e-9)
	assert.InDelta(t, 1.0, assessBiomarkers(build("a", "b", "c", "d")), 1e-9)
}

func TestAssessLabs(t *testing.T) {
	build := func(values ...string) model.ViewFindings {
		f := model.ViewFindings{}
		for _, v := range values {
			f.Clinical = append(f.Clinical, vf("lab", "lab", v))
		}
		return f
	}
	assert.InDelta(t, 0.0, assessLabs(build()), 1e-9)
	// Labs exist but none carry a usable value.
	assert.InDelta(t, 0.2, assessLabs(build("none")), 1e-9)
	assert.InDelta(t, 0.2, assessLabs(build("5.0")), 1e-9)
	assert.InDelta(t, 0.4, assessLabs(build("5.0", "6.0")), 1e-9)
	assert.InDelta(t, 0.7, assessLabs(build("1", "2", "3", "4", "5")), 1e-9)
	assert.InDelta(t, 1.0, assessLabs(build("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")), 1e-9)

	// Non-lab clinical findings never count.
	symptoms := model.ViewFindings{Clinical: []model.TumorBoardFinding{vf("symptom", "Fatigue", "severe")}}
	assert.InDelta(t, 0.0, assessLabs(symptoms), 1e-9)
}

func TestWeakFactorsOrder(t *testing.T) {
	factors := map[string]float64{
		"diagnosis":  0.30,
		"imaging":    0.05,
		"staging":    0.0,
		"biomarkers": 0.20,
		"labs":       0.08,
	}
	assert.Equal(t, []string{"staging", "imaging", "labs"}, weakFactors(factors))
}

func TestVeryLowJustificationNamesWeakFactors(t *testing.T) {
	// Only a vague diagnosis: total 0.12, everything else at zero.
	findings := model.ViewFindings{Pathology: []model.TumorBoardFinding{vf("diagnosis", "Diagnosis", "Chronic inflammation")}}

	a := CalculateConfidence(findings, model.ViewStaging{})

	assert.Equal(t, "very_low", a.Level)
	assert.Equal(t, "Insufficient data for reliable conclusions. Missing: imaging, staging, biomarkers, labs.", a.Justification)
}
