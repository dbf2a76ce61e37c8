package tumorboard

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/chartmed-ai/karte/internal/model"
)

// Assessment is the evidence-based confidence for a view. It always
// replaces whatever the models reported about themselves.
type Assessment struct {
	Level         string             `json:"level"`
	Score         float64            `json:"score"`
	Factors       map[string]float64 `json:"factors"`
	Justification string             `json:"justification"`
}

var factorNames = []string{"diagnosis", "imaging", "staging", "biomarkers", "labs"}

// CalculateConfidence scores the evidence behind a view: diagnosis quality
// 30%, imaging coverage 20%, staging 20%, biomarkers 15%, labs 15%.
func CalculateConfidence(findings model.ViewFindings, staging model.ViewStaging) Assessment {
	factors := map[string]float64{
		"diagnosis":  round2(assessDiagnosis(findings) * 0.30),
		"imaging":    round2(assessImaging(findings) * 0.20),
		"staging":    round2(assessStaging(findings, staging) * 0.20),
		"biomarkers": round2(assessBiomarkers(findings) * 0.15),
		"labs":       round2(assessLabs(findings) * 0.15),
	}

	total := factors["diagnosis"] + factors["imaging"] + factors["staging"] + factors["biomarkers"] + factors["labs"]

	var level string
	switch {
	case total < 0.30:
		level = "very_low"
	case total < 0.50:
		level = "low"
	case total < 0.70:
		level = "moderate"
	default:
		level = "high"
	}

	return Assessment{
		Level:         level,
		Score:         round2(total),
		Factors:       factors,
		Justification: justification(factors, level),
	}
}

// assessDiagnosis rates the specificity of the pathological diagnosis: a
// named malignancy scores full, vaguer malignant language 0.7, any other
// concrete value 0.4.
func assessDiagnosis(findings model.ViewFindings) float64 {
	score := 0.0
	for _, f := range findings.Pathology {
		if strings.ToLower(f.Category) != "diagnosis" {
			continue
		}
		value := strings.TrimSpace(strings.ToLower(f.Value))
		if value == "" {
			continue
		}
		switch {
		case containsAny(value, []string{"carcinoma", "adenocarcinoma", "lymphoma", "leukemia", "sarcoma"}):
			return 1.0
		case containsAny(value, []string{"malignant", "neoplasm", "tumor"}):
			score = math.Max(score, 0.7)
		case !slices.Contains([]string{"unknown", "pending", "string", "n/a", ""}, value):
			score = math.Max(score, 0.4)
		}
	}
	return score
}

func assessImaging(findings model.ViewFindings) float64 {
	switch n := len(findings.Imaging); {
	case n >= 5:
		return 1.0
	case n >= 3:
		return 0.8
	case n >= 1:
		return 0.5
	}
	return 0.0
}

func assessStaging(findings model.ViewFindings, staging model.ViewStaging) float64 {
	score := 0.0
	if deref(staging.TNMStaging) != "" {
		score += 0.4
	}
	if deref(staging.ClinicalStage) != "" {
		score += 0.3
	}
	if deref(staging.PathologicalStage) != "" {
		score += 0.3
	}

	for _, list := range [][]model.TumorBoardFinding{findings.Pathology, findings.Clinical} {
		for _, f := range list {
			title := strings.ToLower(f.Title)
			if !strings.Contains(title, "stage") && !strings.Contains(title, "tnm") {
				continue
			}
			if f.Value != "" && !slices.Contains([]string{"unknown", "pending", ""}, strings.ToLower(f.Value)) {
				score = math.Min(1.0, score+0.3)
			}
		}
	}
	return math.Min(1.0, score)
}

func assessBiomarkers(findings model.ViewFindings) float64 {
	valid := 0
	for _, b := range findings.Biomarkers {
		value := strings.TrimSpace(strings.ToLower(b.Value))
		if !slices.Contains(placeholderValues, value) {
			valid++
		}
	}
	switch {
	case valid >= 4:
		return 1.0
	case valid >= 2:
		return 0.7
	case valid >= 1:
		return 0.4
	}
	return 0.0
}

func assessLabs(findings model.ViewFindings) float64 {
	labs := 0
	valid := 0
	for _, f := range findings.Clinical {
		if f.Category != "lab" {
			continue
		}
		labs++
		value := strings.TrimSpace(f.Value)
		if value != "" && !slices.Contains([]string{"none", "n/a", "null", ""}, strings.ToLower(value)) {
			valid++
		}
	}
	if labs == 0 {
		return 0.0
	}
	switch {
	case valid >= 10:
		return 1.0
	case valid >= 5:
		return 0.7
	case valid >= 2:
		return 0.4
	}
	return 0.2
}

func justification(factors map[string]float64, level string) string {
	switch level {
	case "very_low":
		weak := weakFactors(factors)
		missing := "multiple factors"
		if len(weak) > 0 {
			missing = strings.Join(weak, ", ")
		}
		return fmt.Sprintf("Insufficient data for reliable conclusions. Missing: %s.", missing)
	case "low":
		return "Major data gaps present. Requires additional workup before treatment decisions."
	case "moderate":
		return "Some data gaps exist. Recommendations are preliminary pending complete workup."
	}
	return "Sufficient evidence available for tumor board review."
}

// weakFactors lists factors scoring under 0.1, weakest first.
func weakFactors(factors map[string]float64) []string {
	names := make([]string, len(factorNames))
	copy(names, factorNames)
	sort.SliceStable(names, func(i, j int) bool { return factors[names[i]] < factors[names[j]] })

	var weak []string
	for _, n := range names {
		if factors[n] < 0.1 {
			weak = append(weak, n)
		}
	}
	return weak
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
