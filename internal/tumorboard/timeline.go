package tumorboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

const (
	timelineTemperature = 0.2
	timelineTopP        = 0.9
	timelineMaxTokens   = 4096
)

// CaseSummary heads the unified view.
type CaseSummary struct {
	PatientName       *string `json:"patient_name"`
	Age               *string `json:"age"`
	Gender            *string `json:"gender"`
	PrimaryDiagnosis  *string `json:"primary_diagnosis"`
	SuspectedCategory string  `json:"suspected_category"`
	CaseComplexity    string  `json:"case_complexity"`
}

type RadiologySummary struct {
	Modality         *string  `json:"modality"`
	AnatomicalRegion *string  `json:"anatomical_region"`
	KeyFindings      []string `json:"key_findings"`
	Impression       *string  `json:"impression"`
	Limitations      *string  `json:"limitations"`
}

type PathologySummary struct {
	SpecimenType          *string  `json:"specimen_type"`
	HematologicFindings   []string `json:"hematologic_findings"`
	Immunophenotype       []string `json:"immunophenotype"`
	PathologistImpression *string  `json:"pathologist_impression"`
}

type CriticalAlert struct {
	Parameter            string `json:"parameter"`
	Value                string `json:"value"`
	Trend                string `json:"trend"`
	ClinicalSignificance string `json:"clinical_significance"`
}

type IntegratedAnalysis struct {
	Concordance string   `json:"concordance"`
	KeyInsights []string `json:"key_insights"`
	DataGaps    []string `json:"data_gaps"`
}

type Consensus struct {
	Summary            string   `json:"summary"`
	SuggestedNextSteps []string `json:"suggested_next_steps"`
	ConfidenceLevel    string   `json:"confidence_level"`
}

// UnifiedView is the timeline-style structured summary generated in one
// LLM pass over the prioritized source findings. It is stored on the case
// alongside the multi-agent view.
type UnifiedView struct {
	CaseSummary        CaseSummary        `json:"case_summary"`
	RadiologySummary   RadiologySummary   `json:"radiology_summary"`
	PathologySummary   PathologySummary   `json:"pathology_summary"`
	CriticalAlerts     []CriticalAlert    `json:"critical_alerts"`
	IntegratedAnalysis IntegratedAnalysis `json:"integrated_analysis"`
	Consensus          Consensus          `json:"tumor_board_consensus"`
	Warnings           []string           `json:"warnings"`
	Confidence         float64            `json:"confidence"`
	GeneratedAt        string             `json:"generated_at"`
}

// TimelineGenerator produces the unified view.
type TimelineGenerator struct {
	provider llm.Provider
	model    string
	logger   *slog.Logger
}

func NewTimelineGenerator(provider llm.Provider, llmModel string, logger *slog.Logger) *TimelineGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelineGenerator{provider: provider, model: llmModel, logger: logger}
}

type timelinePayload struct {
	CaseSummary struct {
		PatientName       flexString `json:"patient_name"`
		Age               flexString `json:"age"`
		Gender            flexString `json:"gender"`
		PrimaryDiagnosis  flexString `json:"primary_diagnosis"`
		SuspectedCategory flexString `json:"suspected_category"`
		CaseComplexity    flexString `json:"case_complexity"`
	} `json:"case_summary"`
	RadiologySummary struct {
		Modality         flexString   `json:"modality"`
		AnatomicalRegion flexString   `json:"anatomical_region"`
		KeyFindings      []flexString `json:"key_findings"`
		Impression       flexString   `json:"impression"`
		Limitations      flexString   `json:"limitations"`
	} `json:"radiology_summary"`
	PathologySummary struct {
		SpecimenType          flexString   `json:"specimen_type"`
		HematologicFindings   []flexString `json:"hematologic_findings"`
		Immunophenotype       []flexString `json:"immunophenotype"`
		PathologistImpression flexString   `json:"pathologist_impression"`
	} `json:"pathology_summary"`
	CriticalAlerts []struct {
		Parameter            flexString `json:"parameter"`
		Value                flexString `json:"value"`
		Trend                flexString `json:"trend"`
		ClinicalSignificance flexString `json:"clinical_significance"`
	} `json:"critical_alerts"`
	IntegratedAnalysis struct {
		Concordance flexString   `json:"concordance"`
		KeyInsights []flexString `json:"key_insights"`
		DataGaps    []flexString `json:"data_gaps"`
	} `json:"integrated_analysis"`
	Consensus struct {
		Summary            flexString   `json:"summary"`
		SuggestedNextSteps []flexString `json:"suggested_next_steps"`
		ConfidenceLevel    flexString   `json:"confidence_level"`
	} `json:"tumor_board_consensus"`
	Warnings []flexString `json:"warnings"`
}

// Generate builds the unified view. It never fails: when the model call or
// parse goes wrong the view is reconstructed from the source data and
// flagged, so the board run can continue.
func (g *TimelineGenerator) Generate(ctx context.Context, data *CaseData) UnifiedView {
	input := struct {
		PatientInfo     PatientInfo           `json:"patient_info"`
		Diagnoses       []string              `json:"diagnoses"`
		Recommendations []string              `json:"recommendations"`
		Warnings        []string              `json:"warnings"`
		Findings        []model.MergedFinding `json:"findings"`
	}{data.PatientInfo, data.Diagnoses, data.Recommendations, data.Warnings, data.prioritizedFindings()}

	inputJSON, _ := json.MarshalIndent(input, "", "  ")

	req := llm.UserPrompt(g.model, timelinePrompt+string(inputJSON))
	req.Temperature = timelineTemperature
	req.TopP = timelineTopP
	req.MaxTokens = timelineMaxTokens
	req.JSONMode = true

	raw, err := g.provider.Chat(ctx, req)
	if err != nil {
		g.logger.Warn("unified view generation failed", "error", err)
		return g.fallbackView(data, err.Error())
	}

	var p timelinePayload
	msg := parseMessages{badJSON: "Failed to parse LLM response as JSON", noJSON: "Failed to parse LLM response as JSON"}
	if err := decodeAgent(raw, &p, msg); err != nil {
		g.logger.Warn("unified view response unparseable", "error", err)
		return g.fallbackView(data, err.Error())
	}

	return g.assembleView(data, p)
}

// assembleView merges the model's answer with source-data fallbacks so
// sparse model output still yields a complete view.
func (g *TimelineGenerator) assembleView(data *CaseData, p timelinePayload) UnifiedView {
	critical := data.criticalFindings()
	diagnoses := data.Diagnoses

	caseSummary := CaseSummary{
		PatientName:       optStr(p.CaseSummary.PatientName.or(data.PatientInfo.Name)),
		Age:               optStr(p.CaseSummary.Age.or(data.PatientInfo.Age)),
		Gender:            optStr(p.CaseSummary.Gender.or(data.PatientInfo.Gender)),
		PrimaryDiagnosis:  optStr(p.CaseSummary.PrimaryDiagnosis.or(primaryDiagnosis(diagnoses, data.PatientInfo.CancerType))),
		SuspectedCategory: p.CaseSummary.SuspectedCategory.or(suspectedCategory(diagnoses)),
		CaseComplexity:    p.CaseSummary.CaseComplexity.or(complexityFor(len(critical))),
	}

	llmKeyFindings := stringsOf(p.RadiologySummary.KeyFindings)
	radiology := RadiologySummary{
		Modality:         p.RadiologySummary.Modality.ptr(),
		AnatomicalRegion: p.RadiologySummary.AnatomicalRegion.ptr(),
		KeyFindings:      llmKeyFindings,
		Impression:       p.RadiologySummary.Impression.ptr(),
		Limitations:      p.RadiologySummary.Limitations.ptr(),
	}
	if radiology.Limitations == nil && len(llmKeyFindings) == 0 {
		radiology.Limitations = strPtr("No imaging data in source reports")
	}

	hematologic := stringsOf(p.PathologySummary.HematologicFindings)
	if len(hematologic) == 0 {
		hematologic = firstN(hematologicFromSource(data.AllFindings), 10)
	}
	pathology := PathologySummary{
		SpecimenType:          p.PathologySummary.SpecimenType.ptr(),
		HematologicFindings:   hematologic,
		Immunophenotype:       stringsOf(p.PathologySummary.Immunophenotype),
		PathologistImpression: p.PathologySummary.PathologistImpression.ptr(),
	}
	if pathology.PathologistImpression == nil && len(diagnoses) > 0 {
		pathology.PathologistImpression = strPtr(diagnoses[0])
	}

	alerts := []CriticalAlert{}
	if len(p.CriticalAlerts) > 0 {
		for _, a := range p.CriticalAlerts {
			alerts = append(alerts, CriticalAlert{
				Parameter:            a.Parameter.or("Unknown"),
				Value:                string(a.Value),
				Trend:                a.Trend.or("New"),
				ClinicalSignificance: string(a.ClinicalSignificance),
			})
		}
	} else {
		for _, f := range firstNFindings(critical, 5) {
			significance := deref(f.Interpretation)
			if significance == "" {
				significance = fmt.Sprintf("Value outside reference range (%s)", valueOr(deref(f.ReferenceRange), "N/A"))
			}
			alerts = append(alerts, CriticalAlert{
				Parameter:            valueOr(f.TestName, "Unknown"),
				Value:                strings.TrimSpace(f.Value + " " + deref(f.Unit)),
				Trend:                "New",
				ClinicalSignificance: significance,
			})
		}
	}

	dataGaps := stringsOf(p.IntegratedAnalysis.DataGaps)
	if len(dataGaps) == 0 {
		if len(llmKeyFindings) == 0 {
			dataGaps = append(dataGaps, "No imaging/radiology data available")
		}
		if len(data.AllFindings) == 0 {
			dataGaps = append(dataGaps, "No lab findings extracted")
		}
	}
	keyInsights := stringsOf(p.IntegratedAnalysis.KeyInsights)
	if len(keyInsights) == 0 {
		if len(diagnoses) > 0 {
			keyInsights = []string{"Primary diagnosis: " + diagnoses[0]}
		} else {
			keyInsights = []string{"Diagnosis pending"}
		}
	}
	concordanceDefault := "Moderate"
	if len(diagnoses) == 1 {
		concordanceDefault = "High"
	}
	integrated := IntegratedAnalysis{
		Concordance: p.IntegratedAnalysis.Concordance.or(concordanceDefault),
		KeyInsights: keyInsights,
		DataGaps:    dataGaps,
	}

	summaryDefault := "Case under review"
	if len(diagnoses) > 0 {
		summaryDefault = fmt.Sprintf("Patient with %s. %d critical findings identified.", diagnoses[0], len(critical))
	}
	confidenceDefault := "Moderate"
	if len(data.AllFindings) > 10 {
		confidenceDefault = "High"
	}
	nextSteps := stringsOf(p.Consensus.SuggestedNextSteps)
	if len(nextSteps) == 0 {
		nextSteps = firstN(data.Recommendations, 5)
	}
	consensus := Consensus{
		Summary:            p.Consensus.Summary.or(summaryDefault),
		SuggestedNextSteps: nextSteps,
		ConfidenceLevel:    p.Consensus.ConfidenceLevel.or(confidenceDefault),
	}

	warnings := stringsOf(p.Warnings)
	if len(warnings) == 0 {
		warnings = data.Warnings
	}

	return UnifiedView{
		CaseSummary:        caseSummary,
		RadiologySummary:   radiology,
		PathologySummary:   pathology,
		CriticalAlerts:     alerts,
		IntegratedAnalysis: integrated,
		Consensus:          consensus,
		Warnings:           warnings,
		Confidence:         0.75,
		GeneratedAt:        time.Now().UTC().Format(time.RFC3339),
	}
}

// fallbackView reconstructs the view from source data alone when the model
// could not.
func (g *TimelineGenerator) fallbackView(data *CaseData, errMsg string) UnifiedView {
	critical := data.criticalFindings()
	diagnoses := data.Diagnoses

	suspected := "Unknown"
	joined := strings.ToLower(strings.Join(diagnoses, " "))
	if strings.Contains(joined, "blood") || strings.Contains(joined, "leukemia") {
		suspected = "Hematologic"
	}

	hematologic := []string{}
	for _, f := range firstNFindings(data.AllFindings, 10) {
		hematologic = append(hematologic, fmt.Sprintf("%s: %s %s (%s)", f.TestName, f.Value, deref(f.Unit), valueOr(deref(f.Status), "N/A")))
	}

	alerts := []CriticalAlert{}
	for _, f := range firstNFindings(critical, 5) {
		alerts = append(alerts, CriticalAlert{
			Parameter:            valueOr(f.TestName, "Unknown"),
			Value:                strings.TrimSpace(f.Value + " " + deref(f.Unit)),
			Trend:                "New",
			ClinicalSignificance: valueOr(deref(f.Interpretation), "Critical value"),
		})
	}

	keyInsights := []string{"Analysis pending"}
	if len(diagnoses) > 0 {
		keyInsights = nil
		for _, d := range firstN(diagnoses, 3) {
			keyInsights = append(keyInsights, "Diagnosis: "+d)
		}
	}

	var impression *string
	if len(diagnoses) > 0 {
		impression = strPtr(diagnoses[0])
	}

	return UnifiedView{
		CaseSummary: CaseSummary{
			PatientName:       optStr(data.PatientInfo.Name),
			Age:               optStr(data.PatientInfo.Age),
			Gender:            optStr(data.PatientInfo.Gender),
			PrimaryDiagnosis:  optStr(primaryDiagnosis(diagnoses, data.PatientInfo.CancerType)),
			SuspectedCategory: suspected,
			CaseComplexity:    "Moderate",
		},
		RadiologySummary: RadiologySummary{
			KeyFindings: []string{},
			Limitations: strPtr("No imaging data in source reports"),
		},
		PathologySummary: PathologySummary{
			HematologicFindings:   hematologic,
			Immunophenotype:       []string{},
			PathologistImpression: impression,
		},
		CriticalAlerts: alerts,
		IntegratedAnalysis: IntegratedAnalysis{
			Concordance: "Moderate",
			KeyInsights: keyInsights,
			DataGaps:    []string{"AI generation failed - showing source data"},
		},
		Consensus: Consensus{
			Summary:            fmt.Sprintf("Patient data extracted with %d findings and %d diagnoses.", len(data.AllFindings), len(diagnoses)),
			SuggestedNextSteps: firstN(data.Recommendations, 5),
			ConfidenceLevel:    "Low",
		},
		Warnings:    []string{"AI generation failed: " + errMsg, "Showing extracted source data as fallback"},
		Confidence:  0.3,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func primaryDiagnosis(diagnoses []string, cancerType *string) string {
	if len(diagnoses) > 0 {
		return diagnoses[0]
	}
	return deref(cancerType)
}

func suspectedCategory(diagnoses []string) string {
	for _, d := range diagnoses {
		if containsAny(strings.ToLower(d), []string{"leukemia", "lymphoma", "myeloma"}) {
			return "Hematologic"
		}
	}
	return "Unknown"
}

func complexityFor(criticalCount int) string {
	switch {
	case criticalCount > 3:
		return "High"
	case criticalCount > 0:
		return "Moderate"
	}
	return "Low"
}

var hematologyTestTerms = []string{
	"wbc", "rbc", "hemoglobin", "hematocrit", "platelet", "neutrophil",
	"lymphocyte", "monocyte", "eosinophil", "basophil", "blast",
}

func hematologicFromSource(findings []model.MergedFinding) []string {
	out := []string{}
	for _, f := range findings {
		if !containsAny(strings.ToLower(f.TestName), hematologyTestTerms) {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s %s (%s)", f.TestName, f.Value, deref(f.Unit), deref(f.Status)))
	}
	return out
}
