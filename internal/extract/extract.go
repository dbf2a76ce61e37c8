// Package extract turns page OCR text into structured medical findings.
//
// Extraction is two-staged. Stage A prompts an LLM to transcribe the OCR
// text into a strict JSON schema without interpreting it. A deterministic
// verifier then matches every finding back against the OCR text; only
// when too many findings fail that match does stage B re-prompt the LLM
// to filter the extraction. Identity and numeric checks run on whatever
// survives, so a hallucinated name or value never leaves the package
// unflagged.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

// Config selects the models and the validation trigger.
type Config struct {
	ModelA string
	ModelB string
	// SkipThreshold is the verified share of findings above which stage B
	// is skipped. 0.8 means stage B runs once a fifth of the findings
	// fail strict matching.
	SkipThreshold float64
}

// Service runs the two-stage extraction pipeline.
type Service struct {
	provider      llm.Provider
	modelA        string
	modelB        string
	skipThreshold float64
	logger        *slog.Logger
}

func New(provider llm.Provider, cfg Config, logger *slog.Logger) *Service {
	if cfg.SkipThreshold == 0 {
		cfg.SkipThreshold = 0.8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:      provider,
		modelA:        cfg.ModelA,
		modelB:        cfg.ModelB,
		skipThreshold: cfg.SkipThreshold,
		logger:        logger,
	}
}

// AnalyzePage extracts one OCR page into a structured analysis. Model and
// parsing failures are folded into the analysis as warnings; the error
// return is reserved for an unreachable LLM gateway, which callers treat
// as fatal for the whole run.
func (s *Service) AnalyzePage(ctx context.Context, page model.PageOCR) (model.PageAnalysis, error) {
	if strings.TrimSpace(page.Text) == "" {
		return emptyAnalysis(page.PageNumber, "No text content on this page", ""), nil
	}

	content, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model:       s.modelA,
		Messages:    []llm.Message{{Role: "user", Content: extractionPrompt + page.Text}},
		Temperature: 0.1,
		MaxTokens:   2048,
		JSONMode:    true,
	})
	if err != nil {
		if llm.IsUnavailable(err) {
			return model.PageAnalysis{}, err
		}
		return emptyAnalysis(page.PageNumber, fmt.Sprintf("LLM analysis error: %v", err), truncate(page.Text, 200)), nil
	}
	s.logger.Debug("extraction response", "page", page.PageNumber, "preview", truncate(content, 500))

	var payload stagePayload
	if err := llm.ParseJSONObject(content, &payload); err != nil {
		return emptyAnalysis(page.PageNumber, "Failed to parse LLM response as JSON", truncate(page.Text, 200)), nil
	}

	needsB, verifyWarnings := needsValidation(payload.Findings, page.Text, s.skipThreshold)
	if needsB {
		s.logger.Info("running validation stage", "page", page.PageNumber, "findings", len(payload.Findings))
		payload = s.validate(ctx, page.Text, payload)
	}

	warnings := stringifyAll(payload.Warnings)
	if !needsB {
		warnings = append(warnings, verifyWarnings...)
	}

	identity := payload.PatientIdentity.toModel()
	if identity.Name != nil && *identity.Name != "" {
		if !verifyPatientName(*identity.Name, page.Text) {
			warnings = append(warnings, fmt.Sprintf("Patient name '%s' not verified in OCR text - removed to prevent hallucination", *identity.Name))
			identity.Name = nil
		}
	} else {
		identity.Name = nil
	}

	warnings = append(warnings, unverifiedValueWarnings(payload.Findings, page.Text)...)

	findings := make([]model.MedicalFinding, 0, len(payload.Findings))
	for _, f := range payload.Findings {
		name := "Unknown"
		if f.TestName != nil {
			name = *f.TestName
		}
		findings = append(findings, model.MedicalFinding{
			TestName:       name,
			Value:          stringify(f.Value),
			Unit:           f.Unit,
			ReferenceRange: f.ReferenceRange,
			Status:         f.Status,
			Interpretation: f.Interpretation,
		})
	}

	return model.PageAnalysis{
		PageNumber:           page.PageNumber,
		PatientIdentity:      identity,
		ReportMetadata:       payload.ReportMetadata.toModel(),
		Findings:             findings,
		Diagnosis:            stringifyPtr(payload.Diagnosis),
		Recommendations:      stringifyAll(payload.Recommendations),
		Warnings:             warnings,
		ExtractionConfidence: confidence(payload.ExtractionConfidence, 0.5),
		RawTextPreview:       truncate(page.Text, 200),
	}, nil
}

// validate runs stage B over the stage A output. Any failure falls back
// to the stage A payload unchanged.
func (s *Service) validate(ctx context.Context, ocrText string, stageA stagePayload) stagePayload {
	encoded, err := json.MarshalIndent(stageA, "", "  ")
	if err != nil {
		return stageA
	}

	prompt := validationPrompt + ocrText + "\n\nEXTRACTED_JSON:\n" + string(encoded)
	content, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model:       s.modelB,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   1024,
		JSONMode:    true,
	})
	if err != nil {
		s.logger.Warn("validation stage failed, keeping extraction output", "error", err)
		return stageA
	}

	var validated stagePayload
	if err := llm.ParseJSONObject(content, &validated); err != nil {
		s.logger.Warn("validation stage returned invalid json, keeping extraction output", "error", err)
		return stageA
	}
	return validated
}

func emptyAnalysis(pageNumber int, warning, preview string) model.PageAnalysis {
	return model.PageAnalysis{
		PageNumber:      pageNumber,
		Findings:        []model.MedicalFinding{},
		Recommendations: []string{},
		Warnings:        []string{warning},
		RawTextPreview:  preview,
	}
}

// truncate returns at most n leading runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
