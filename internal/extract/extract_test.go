package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

const reportText = "Patient: John Smith\nHemoglobin 13.2 g/dL (13.0 - 17.0)\nWBC 7.1 x10^9/L\nPlatelets 250 x10^9/L"

// fakeProvider pops one canned response (or error) per Chat call and
// records every request for prompt assertions.
type fakeProvider struct {
	responses []string
	errs      []error
	requests  []llm.ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func newTestService(provider llm.Provider) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(provider, Config{ModelA: "model-a", ModelB: "model-b", SkipThreshold: 0.8}, logger)
}

func ocrPage(text string) model.PageOCR {
	return model.PageOCR{PageNumber: 1, Text: text, Confidence: 0.9}
}

func TestAnalyzePageEmptyText(t *testing.T) {
	fake := &fakeProvider{}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), model.PageOCR{PageNumber: 3, Text: "  \n "})
	require.NoError(t, err)

	assert.Empty(t, fake.requests)
	assert.Equal(t, 3, analysis.PageNumber)
	assert.Equal(t, []string{"No text content on this page"}, analysis.Warnings)
	assert.Empty(t, analysis.Findings)
	assert.Zero(t, analysis.ExtractionConfidence)
	assert.Empty(t, analysis.RawTextPreview)
}

func TestAnalyzePageCleanReport(t *testing.T) {
	fake := &fakeProvider{responses: []string{
		`{"patient_identity":{"name":"John Smith"},"report_metadata":{"report_type":"CBC"},"findings":[{"test_name":"Hemoglobin","value":"13.2","unit":"g/dL"},{"test_name":"WBC","value":7.1}],"diagnosis":"Normal CBC","recommendations":["No action needed"],"warnings":[],"extraction_confidence":0.9}`,
	}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	// A fully verified extraction never reaches the validation model.
	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, "model-a", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.True(t, req.JSONMode)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "STRICT STRUCTURAL EXTRACTION ENGINE")
	assert.Contains(t, req.Messages[0].Content, "OCR DATA TO EXTRACT FROM")
	assert.True(t, strings.HasSuffix(req.Messages[0].Content, reportText))

	require.NotNil(t, analysis.PatientIdentity.Name)
	assert.Equal(t, "John Smith", *analysis.PatientIdentity.Name)
	require.Len(t, analysis.Findings, 2)
	assert.Equal(t, "Hemoglobin", analysis.Findings[0].TestName)
	assert.Equal(t, "13.2", analysis.Findings[0].Value)
	assert.Equal(t, "7.1", analysis.Findings[1].Value)
	require.NotNil(t, analysis.Diagnosis)
	assert.Equal(t, "Normal CBC", *analysis.Diagnosis)
	assert.Equal(t, []string{"No action needed"}, analysis.Recommendations)
	assert.Empty(t, analysis.Warnings)
	assert.InDelta(t, 0.9, analysis.ExtractionConfidence, 1e-9)
	assert.Equal(t, reportText, analysis.RawTextPreview)
}

func TestAnalyzePageHallucinatedNameRemoved(t *testing.T) {
	fake := &fakeProvider{responses: []string{
		`{"patient_identity":{"name":"Jane Doe"},"findings":[{"test_name":"Hemoglobin","value":"13.2"}],"extraction_confidence":0.8}`,
	}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	assert.Nil(t, analysis.PatientIdentity.Name)
	assert.Contains(t, analysis.Warnings,
		"Patient name 'Jane Doe' not verified in OCR text - removed to prevent hallucination")
	// The finding itself still verified, so no validation call.
	assert.Len(t, fake.requests, 1)
}

func TestAnalyzePageValidationStage(t *testing.T) {
	fake := &fakeProvider{responses: []string{
		`{"findings":[{"test_name":"Hemoglobin","value":"9.9"}],"extraction_confidence":0.7}`,
		`{"patient_identity":{"name":"John Smith"},"findings":[{"test_name":"Hemoglobin","value":"13.2","unit":"g/dL"}],"warnings":["Removed unverifiable value"],"extraction_confidence":0.85}`,
	}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	req := fake.requests[1]
	assert.Equal(t, "model-b", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.True(t, req.JSONMode)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "MEDICAL DATA VALIDATION AND FILTERING SYSTEM")
	assert.Contains(t, prompt, "OCR_TEXT:")
	assert.Contains(t, prompt, reportText)
	assert.Contains(t, prompt, "\n\nEXTRACTED_JSON:\n")
	assert.Contains(t, prompt, `"test_name": "Hemoglobin"`)

	// The validated payload replaces stage A wholesale, and the strict
	// match warnings that triggered validation are dropped with it.
	require.Len(t, analysis.Findings, 1)
	assert.Equal(t, "13.2", analysis.Findings[0].Value)
	assert.Equal(t, []string{"Removed unverifiable value"}, analysis.Warnings)
	assert.NotContains(t, analysis.Warnings, "Value '9.9' not found in OCR")
	assert.InDelta(t, 0.85, analysis.ExtractionConfidence, 1e-9)
}

func TestAnalyzePageValidationFailureKeepsStageA(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		errs      []error
	}{
		{
			name: "invalid json",
			responses: []string{
				`{"findings":[{"test_name":"Hemoglobin","value":"9.9"}]}`,
				"I removed the bad findings for you.",
			},
		},
		{
			name: "model error",
			responses: []string{
				`{"findings":[{"test_name":"Hemoglobin","value":"9.9"}]}`,
				"",
			},
			errs: []error{nil, errors.New("llm: groq returned status 500")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{responses: tt.responses, errs: tt.errs}
			svc := newTestService(fake)

			analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
			require.NoError(t, err)

			require.Len(t, fake.requests, 2)
			require.Len(t, analysis.Findings, 1)
			assert.Equal(t, "9.9", analysis.Findings[0].Value)
			assert.Equal(t, []string{"Value '9.9' for 'Hemoglobin' not verified in OCR"}, analysis.Warnings)
			assert.InDelta(t, 0.5, analysis.ExtractionConfidence, 1e-9)
		})
	}
}

func TestAnalyzePageParseFailure(t *testing.T) {
	fake := &fakeProvider{responses: []string{"I cannot help with that."}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	assert.Equal(t, []string{"Failed to parse LLM response as JSON"}, analysis.Warnings)
	assert.Empty(t, analysis.Findings)
	assert.Equal(t, reportText, analysis.RawTextPreview)
}

func TestAnalyzePageCoercesNumericIdentityFields(t *testing.T) {
	fake := &fakeProvider{responses: []string{
		`{"patient_identity":{"name":"John Smith","id":12345,"age":65},"findings":[],"extraction_confidence":null}`,
	}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	require.NotNil(t, analysis.PatientIdentity.ID)
	assert.Equal(t, "12345", *analysis.PatientIdentity.ID)
	require.NotNil(t, analysis.PatientIdentity.Age)
	assert.Equal(t, "65", *analysis.PatientIdentity.Age)
	assert.InDelta(t, 0.5, analysis.ExtractionConfidence, 1e-9)
	assert.Empty(t, analysis.Warnings)
}

func TestAnalyzePageNullFindingFields(t *testing.T) {
	fake := &fakeProvider{responses: []string{
		`{"findings":[{"test_name":null,"value":null}]}`,
		`{"findings":[{"test_name":null,"value":null}]}`,
	}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	require.Len(t, analysis.Findings, 1)
	assert.Equal(t, "Unknown", analysis.Findings[0].TestName)
	assert.Empty(t, analysis.Findings[0].Value)
	assert.Nil(t, analysis.PatientIdentity.Name)
}

func TestAnalyzePageModelErrorBecomesWarning(t *testing.T) {
	fake := &fakeProvider{errs: []error{errors.New("llm: groq returned status 500")}}
	svc := newTestService(fake)

	analysis, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.NoError(t, err)

	assert.Equal(t, []string{"LLM analysis error: llm: groq returned status 500"}, analysis.Warnings)
	assert.Equal(t, reportText, analysis.RawTextPreview)
}

func TestAnalyzePageUnreachableGateway(t *testing.T) {
	fake := &fakeProvider{errs: []error{
		errors.New("llm: groq request: dial tcp 127.0.0.1:443: connect: connection refused"),
	}}
	svc := newTestService(fake)

	_, err := svc.AnalyzePage(context.Background(), ocrPage(reportText))
	require.Error(t, err)
	assert.True(t, llm.IsUnavailable(err))
}
