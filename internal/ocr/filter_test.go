package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/model"
)

func TestIsSectionHeader(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"COMPLETE BLOOD COUNT", true},
		{"clinical pathology report", true},
		{"LIVER FUNCTION TEST", true},
		{"  TEST RESULTS  ", true},
		{"ALL CAPS HEADER LINE", true},
		{"HDL", false},
		{"Hb", false},
		{"REPORT NO 12345 ABC", false},
		{"Hemoglobin", false},
		{"13.2 g/dL", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, isSectionHeader(tt.text))
		})
	}
}

func TestFilterBlocks(t *testing.T) {
	blocks := []model.TextBlock{
		{Text: "HEMATOLOGY", Confidence: 0.99},
		{Text: "Hemoglobin 13.2 g/dL", Confidence: 0.91},
		{Text: "a very long smudged line of text that ocr could not read well", Confidence: 0.42},
	}

	kept, warnings := filterBlocks(blocks, 0.6)

	require.Len(t, kept, 1)
	assert.Equal(t, "Hemoglobin 13.2 g/dL", kept[0].Text)

	require.Len(t, warnings, 2)
	assert.Equal(t, "Section header filtered: 'HEMATOLOGY'", warnings[0])
	assert.Equal(t, "Low confidence (0.42) block discarded: 'a very long smudged line of text that oc...'", warnings[1])
}

func TestFilterBlocksConfidenceCheckedFirst(t *testing.T) {
	// A low-confidence header is reported as a confidence drop, not a
	// header drop.
	blocks := []model.TextBlock{{Text: "BIOCHEMISTRY", Confidence: 0.10}}

	kept, warnings := filterBlocks(blocks, 0.6)

	assert.Empty(t, kept)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Low confidence (0.10) block discarded: 'BIOCHEMISTRY...'", warnings[0])
}

func TestFilterBlocksKeepsEverythingClean(t *testing.T) {
	blocks := []model.TextBlock{
		{Text: "WBC", Confidence: 0.97},
		{Text: "7.1 x10^9/L", Confidence: 0.95},
	}

	kept, warnings := filterBlocks(blocks, 0.6)

	assert.Len(t, kept, 2)
	assert.Empty(t, warnings)
}
