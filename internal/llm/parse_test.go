package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject_Direct(t *testing.T) {
	var out map[string]any
	err := ParseJSONObject(`{"diagnosis": "B-cell lymphoma", "extraction_confidence": 0.92}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "B-cell lymphoma", out["diagnosis"])
}

func TestParseJSONObject_MarkdownFence(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"json tag", "Here is the extraction:\n```json\n{\"findings\": []}\n```"},
		{"bare fence", "```\n{\"findings\": []}\n```"},
		{"no newline padding", "```json{\"findings\": []}```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out map[string]any
			require.NoError(t, ParseJSONObject(tc.text, &out))
			assert.Contains(t, out, "findings")
		})
	}
}

func TestParseJSONObject_BalancedBraces(t *testing.T) {
	text := `The patient data follows. {"name": "with } brace", "nested": {"a": 1}} Trailing prose.`
	var out map[string]any
	require.NoError(t, ParseJSONObject(text, &out))
	assert.Equal(t, "with } brace", out["name"])
}

func TestParseJSONObject_NoJSON(t *testing.T) {
	var out map[string]any
	err := ParseJSONObject("The document could not be analyzed.", &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestFirstJSONObject_GreedySpan(t *testing.T) {
	text := `prefix {"a": {"b": 1}} middle {"c": 2} suffix`
	span, ok := FirstJSONObject(text)
	require.True(t, ok)
	// Widest span: first "{" through last "}".
	assert.Equal(t, `{"a": {"b": 1}} middle {"c": 2}`, span)
}

func TestFirstJSONObject_None(t *testing.T) {
	_, ok := FirstJSONObject("no braces here")
	assert.False(t, ok)
}
