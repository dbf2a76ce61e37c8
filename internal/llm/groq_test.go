package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/testutil"
)

func TestGroqClient_Chat(t *testing.T) {
	var captured groqChatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"ok": true}`}},
			},
		})
	}))
	defer srv.Close()

	c := NewGroq("test-key", srv.URL, testutil.TestLogger())
	req := UserPrompt("llama-3.3-70b-versatile", "extract")
	req.Temperature = 0.1
	req.MaxTokens = 2048
	req.JSONMode = true

	content, err := c.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, content)

	assert.Equal(t, "llama-3.3-70b-versatile", captured.Model)
	assert.InDelta(t, 0.1, captured.Temperature, 1e-9)
	assert.Equal(t, 2048, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestGroqClient_TopPOmittedWhenZero(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	c := NewGroq("k", srv.URL, testutil.TestLogger())
	_, err := c.Chat(context.Background(), UserPrompt("m", "p"))
	require.NoError(t, err)

	_, hasTopP := raw["top_p"]
	assert.False(t, hasTopP)
	_, hasFormat := raw["response_format"]
	assert.False(t, hasFormat)
}

func TestGroqClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API Key"},
		})
	}))
	defer srv.Close()

	c := NewGroq("bad-key", srv.URL, testutil.TestLogger())
	_, err := c.Chat(context.Background(), UserPrompt("m", "p"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API Key")
	assert.Contains(t, err.Error(), "401")
}

func TestGroqClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewGroq("k", srv.URL, testutil.TestLogger())
	for i := 0; i < 5; i++ {
		_, err := c.Chat(context.Background(), UserPrompt("m", "p"))
		require.Error(t, err)
	}
	assert.Equal(t, 5, calls)

	// Sixth call fails fast without reaching the server.
	_, err := c.Chat(context.Background(), UserPrompt("m", "p"))
	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.True(t, IsUnavailable(err))
}

func TestIsUnavailable(t *testing.T) {
	assert.False(t, IsUnavailable(nil))
	assert.False(t, IsUnavailable(assert.AnError))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed server refuses connections

	c := NewGroq("k", srv.URL, testutil.TestLogger())
	_, err := c.Chat(context.Background(), UserPrompt("m", "p"))
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}
