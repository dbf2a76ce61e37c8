package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paddleLineJSON(text string, confidence float64) string {
	return fmt.Sprintf(`{"text":%q,"confidence":%g,"text_region":[[0,0],[10,0],[10,5],[0,5]]}`, text, confidence)
}

func paddleBody(lines ...string) string {
	return fmt.Sprintf(`{"msg":"","results":[[%s]],"status":"000"}`, strings.Join(lines, ","))
}

func TestPaddleRecognize(t *testing.T) {
	var got paddleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, paddleBody(
			paddleLineJSON("Hemoglobin", 0.98),
			paddleLineJSON("13.2 g/dL", 0.95),
		))
	}))
	defer srv.Close()

	c := NewPaddle(srv.URL, discardLogger())
	blocks, err := c.Recognize(context.Background(), []byte("fake-image"))
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, "Hemoglobin", blocks[0].Text)
	assert.InDelta(t, 0.98, blocks[0].Confidence, 1e-9)
	assert.Equal(t, [][]float64{{0, 0}, {10, 0}, {10, 5}, {0, 5}}, blocks[0].BBox)
	assert.Equal(t, "13.2 g/dL", blocks[1].Text)

	require.Len(t, got.Images, 1)
	decoded, err := base64.StdEncoding.DecodeString(got.Images[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-image"), decoded)
	assert.False(t, got.UseAngleCls)
}

func TestPaddleRecognizeRotated(t *testing.T) {
	var got paddleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, paddleBody(paddleLineJSON("sideways", 0.9)))
	}))
	defer srv.Close()

	c := NewPaddle(srv.URL, discardLogger())
	_, err := c.RecognizeRotated(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.True(t, got.UseAngleCls)
}

func TestPaddleRecognizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewPaddle(srv.URL, discardLogger())
	_, err := c.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paddle returned status 500")
	assert.Contains(t, err.Error(), "model crashed")
}

func TestPaddleRecognizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"msg":"no image found","results":[],"status":"101"}`)
	}))
	defer srv.Close()

	c := NewPaddle(srv.URL, discardLogger())
	_, err := c.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paddle error 101")
	assert.Contains(t, err.Error(), "no image found")
}

func TestPaddleRecognizeEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"msg":"","results":[],"status":"000"}`)
	}))
	defer srv.Close()

	c := NewPaddle(srv.URL, discardLogger())
	blocks, err := c.Recognize(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
