package ocr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAzureKey = "test-key-1234567890"

func azureLineJSON(text string, confidence float64) string {
	return fmt.Sprintf(`{"content":%q,"confidence":%g,"polygon":[0,0,10,0,10,5,0,5]}`, text, confidence)
}

func azureSucceededBody(lines ...string) string {
	return fmt.Sprintf(`{"status":"succeeded","analyzeResult":{"pages":[{"lines":[%s]}]}}`, strings.Join(lines, ","))
}

// newAzureServer fakes the submit-and-poll flow: the analyze POST returns
// 202 with an operation URL, successive polls serve pollBodies in order
// and repeat the last one.
func newAzureServer(t *testing.T, pollBodies []string) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var submits, polls atomic.Int32

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/documentintelligence/", func(w http.ResponseWriter, r *http.Request) {
		submits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testAzureKey, r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, azureAPIVersion, r.URL.Query().Get("api-version"))
		w.Header().Set("Operation-Location", srv.URL+"/operations/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAzureKey, r.Header.Get("Ocp-Apim-Subscription-Key"))
		i := int(polls.Add(1)) - 1
		if i >= len(pollBodies) {
			i = len(pollBodies) - 1
		}
		fmt.Fprint(w, pollBodies[i])
	})
	return srv, &submits, &polls
}

func newTestAzure(t *testing.T, endpoint string) *AzureClient {
	t.Helper()
	c := NewAzure(endpoint, testAzureKey, discardLogger())
	c.pollInterval = time.Millisecond
	return c
}

func TestAzureRecognize(t *testing.T) {
	srv, submits, polls := newAzureServer(t, []string{
		`{"status":"running"}`,
		azureSucceededBody(azureLineJSON("Hemoglobin", 0.97), `{"content":"13.2 g/dL"}`),
	})

	c := newTestAzure(t, srv.URL)
	blocks, err := c.Recognize(context.Background(), []byte("page"))
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, "Hemoglobin", blocks[0].Text)
	assert.InDelta(t, 0.97, blocks[0].Confidence, 1e-9)
	assert.Equal(t, [][]float64{{0, 0}, {10, 0}, {10, 5}, {0, 5}}, blocks[0].BBox)

	// A line without confidence or polygon gets the defaults.
	assert.InDelta(t, 0.9, blocks[1].Confidence, 1e-9)
	assert.Equal(t, zeroBBox(), blocks[1].BBox)

	assert.Equal(t, int32(1), submits.Load())
	assert.Equal(t, int32(2), polls.Load())
}

func TestAzureRecognizeAnalysisFailed(t *testing.T) {
	srv, _, _ := newAzureServer(t, []string{
		`{"status":"failed","error":{"message":"image malformed"}}`,
	})

	c := newTestAzure(t, srv.URL)
	_, err := c.Recognize(context.Background(), []byte("page"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure analysis failed")
	assert.Contains(t, err.Error(), "image malformed")
}

func TestAzureRecognizeSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestAzure(t, srv.URL)
	_, err := c.Recognize(context.Background(), []byte("page"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure returned status 403")
}

func TestAzureRecognizeTimesOut(t *testing.T) {
	srv, _, polls := newAzureServer(t, []string{`{"status":"running"}`})

	c := newTestAzure(t, srv.URL)
	_, err := c.Recognize(context.Background(), []byte("page"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, int32(azureMaxPolls), polls.Load())
}

func TestAzureBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var submits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestAzure(t, srv.URL)
	for i := 0; i < 5; i++ {
		_, err := c.Recognize(context.Background(), []byte("page"))
		require.Error(t, err)
	}

	_, err := c.Recognize(context.Background(), []byte("page"))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), submits.Load())
}

func TestAzureConfigured(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		key      string
		want     bool
	}{
		{"both set", "https://doc.cognitiveservices.azure.com", testAzureKey, true},
		{"missing key", "https://doc.cognitiveservices.azure.com", "", false},
		{"missing endpoint", "", testAzureKey, false},
		{"placeholder values", "short", "key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewAzure(tt.endpoint, tt.key, discardLogger())
			assert.Equal(t, tt.want, c.Configured())
		})
	}
}
