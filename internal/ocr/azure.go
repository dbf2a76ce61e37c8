package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chartmed-ai/karte/internal/model"
)

const (
	azureAPIVersion = "2024-11-30"
	azureMaxPolls   = 30
)

// AzureClient calls the Azure Document Intelligence read model, the
// secondary OCR engine. Analysis is submit-and-poll: the submit returns
// an operation URL and results are fetched once its status turns
// terminal. A circuit breaker fronts the endpoint so a dead subscription
// does not stall every page.
type AzureClient struct {
	endpoint     string
	key          string
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewAzure builds a read-model client. Leave endpoint or key empty to
// disable the engine.
func NewAzure(endpoint, key string, logger *slog.Logger) *AzureClient {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "azure-ocr",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &AzureClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		key:          key,
		client:       &http.Client{Timeout: 60 * time.Second},
		breaker:      breaker,
		pollInterval: time.Second,
		logger:       logger,
	}
}

// Configured reports whether the endpoint and key look usable. Values
// shorter than any real endpoint or key are treated as unset.
func (c *AzureClient) Configured() bool {
	return len(c.endpoint) > 10 && len(c.key) > 10
}

// Recognize extracts text blocks from one page image.
func (c *AzureClient) Recognize(ctx context.Context, image []byte) ([]model.TextBlock, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.analyze(ctx, image)
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.TextBlock), nil
}

type azureAnalyzeResponse struct {
	Status        string              `json:"status"`
	AnalyzeResult *azureAnalyzeResult `json:"analyzeResult"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type azureAnalyzeResult struct {
	Pages []struct {
		Lines []azureLine `json:"lines"`
	} `json:"pages"`
}

type azureLine struct {
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence"`
	Polygon    []float64 `json:"polygon"`
}

func (c *AzureClient) analyze(ctx context.Context, image []byte) ([]model.TextBlock, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/prebuilt-read:analyze?api-version=%s", c.endpoint, azureAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("ocr: build azure request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: azure submit: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("ocr: azure returned status %d", resp.StatusCode)
	}
	operation := resp.Header.Get("Operation-Location")
	if operation == "" {
		return nil, errors.New("ocr: azure response missing Operation-Location")
	}

	start := time.Now()
	for i := 0; i < azureMaxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		blocks, done, err := c.poll(ctx, operation)
		if err != nil {
			return nil, err
		}
		if done {
			c.logger.Debug("azure analysis complete",
				"blocks", len(blocks),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return blocks, nil
		}
	}
	return nil, errors.New("ocr: azure analysis timed out")
}

func (c *AzureClient) poll(ctx context.Context, operation string) ([]model.TextBlock, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operation, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ocr: build azure poll: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("ocr: azure poll: %w", err)
	}
	defer resp.Body.Close()

	var parsed azureAnalyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("ocr: decode azure response: %w", err)
	}

	switch parsed.Status {
	case "succeeded":
		return azureBlocks(parsed.AnalyzeResult), true, nil
	case "failed":
		msg := "unknown error"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, false, fmt.Errorf("ocr: azure analysis failed: %s", msg)
	default:
		return nil, false, nil
	}
}

// azureBlocks flattens read-model lines into text blocks. The 8-value
// bounding polygon becomes four corner points. Confidence defaults high
// because the read model reports it per word, not per line.
func azureBlocks(result *azureAnalyzeResult) []model.TextBlock {
	if result == nil {
		return nil
	}
	var blocks []model.TextBlock
	for _, page := range result.Pages {
		for _, line := range page.Lines {
			confidence := 0.9
			if line.Confidence != nil {
				confidence = *line.Confidence
			}
			bbox := zeroBBox()
			if len(line.Polygon) >= 8 {
				bbox = [][]float64{
					{line.Polygon[0], line.Polygon[1]},
					{line.Polygon[2], line.Polygon[3]},
					{line.Polygon[4], line.Polygon[5]},
					{line.Polygon[6], line.Polygon[7]},
				}
			}
			blocks = append(blocks, model.TextBlock{
				Text:       line.Content,
				Confidence: confidence,
				BBox:       bbox,
			})
		}
	}
	return blocks
}
