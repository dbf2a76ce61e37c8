package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chartmed-ai/karte/internal/model"
)

// DefaultPaddleURL is the ocr_system route of a local PaddleOCR serving
// sidecar.
const DefaultPaddleURL = "http://localhost:8866/predict/ocr_system"

// PaddleClient talks to a local PaddleOCR serving sidecar, the primary
// OCR engine. The sidecar runs a single recognition pipeline that is not
// safe for concurrent requests, so calls are serialized by a mutex.
type PaddleClient struct {
	url    string
	client *http.Client
	mu     sync.Mutex
	logger *slog.Logger
}

// NewPaddle builds a sidecar client. An empty url selects the local
// default.
func NewPaddle(url string, logger *slog.Logger) *PaddleClient {
	if url == "" {
		url = DefaultPaddleURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaddleClient{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

type paddleRequest struct {
	Images      []string `json:"images"`
	UseAngleCls bool     `json:"use_angle_cls"`
}

type paddleResponse struct {
	Status  string `json:"status"`
	Msg     string `json:"msg"`
	Results [][]struct {
		Text       string      `json:"text"`
		Confidence float64     `json:"confidence"`
		TextRegion [][]float64 `json:"text_region"`
	} `json:"results"`
}

// Recognize extracts text blocks from one page image using the default
// pipeline without angle classification.
func (c *PaddleClient) Recognize(ctx context.Context, image []byte) ([]model.TextBlock, error) {
	return c.recognize(ctx, image, false)
}

// RecognizeRotated enables the angle-classification variant for documents
// scanned sideways. The sidecar constructs each pipeline variant on first
// use, so the first rotated call pays a model-load penalty.
func (c *PaddleClient) RecognizeRotated(ctx context.Context, image []byte) ([]model.TextBlock, error) {
	return c.recognize(ctx, image, true)
}

func (c *PaddleClient) recognize(ctx context.Context, image []byte, useAngle bool) ([]model.TextBlock, error) {
	payload, err := json.Marshal(paddleRequest{
		Images:      []string{base64.StdEncoding.EncodeToString(image)},
		UseAngleCls: useAngle,
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: marshal paddle request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ocr: build paddle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: paddle request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("ocr: read paddle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr: paddle returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed paddleResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ocr: decode paddle response: %w", err)
	}
	if parsed.Status != "" && parsed.Status != "000" {
		return nil, fmt.Errorf("ocr: paddle error %s: %s", parsed.Status, parsed.Msg)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}

	blocks := make([]model.TextBlock, 0, len(parsed.Results[0]))
	for _, line := range parsed.Results[0] {
		bbox := line.TextRegion
		if len(bbox) != 4 {
			bbox = zeroBBox()
		}
		blocks = append(blocks, model.TextBlock{
			Text:       line.Text,
			Confidence: line.Confidence,
			BBox:       bbox,
		})
	}
	return blocks, nil
}
