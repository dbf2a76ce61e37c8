// Package ocr turns uploaded medical documents into per-page text blocks.
//
// Recognition is dual-layer: a local PaddleOCR serving sidecar is the
// primary engine, with Azure Document Intelligence as a conditional
// fallback when local confidence is low. Results are cached by content
// hash so re-uploaded files skip recognition entirely.
package ocr

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/chartmed-ai/karte/internal/model"
)

// Engine preference values accepted by OCR_ENGINE.
const (
	EnginePaddle = "paddle"
	EngineAzure  = "azure"
	EngineHybrid = "hybrid"
)

// azureFallbackThreshold is the primary-engine average confidence below
// which the secondary engine is consulted.
const azureFallbackThreshold = 0.75

// Config carries the recognition settings for a Service.
type Config struct {
	Engine        string // paddle, azure or hybrid
	PaddleURL     string
	AzureEndpoint string
	AzureKey      string
	MinConfidence float64
	MaxDPI        int
	CacheSize     int
}

// Service extracts structured OCR from uploaded files.
type Service struct {
	paddle        *PaddleClient
	azure         *AzureClient
	engine        string
	minConfidence float64
	maxDPI        int
	cache         *docCache
	group         singleflight.Group
	logger        *slog.Logger
}

// New builds a Service. The Azure engine stays dormant unless both its
// endpoint and key are set.
func New(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		paddle:        NewPaddle(cfg.PaddleURL, logger),
		azure:         NewAzure(cfg.AzureEndpoint, cfg.AzureKey, logger),
		engine:        cfg.Engine,
		minConfidence: cfg.MinConfidence,
		maxDPI:        cfg.MaxDPI,
		cache:         newDocCache(cfg.CacheSize),
		logger:        logger,
	}
}

// Extract OCRs a whole uploaded file. PDFs are rasterized and recognized
// page by page; images are a single page. Identical content is served
// from the cache, and concurrent requests for the same content share one
// recognition pass.
func (s *Service) Extract(ctx context.Context, data []byte, kind model.SourceType) (model.DocumentOCR, error) {
	key := fmt.Sprintf("%x", md5.Sum(data))
	if doc, ok := s.cache.get(key); ok {
		s.logger.Debug("ocr cache hit", "hash", key)
		return doc, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if doc, ok := s.cache.get(key); ok {
			return doc, nil
		}
		doc, err := s.extract(ctx, data, kind)
		if err != nil {
			return nil, err
		}
		s.cache.put(key, doc)
		return doc, nil
	})
	if err != nil {
		return model.DocumentOCR{}, err
	}
	return v.(model.DocumentOCR), nil
}

func (s *Service) extract(ctx context.Context, data []byte, kind model.SourceType) (model.DocumentOCR, error) {
	if kind == model.SourceTypePDF {
		return s.extractPDF(ctx, data)
	}
	return s.extractImage(ctx, data)
}

func (s *Service) extractImage(ctx context.Context, data []byte) (model.DocumentOCR, error) {
	page, err := s.recognizePage(ctx, data, 1)
	if err != nil {
		return model.DocumentOCR{}, err
	}
	return model.DocumentOCR{
		Pages:      []model.PageOCR{page},
		TotalPages: 1,
		SourceType: model.SourceTypeImage,
	}, nil
}

func (s *Service) extractPDF(ctx context.Context, data []byte) (model.DocumentOCR, error) {
	images, err := renderPDF(data, s.maxDPI)
	if err != nil {
		return model.DocumentOCR{}, err
	}
	pages := make([]model.PageOCR, 0, len(images))
	for i, img := range images {
		page, err := s.recognizePage(ctx, img, i+1)
		if err != nil {
			return model.DocumentOCR{}, err
		}
		pages = append(pages, page)
	}
	return model.DocumentOCR{
		Pages:      pages,
		TotalPages: len(pages),
		SourceType: model.SourceTypePDF,
	}, nil
}

// recognizePage runs engine selection and block filtering for one page
// image. Engine failures are non-fatal and yield an empty page; only
// context cancellation aborts.
func (s *Service) recognizePage(ctx context.Context, image []byte, pageNumber int) (model.PageOCR, error) {
	blocks, source, warnings := s.selectBlocks(ctx, image)
	if err := ctx.Err(); err != nil {
		return model.PageOCR{}, err
	}

	kept, filterWarnings := filterBlocks(blocks, s.minConfidence)
	warnings = append(warnings, filterWarnings...)

	texts := make([]string, len(kept))
	for i, b := range kept {
		texts[i] = b.Text
	}

	page := model.PageOCR{
		PageNumber: pageNumber,
		Text:       strings.Join(texts, "\n"),
		Blocks:     kept,
		Confidence: averageConfidence(kept),
		Source:     source,
		Warnings:   warnings,
	}
	s.logger.Debug("page recognized",
		"page", pageNumber,
		"source", source,
		"blocks", len(kept),
		"confidence", page.Confidence,
	)
	return page, nil
}

// selectBlocks picks which engine's output a page keeps. The paddle
// sidecar is primary; Azure runs only when the primary average confidence
// falls below azureFallbackThreshold, and its result is kept only when
// strictly more confident. The azure preference skips the primary
// entirely.
func (s *Service) selectBlocks(ctx context.Context, image []byte) ([]model.TextBlock, model.OCRSource, []string) {
	azureReady := s.azure.Configured()

	if s.engine == EngineAzure && azureReady {
		blocks, err := s.azure.Recognize(ctx, image)
		if err != nil {
			s.logger.Warn("azure ocr failed", "error", err)
		}
		if len(blocks) > 0 {
			return blocks, model.OCRSourceAzure, nil
		}
		s.logger.Warn("azure ocr returned no blocks, using paddle")
		blocks, err = s.paddle.Recognize(ctx, image)
		if err != nil {
			s.logger.Warn("paddle ocr failed", "error", err)
			blocks = nil
		}
		return blocks, model.OCRSourcePaddle, nil
	}

	paddleBlocks, err := s.paddle.Recognize(ctx, image)
	if err != nil {
		s.logger.Warn("paddle ocr failed", "error", err)
		paddleBlocks = nil
	}
	paddleConf := averageConfidence(paddleBlocks)

	if paddleConf < azureFallbackThreshold && azureReady && (s.engine == EngineHybrid || s.engine == EngineAzure) {
		s.logger.Info("paddle confidence below threshold, trying azure",
			"confidence", paddleConf,
			"threshold", azureFallbackThreshold,
		)
		azureBlocks, err := s.azure.Recognize(ctx, image)
		if err != nil {
			s.logger.Warn("azure ocr failed", "error", err)
			azureBlocks = nil
		}
		azureConf := averageConfidence(azureBlocks)
		if len(azureBlocks) > 0 && azureConf > paddleConf {
			return azureBlocks, model.OCRSourceAzure, nil
		}
		warning := fmt.Sprintf("Azure fallback not kept (azure %.2f, paddle %.2f)", azureConf, paddleConf)
		return paddleBlocks, model.OCRSourcePaddle, []string{warning}
	}

	if paddleConf < azureFallbackThreshold && len(paddleBlocks) > 0 {
		warning := fmt.Sprintf("Low OCR confidence (%.2f) without a secondary OCR fallback", paddleConf)
		return paddleBlocks, model.OCRSourcePaddle, []string{warning}
	}

	return paddleBlocks, model.OCRSourcePaddle, nil
}

// averageConfidence is the mean block confidence, 0 for no blocks.
func averageConfidence(blocks []model.TextBlock) float64 {
	if len(blocks) == 0 {
		return 0
	}
	var sum float64
	for _, b := range blocks {
		sum += b.Confidence
	}
	return sum / float64(len(blocks))
}

// zeroBBox is the placeholder region for lines whose engine did not
// report one.
func zeroBBox() [][]float64 {
	return [][]float64{{0, 0}, {0, 0}, {0, 0}, {0, 0}}
}
