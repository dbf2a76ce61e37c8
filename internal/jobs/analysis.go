package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chartmed-ai/karte/internal/extract"
	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/ocr"
	"github.com/chartmed-ai/karte/internal/storage"
)

// AnalysisConfig carries the per-page and per-report time budgets in
// seconds, matching the SECONDS_PER_PAGE and SECONDS_PER_REPORT knobs.
type AnalysisConfig struct {
	SecondsPerPage   int
	SecondsPerReport int
}

// AnalysisProcessor runs one claimed document analysis job: OCR every
// uploaded report, extract findings page by page, merge, and store the
// aggregate result on the job row.
type AnalysisProcessor struct {
	db        *storage.DB
	ocr       *ocr.Service
	extractor *extract.Service
	sems      Semaphores
	perPage   time.Duration
	perReport time.Duration
	logger    *slog.Logger
}

// NewAnalysisProcessor wires the OCR and extraction services to the job
// store. The semaphores are the process-wide substrate, shared with any
// other LLM or OCR consumer.
func NewAnalysisProcessor(db *storage.DB, ocrSvc *ocr.Service, extractor *extract.Service, sems Semaphores, cfg AnalysisConfig, logger *slog.Logger) *AnalysisProcessor {
	if cfg.SecondsPerPage <= 0 {
		cfg.SecondsPerPage = 60
	}
	if cfg.SecondsPerReport <= 0 {
		cfg.SecondsPerReport = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisProcessor{
		db:        db,
		ocr:       ocrSvc,
		extractor: extractor,
		sems:      sems,
		perPage:   time.Duration(cfg.SecondsPerPage) * time.Second,
		perReport: time.Duration(cfg.SecondsPerReport) * time.Second,
		logger:    logger,
	}
}

// Process runs a claimed job to a terminal state. Per-report problems are
// folded into the result as error entries; only failures that prevent
// assembling any result at all fail the job itself.
func (p *AnalysisProcessor) Process(ctx context.Context, job model.AnalysisJob) {
	log := p.logger.With("job_id", job.ID, "patient_id", job.PatientID)
	log.Info("analysis job started", "report_count", job.ReportCount)
	started := time.Now()

	patient, err := p.db.GetPatient(ctx, job.HospitalID, job.PatientID)
	if err != nil {
		p.fail(ctx, job.ID, fmt.Errorf("fetch patient: %w", err))
		return
	}
	reports, err := p.db.ListReportsByPatient(ctx, job.PatientID)
	if err != nil {
		p.fail(ctx, job.ID, fmt.Errorf("fetch reports: %w", err))
		return
	}

	// Reports are coarse-grained, so they all start at once; the page
	// tasks inside each one contend on the shared semaphores.
	results := make([]model.ReportResult, len(reports))
	var wg sync.WaitGroup
	for i, report := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reportCtx, cancel := context.WithTimeout(ctx, p.perReport)
			defer cancel()
			results[i] = p.processReport(reportCtx, report)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		p.fail(ctx, job.ID, ctx.Err())
		return
	}

	payload := model.AnalysisResult{
		ProcessingTimeSeconds: math.Round(time.Since(started).Seconds()*100) / 100,
		Results:               results,
		PatientName:           patient.Name,
		ReportCount:           len(reports),
		CompletedAt:           time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		p.fail(ctx, job.ID, fmt.Errorf("encode analysis result: %w", err))
		return
	}

	if err := p.db.CompleteJob(ctx, job.ID, raw); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			log.Info("analysis job cancelled before completion")
			return
		}
		log.Error("store analysis result", "error", err)
		return
	}
	log.Info("analysis job completed",
		"reports", len(reports), "seconds", payload.ProcessingTimeSeconds)
}

func (p *AnalysisProcessor) processReport(ctx context.Context, report model.Report) model.ReportResult {
	content, err := os.ReadFile(report.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errorResult(report.FileName, "File not found on server")
		}
		return errorResult(report.FileName, err.Error())
	}

	kind, ok := sourceTypeFor(report.FileName)
	if !ok {
		return model.ReportResult{
			FileName: report.FileName,
			Status:   model.ReportStatusSkipped,
			Reason:   "Unsupported file type",
		}
	}

	if err := p.sems.OCR.Acquire(ctx, 1); err != nil {
		return errorResult(report.FileName, err.Error())
	}
	doc, err := p.ocr.Extract(ctx, content, kind)
	p.sems.OCR.Release(1)
	if err != nil {
		return errorResult(report.FileName, err.Error())
	}

	if strings.TrimSpace(doc.Text()) == "" {
		return model.ReportResult{
			FileName: report.FileName,
			Status:   model.ReportStatusWarning,
			Message:  "No text extracted",
		}
	}

	analyses, err := p.analyzePages(ctx, doc)
	if err != nil {
		if llm.IsUnavailable(err) {
			return errorResult(report.FileName, groqUnavailableMessage)
		}
		return errorResult(report.FileName, "LLM analysis failed: "+err.Error())
	}

	merged := extract.Merge(analyses)
	pages := make([]model.PageView, len(analyses))
	var warnings []string
	for i, pa := range analyses {
		warnings = append(warnings, pa.Warnings...)
		pages[i] = model.PageView{
			Page:                 pa.PageNumber,
			PatientIdentity:      pa.PatientIdentity,
			ReportMetadata:       pa.ReportMetadata,
			Findings:             pa.Findings,
			Diagnosis:            pa.Diagnosis,
			Recommendations:      pa.Recommendations,
			ExtractionConfidence: pa.ExtractionConfidence,
		}
	}

	return model.ReportResult{
		FileName:       report.FileName,
		Status:         model.ReportStatusSuccess,
		TotalPages:     doc.TotalPages,
		SourceType:     doc.SourceType,
		Pages:          pages,
		MergedAnalysis: &merged,
		Warnings:       dedupe(warnings),
	}
}

// analyzePages extracts every page under the LLM semaphore. Page-level
// model and parse problems are already folded into the analyses as
// warnings; an error here means the gateway is down or a budget expired,
// which fails the whole report.
func (p *AnalysisProcessor) analyzePages(ctx context.Context, doc model.DocumentOCR) ([]model.PageAnalysis, error) {
	analyses := make([]model.PageAnalysis, len(doc.Pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range doc.Pages {
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(gctx, p.perPage)
			defer cancel()
			if err := p.sems.LLM.Acquire(pageCtx, 1); err != nil {
				return err
			}
			defer p.sems.LLM.Release(1)
			pa, err := p.extractor.AnalyzePage(pageCtx, page)
			if err != nil {
				return err
			}
			analyses[i] = pa
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return analyses, nil
}

func (p *AnalysisProcessor) fail(ctx context.Context, id uuid.UUID, cause error) {
	msg := failureMessage(cause)
	tctx, cancel := terminalCtx(ctx)
	defer cancel()
	if err := p.db.FailJob(tctx, id, msg); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			p.logger.Info("analysis job cancelled before failure recorded", "job_id", id)
			return
		}
		p.logger.Error("mark analysis job failed", "job_id", id, "error", err)
		return
	}
	p.logger.Warn("analysis job failed", "job_id", id, "error", cause)
}

func errorResult(fileName, message string) model.ReportResult {
	return model.ReportResult{
		FileName: fileName,
		Status:   model.ReportStatusError,
		Error:    message,
	}
}

func sourceTypeFor(fileName string) (model.SourceType, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png", ".jpg", ".jpeg", ".tiff", ".bmp":
		return model.SourceTypeImage, true
	case ".pdf":
		return model.SourceTypePDF, true
	}
	return "", false
}
