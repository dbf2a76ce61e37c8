package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/tumorboard"
)

// hookTimeout bounds one round of terminal-state hook calls.
const hookTimeout = 10 * time.Second

// CaseHook receives notifications when a tumor board case reaches a
// terminal state. Hooks run in their own goroutine after the status is
// already persisted; failures are logged and never affect the case.
type CaseHook interface {
	OnCaseCompleted(ctx context.Context, c model.BoardCase, summary string) error
	OnCaseFailed(ctx context.Context, c model.BoardCase, reason string) error
}

// errNoAnalysisData is the stored failure message when a case is run for
// a patient with no completed document analysis to draw from.
var errNoAnalysisData = errors.New("No AI analysis data found for this patient")

// BoardProcessor runs one claimed tumor board case: a unified timeline
// pass over the patient's extracted data, followed by the multi-agent
// board, persisted together as the case's AI view.
type BoardProcessor struct {
	db       *storage.DB
	timeline *tumorboard.TimelineGenerator
	runner   *tumorboard.Runner
	hooks    []CaseHook
	logger   *slog.Logger
}

// NewBoardProcessor wires the timeline generator and agent runner to the
// case store.
func NewBoardProcessor(db *storage.DB, timeline *tumorboard.TimelineGenerator, runner *tumorboard.Runner, logger *slog.Logger) *BoardProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardProcessor{db: db, timeline: timeline, runner: runner, logger: logger}
}

// WithHooks registers terminal-state hooks and returns the processor for
// chaining during construction.
func (p *BoardProcessor) WithHooks(hooks ...CaseHook) *BoardProcessor {
	p.hooks = append(p.hooks, hooks...)
	return p
}

// boardResult is the persisted aiTumorBoardJson payload: the unified
// timeline view with the cleaned multi-agent view attached.
type boardResult struct {
	tumorboard.UnifiedView
	MultiAgentView model.TumorBoardView `json:"multi_agent_view"`
}

// Process runs a claimed case to a terminal state. Every progress write
// is guarded by the row still being in processing, so a cancellation that
// landed in the meantime surfaces as ErrInvalidTransition and stops the
// run without overwriting the cancelled status.
func (p *BoardProcessor) Process(ctx context.Context, c model.BoardCase) {
	log := p.logger.With("case_id", c.ID, "patient_id", c.PatientID)
	log.Info("tumor board case started")

	err := p.run(ctx, c)
	switch {
	case err == nil:
		log.Info("tumor board case completed")
	case errors.Is(err, storage.ErrInvalidTransition):
		log.Info("tumor board case cancelled mid-run")
	default:
		log.Error("tumor board case failed", "error", err)
		msg := failureMessage(err)
		tctx, cancel := terminalCtx(ctx)
		defer cancel()
		ferr := p.db.FailCase(tctx, c.ID, msg)
		switch {
		case ferr == nil:
			p.notifyFailed(c, msg)
		case errors.Is(ferr, storage.ErrInvalidTransition):
			log.Info("tumor board case cancelled mid-run")
		default:
			log.Error("mark tumor board case failed", "error", ferr)
		}
	}
}

func (p *BoardProcessor) run(ctx context.Context, c model.BoardCase) error {
	if err := p.db.UpdateCaseProgress(ctx, c.ID, 10, "Fetching patient data..."); err != nil {
		return err
	}
	patient, err := p.db.GetPatient(ctx, c.HospitalID, c.PatientID)
	if err != nil {
		return fmt.Errorf("fetch patient: %w", err)
	}
	p.recordStart(ctx, c, patient)
	data, err := p.caseData(ctx, patient)
	if err != nil {
		return err
	}
	if err := p.db.UpdateCaseProgress(ctx, c.ID, 25, "Patient data retrieved. Analyzing findings..."); err != nil {
		return err
	}

	if err := p.db.UpdateCaseProgress(ctx, c.ID, 35, "Running AI analysis on medical data..."); err != nil {
		return err
	}
	unified := p.timeline.Generate(ctx, data)
	if err := p.db.UpdateCaseProgress(ctx, c.ID, 50, "AI analysis complete. Running specialized agents..."); err != nil {
		return err
	}

	if err := p.db.UpdateCaseProgress(ctx, c.ID, 55, "Running Radiology Agent..."); err != nil {
		return err
	}
	multi := p.multiAgentView(ctx, data)
	if err := p.db.UpdateCaseProgress(ctx, c.ID, 70, "Running Pathology & Clinical Agents..."); err != nil {
		return err
	}
	if err := p.db.UpdateCaseProgress(ctx, c.ID, 80, "Synthesizing agent outputs..."); err != nil {
		return err
	}

	if err := p.db.UpdateCaseProgress(ctx, c.ID, 85, "Formatting tumor board report..."); err != nil {
		return err
	}
	payload, err := json.Marshal(boardResult{UnifiedView: unified, MultiAgentView: multi})
	if err != nil {
		return fmt.Errorf("encode tumor board view: %w", err)
	}

	if err := p.db.UpdateCaseProgress(ctx, c.ID, 90, "Saving results to database..."); err != nil {
		return err
	}
	summary := unified.Consensus.Summary
	if multi.ExecutiveSummary != "" {
		summary = multi.ExecutiveSummary
	}
	if err := p.db.CompleteCase(ctx, c.ID, payload, summary); err != nil {
		return err
	}

	p.recordCompletion(ctx, c, patient, unified.Confidence)
	p.notifyCompleted(c, summary)
	return nil
}

// notifyCompleted fires OnCaseCompleted hooks in the background. The case
// is already persisted as completed, so hook failures only warn.
func (p *BoardProcessor) notifyCompleted(c model.BoardCase, summary string) {
	if len(p.hooks) == 0 {
		return
	}
	hooks, logger := p.hooks, p.logger
	go func() {
		hctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnCaseCompleted(hctx, c, summary); err != nil {
				logger.Warn("case hook OnCaseCompleted failed", "error", err, "case_id", c.ID)
			}
		}
	}()
}

func (p *BoardProcessor) notifyFailed(c model.BoardCase, reason string) {
	if len(p.hooks) == 0 {
		return
	}
	hooks, logger := p.hooks, p.logger
	go func() {
		hctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnCaseFailed(hctx, c, reason); err != nil {
				logger.Warn("case hook OnCaseFailed failed", "error", err, "case_id", c.ID)
			}
		}
	}()
}

// caseData loads the patient's latest completed analysis and pools it
// into agent material. Absent or unreadable results mean the board has
// nothing to reason over.
func (p *BoardProcessor) caseData(ctx context.Context, patient model.Patient) (*tumorboard.CaseData, error) {
	job, err := p.db.LatestCompletedJobByPatient(ctx, patient.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errNoAnalysisData
	}
	if err != nil {
		return nil, fmt.Errorf("fetch analysis result: %w", err)
	}
	if len(job.Result) == 0 {
		return nil, errNoAnalysisData
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, errNoAnalysisData
	}
	return tumorboard.BuildCaseData(patient, result), nil
}

// multiAgentView runs the specialist board and cleans the result. The
// board itself degrades per agent, so the only way to get nothing back is
// a panic; that is caught and folded into a minimal failure view so the
// timeline result still completes the case.
func (p *BoardProcessor) multiAgentView(ctx context.Context, data *tumorboard.CaseData) (view model.TumorBoardView) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("multi-agent analysis panicked", "panic", r)
			view = fallbackBoardView(data, fmt.Sprintf("%v", r))
		}
	}()

	patientID := data.PatientInfo.PatientID
	if patientID == "" {
		patientID = "unknown"
	}
	radiology, pathology, clinical := data.AgentTexts()
	raw := p.runner.Run(ctx, tumorboard.RunInput{
		PatientID:     patientID,
		PatientName:   data.PatientInfo.Name,
		PatientAge:    data.PatientInfo.Age,
		PatientGender: data.PatientInfo.Gender,
		RadiologyText: radiology,
		PathologyText: pathology,
		ClinicalText:  clinical,
	})
	return tumorboard.CleanView(raw)
}

func fallbackBoardView(data *tumorboard.CaseData, errMsg string) model.TumorBoardView {
	msg := "Multi-agent analysis failed: " + errMsg
	patientID := data.PatientInfo.PatientID
	if patientID == "" {
		patientID = "unknown"
	}
	name := data.PatientInfo.Name
	if name == "" {
		name = "Unknown"
	}
	return model.TumorBoardView{
		PatientID:        patientID,
		PatientName:      name,
		ExecutiveSummary: msg,
		Findings: model.ViewFindings{
			Imaging:    []model.TumorBoardFinding{},
			Pathology:  []model.TumorBoardFinding{},
			Clinical:   []model.TumorBoardFinding{},
			Biomarkers: []model.TumorBoardFinding{},
		},
		Recommendations: model.ViewRecommendations{
			Treatment: []model.TumorBoardRecommendation{},
			Imaging:   []model.TumorBoardRecommendation{},
			Other:     []model.TumorBoardRecommendation{},
		},
		Warnings:          []string{msg},
		OverallConfidence: "low",
		AgentsUsed:        []string{},
	}
}

// recordStart writes the audit trail entry for a run the worker has
// picked up. Best-effort, like recordCompletion.
func (p *BoardProcessor) recordStart(ctx context.Context, c model.BoardCase, patient model.Patient) {
	name := patient.Name
	if name == "" {
		name = "Unknown"
	}
	entityID := c.ID.String()
	performedBy := "Karte AI"
	entry := model.ActivityEntry{
		HospitalID:  c.HospitalID,
		Action:      model.ActionTumorBoardAIStart,
		EntityType:  "tumor_board",
		EntityID:    &entityID,
		Description: "Started AI tumor board analysis for patient: " + name,
		PerformedBy: &performedBy,
	}
	if err := p.db.InsertActivity(ctx, entry); err != nil {
		p.logger.Warn("record tumor board activity", "error", err)
	}
}

// recordCompletion writes the audit trail entry for a finished board run.
// Best-effort: the case is already completed, so a logging failure only
// warns.
func (p *BoardProcessor) recordCompletion(ctx context.Context, c model.BoardCase, patient model.Patient, confidence float64) {
	name := patient.Name
	if name == "" {
		name = "Unknown"
	}
	meta, err := json.Marshal(map[string]any{"confidence": confidence})
	if err != nil {
		meta = []byte("{}")
	}
	entityID := c.ID.String()
	metadata := string(meta)
	performedBy := "Karte AI"
	entry := model.ActivityEntry{
		HospitalID:  c.HospitalID,
		Action:      model.ActionTumorBoardAIComplete,
		EntityType:  "tumor_board",
		EntityID:    &entityID,
		Description: "Completed AI tumor board analysis for patient: " + name,
		Metadata:    &metadata,
		PerformedBy: &performedBy,
	}
	if err := p.db.InsertActivity(ctx, entry); err != nil {
		p.logger.Warn("record tumor board activity", "error", err)
	}
}
