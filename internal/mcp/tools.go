package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

func (s *Server) registerTools() {
	// submit_analysis — queue AI document analysis for a patient.
	s.mcpServer.AddTool(
		mcplib.NewTool("submit_analysis",
			mcplib.WithDescription(`Queue AI document analysis for a patient's uploaded reports.

WHEN TO USE: After reports have been uploaded for a patient and you need
structured findings (diagnoses, medications, lab values, staging) extracted
from them. Analysis runs in the background; poll get_analysis_status with
the returned jobId to follow progress.

WHAT YOU GET BACK: the queued job in the standard status shape, including
jobId, reportCount and estimatedSeconds. If the patient has no reports the
status is "no_reports" and nothing is queued.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("patient",
				mcplib.Description("Patient reference: the row UUID or the hospital-assigned patient ID (e.g. PT-2024-001)"),
				mcplib.Required(),
			),
		),
		s.handleSubmitAnalysis,
	)

	// get_analysis_status — poll an analysis job.
	s.mcpServer.AddTool(
		mcplib.NewTool("get_analysis_status",
			mcplib.WithDescription(`Get the status of AI document analysis.

WHEN TO USE: After submit_analysis, to follow a job to completion. Pass
job_id for a specific job, or patient to get the patient's latest job
(status "idle" if the patient has never been analyzed).

WHAT YOU GET BACK: status (queued/processing/completed/failed/cancelled),
elapsed and estimated seconds, and for completed jobs the full result
payload with per-report findings.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("job_id",
				mcplib.Description("Analysis job UUID returned by submit_analysis"),
			),
			mcplib.WithString("patient",
				mcplib.Description("Patient reference (row UUID or hospital-assigned patient ID); returns the latest job"),
			),
		),
		s.handleAnalysisStatus,
	)

	// get_tumor_board_view — read the prepared multi-specialist view.
	s.mcpServer.AddTool(
		mcplib.NewTool("get_tumor_board_view",
			mcplib.WithDescription(`Get the AI-prepared tumor board view for a case.

WHEN TO USE: When preparing for or running a tumor board discussion. The
view contains the per-specialist assessments (radiology, pathology,
oncology), the synthesized treatment recommendation and the governance
trail produced by the board pipeline.

Returns status "no_data" when the case has not completed AI processing;
submit the case first and poll its status via the HTTP API or list_cases.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("case_id",
				mcplib.Description("Tumor board case UUID"),
				mcplib.Required(),
			),
		),
		s.handleTumorBoardView,
	)

	// list_cases — list the hospital's tumor board cases.
	s.mcpServer.AddTool(
		mcplib.NewTool("list_cases",
			mcplib.WithDescription(`List the hospital's tumor board cases, newest first.

WHEN TO USE: To find case IDs for get_tumor_board_view, or to get an
overview of what is queued, processing, completed or failed. Soft-deleted
cases never appear.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("status",
				mcplib.Description("Optional status filter: draft, queued, processing, completed, failed or cancelled"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleListCases,
	)
}

func (s *Server) handleSubmitAnalysis(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, errRes := requireClaims(ctx)
	if errRes != nil {
		return errRes, nil
	}

	ref := request.GetString("patient", "")
	if ref == "" {
		return errorResult("patient is required"), nil
	}

	patient, err := s.db.FindPatient(ctx, claims.HospitalID, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("Patient not found"), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load patient: %v", err)), nil
	}

	reports, err := s.db.ListReportsByPatient(ctx, patient.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list reports: %v", err)), nil
	}

	now := time.Now().UTC()
	if len(reports) == 0 {
		msg := "No reports found for this patient"
		return jsonResult(model.JobStatusResponse{
			Status:      model.AnalysisStatusNoReports,
			GeneratedAt: &now,
			Error:       &msg,
		}), nil
	}

	estimate := len(reports) * s.secondsPerReport
	job, err := s.db.CreateAnalysisJob(ctx, model.AnalysisJob{
		PatientID:        patient.ID,
		HospitalID:       claims.HospitalID,
		Status:           model.JobStatusQueued,
		ReportCount:      len(reports),
		EstimatedSeconds: &estimate,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("failed to queue analysis: %v", err)), nil
	}

	s.recordActivity(ctx, claims, model.ActionAnalysisSubmit, "ai_analysis", job.ID,
		fmt.Sprintf("Queued AI analysis for patient: %s", patient.Name))

	return jsonResult(model.NewJobStatusResponse(job, now)), nil
}

func (s *Server) handleAnalysisStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, errRes := requireClaims(ctx)
	if errRes != nil {
		return errRes, nil
	}

	jobRef := request.GetString("job_id", "")
	patientRef := request.GetString("patient", "")

	switch {
	case jobRef != "":
		jobID, err := uuid.Parse(jobRef)
		if err != nil {
			return errorResult("invalid job_id"), nil
		}
		job, err := s.db.GetJob(ctx, claims.HospitalID, jobID)
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult("Job not found"), nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("failed to load job: %v", err)), nil
		}
		return jsonResult(model.NewJobStatusResponse(job, time.Now().UTC())), nil

	case patientRef != "":
		patient, err := s.db.FindPatient(ctx, claims.HospitalID, patientRef)
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult("Patient not found"), nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("failed to load patient: %v", err)), nil
		}
		job, err := s.db.LatestJobByPatient(ctx, patient.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return jsonResult(model.JobStatusResponse{Status: model.AnalysisStatusIdle}), nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("failed to load job: %v", err)), nil
		}
		return jsonResult(model.NewJobStatusResponse(job, time.Now().UTC())), nil

	default:
		return errorResult("job_id or patient is required"), nil
	}
}

func (s *Server) handleTumorBoardView(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, errRes := requireClaims(ctx)
	if errRes != nil {
		return errRes, nil
	}

	caseRef := request.GetString("case_id", "")
	if caseRef == "" {
		return errorResult("case_id is required"), nil
	}
	caseID, err := uuid.Parse(caseRef)
	if err != nil {
		return errorResult("invalid case_id"), nil
	}

	allowed, err := authz.CanAccessCase(ctx, s.db, s.owners, claims, caseID)
	if err != nil {
		return errorResult(fmt.Sprintf("authorization check failed: %v", err)), nil
	}
	if !allowed {
		return errorResult("Tumor board case not found"), nil
	}

	c, err := s.db.GetCase(ctx, caseID)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("Tumor board case not found"), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load case: %v", err)), nil
	}

	if !c.HasAIData() {
		return jsonResult(model.CaseViewResponse{
			Status:  "no_data",
			CaseID:  c.ID,
			Message: "No AI analysis data available for this patient",
		}), nil
	}

	resp := model.CaseViewResponse{
		Status:         "success",
		CaseID:         c.ID,
		TumorBoardView: c.AITumorBoardJSON,
	}
	if patient, err := s.db.GetPatient(ctx, c.HospitalID, c.PatientID); err == nil {
		resp.Patient = &model.CasePatientRef{
			ID:         patient.ID,
			Name:       patient.Name,
			PatientID:  patient.PatientID,
			CancerType: patient.CancerType,
		}
	}
	return jsonResult(resp), nil
}

func (s *Server) handleListCases(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, errRes := requireClaims(ctx)
	if errRes != nil {
		return errRes, nil
	}

	status := request.GetString("status", "")
	limit := request.GetInt("limit", 10)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.ListCases(ctx, claims.HospitalID, status, limit, 0)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list cases: %v", err)), nil
	}

	cases := make([]model.CaseResponse, len(rows))
	for i, row := range rows {
		patient := row.Patient
		cases[i] = model.NewCaseResponse(row.BoardCase, &patient)
	}

	return jsonResult(map[string]any{
		"cases": cases,
		"total": len(cases),
	}), nil
}

// jsonResult marshals v as indented JSON into a single text content block.
func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
