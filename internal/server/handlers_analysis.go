package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// HandleSubmitAnalysis handles POST /v1/patients/{id}/analysis. It queues
// a job for the worker pool and returns immediately; a patient with no
// uploaded reports gets the "no_reports" variant instead of a job.
func (h *Handlers) HandleSubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	patientID, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	patient, err := h.db.GetPatient(r.Context(), claims.HospitalID, patientID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load patient", err)
		return
	}

	reports, err := h.db.ListReportsByPatient(r.Context(), patient.ID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list reports", err)
		return
	}
	if len(reports) == 0 {
		now := time.Now().UTC()
		errMsg := "No reports found for this patient"
		writeJSON(w, r, http.StatusOK, model.JobStatusResponse{
			Status:      model.AnalysisStatusNoReports,
			GeneratedAt: &now,
			Error:       &errMsg,
		})
		return
	}

	estimate := len(reports) * h.secondsPerReport
	job, err := h.db.CreateAnalysisJob(r.Context(), model.AnalysisJob{
		PatientID:        patient.ID,
		HospitalID:       claims.HospitalID,
		Status:           model.JobStatusQueued,
		ReportCount:      len(reports),
		EstimatedSeconds: &estimate,
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to queue analysis job", err)
		return
	}

	h.recordActivity(r, model.ActionAnalysisSubmit, "ai_analysis", job.ID,
		fmt.Sprintf("Queued AI analysis for patient: %s", patient.Name))

	writeJSON(w, r, http.StatusAccepted, model.NewJobStatusResponse(job, time.Now().UTC()))
}

// HandleGetAnalysisJob handles GET /v1/analysis/{job_id}. Jobs outlive
// user sessions, so any holder of the job ID within the hospital can poll.
func (h *Handlers) HandleGetAnalysisJob(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	jobID, err := parsePathUUID(r, "job_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	job, err := h.db.GetJob(r.Context(), claims.HospitalID, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Job not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load job", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.NewJobStatusResponse(job, time.Now().UTC()))
}

// HandlePatientAnalysisStatus handles GET /v1/patients/{id}/analysis:
// the latest job for the patient, or the "idle" variant when none exists.
func (h *Handlers) HandlePatientAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	patientID, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if _, err := h.db.GetPatient(r.Context(), claims.HospitalID, patientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
			return
		}
		h.writeInternalError(w, r, "failed to load patient", err)
		return
	}

	job, err := h.db.LatestJobByPatient(r.Context(), patientID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, r, http.StatusOK, model.JobStatusResponse{Status: model.AnalysisStatusIdle})
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load latest job", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.NewJobStatusResponse(job, time.Now().UTC()))
}

// HandleCancelAnalysis handles POST /v1/patients/{id}/analysis/cancel.
// All queued and processing jobs for the patient are cancelled in bulk;
// the worker notices the flipped status at its next checkpoint.
func (h *Handlers) HandleCancelAnalysis(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	patientID, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	patient, err := h.db.GetPatient(r.Context(), claims.HospitalID, patientID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load patient", err)
		return
	}

	cancelled, err := h.db.CancelJobsByPatient(r.Context(), patientID)
	if err != nil {
		h.writeInternalError(w, r, "failed to cancel analysis jobs", err)
		return
	}

	if cancelled > 0 {
		h.recordActivity(r, model.ActionAnalysisCancel, "ai_analysis", patientID,
			fmt.Sprintf("Cancelled AI analysis for patient: %s", patient.Name))
	}

	writeJSON(w, r, http.StatusOK, model.CancelAnalysisResponse{
		Status:  "cancelled",
		Message: "Analysis cancelled",
	})
}

// HandleOrchestrationStatus handles GET /v1/orchestration/status: the
// external agent-service adapter's configuration, for diagnostics.
func (h *Handlers) HandleOrchestrationStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireClaims(w, r); !ok {
		return
	}

	if h.orchestrator == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"enabled": false, "mode": "local"})
		return
	}
	writeJSON(w, r, http.StatusOK, h.orchestrator.Status())
}
