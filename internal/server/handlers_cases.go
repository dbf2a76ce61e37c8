package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// caseSummaryMaxLen caps the aiSummary preview stored on a new case.
const caseSummaryMaxLen = 2000

// HandleListCases handles GET /v1/cases. Deleted cases never appear.
func (h *Handlers) HandleListCases(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	rows, err := h.db.ListCases(r.Context(), claims.HospitalID, status, queryLimit(r, 50), queryOffset(r))
	if err != nil {
		h.writeInternalError(w, r, "failed to list cases", err)
		return
	}

	cases := make([]model.CaseResponse, len(rows))
	for i, row := range rows {
		patient := row.Patient
		cases[i] = model.NewCaseResponse(row.BoardCase, &patient)
	}

	writeJSON(w, r, http.StatusOK, cases)
}

// HandleCreateCase handles POST /v1/cases. The patient reference accepts
// either the row UUID or the hospital's own patient identifier. A preview
// of the latest completed analysis is stored as the aiSummary.
func (h *Handlers) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	var req model.CreateCaseRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.PatientID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "patientId is required")
		return
	}

	patient, err := h.db.FindPatient(r.Context(), claims.HospitalID, req.PatientID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load patient", err)
		return
	}

	c, err := h.db.CreateCase(r.Context(), model.BoardCase{
		PatientID:  patient.ID,
		HospitalID: claims.HospitalID,
		AISummary:  h.caseSummary(r.Context(), patient.ID),
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to create case", err)
		return
	}

	h.recordActivity(r, model.ActionTumorBoardCreate, "tumor_board", c.ID,
		fmt.Sprintf("Created tumor board case for patient: %s", patient.Name))

	writeJSON(w, r, http.StatusCreated, model.NewCaseResponse(c, &patient))
}

// caseSummary builds the aiSummary preview for a new case from the
// patient's latest completed analysis. No analysis, no preview.
func (h *Handlers) caseSummary(ctx context.Context, patientID uuid.UUID) *string {
	job, err := h.db.LatestCompletedJobByPatient(ctx, patientID)
	if err != nil || len(job.Result) == 0 {
		return nil
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil
	}

	var diagnoses, recommendations []string
	for _, rep := range result.Results {
		if rep.MergedAnalysis == nil {
			continue
		}
		diagnoses = append(diagnoses, rep.MergedAnalysis.Diagnoses...)
		recommendations = append(recommendations, rep.MergedAnalysis.Recommendations...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reports analyzed: %d", result.ReportCount)
	if len(diagnoses) > 0 {
		fmt.Fprintf(&b, "\nDiagnoses: %s", strings.Join(diagnoses, "; "))
	}
	if len(recommendations) > 0 {
		fmt.Fprintf(&b, "\nRecommendations: %s", strings.Join(recommendations, "; "))
	}

	summary := b.String()
	if len(summary) > caseSummaryMaxLen {
		summary = summary[:caseSummaryMaxLen]
	}
	return &summary
}

// loadCase fetches a case after the ownership check, translating misses
// and foreign rows into the same 404. Returns false when a response was
// already written.
func (h *Handlers) loadCase(w http.ResponseWriter, r *http.Request) (model.BoardCase, bool) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return model.BoardCase{}, false
	}

	id, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return model.BoardCase{}, false
	}

	allowed, err := h.canAccessCase(r.Context(), claims, id)
	if err != nil {
		h.writeInternalError(w, r, "failed to check case access", err)
		return model.BoardCase{}, false
	}
	if !allowed {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Tumor board case not found")
		return model.BoardCase{}, false
	}

	c, err := h.db.GetCase(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Tumor board case not found")
		return model.BoardCase{}, false
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load case", err)
		return model.BoardCase{}, false
	}
	return c, true
}

// casePatient loads the case's patient for response embedding. Best
// effort: a missing row yields nil rather than an error.
func (h *Handlers) casePatient(ctx context.Context, hospitalID, patientID uuid.UUID) *model.Patient {
	patient, err := h.db.GetPatient(ctx, hospitalID, patientID)
	if err != nil {
		return nil
	}
	return &patient
}

// HandleGetCase handles GET /v1/cases/{id}.
func (h *Handlers) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	patient := h.casePatient(r.Context(), c.HospitalID, c.PatientID)
	writeJSON(w, r, http.StatusOK, model.NewCaseResponse(c, patient))
}

// HandleUpdateCase handles PUT /v1/cases/{id}: the clinician-editable
// notes and decisions. Queue states are reserved for the submit, cancel
// and delete endpoints.
func (h *Handlers) HandleUpdateCase(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCaseRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Empty() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "No fields to update")
		return
	}
	if req.Status != nil {
		switch model.JobStatus(*req.Status) {
		case model.JobStatusQueued, model.JobStatusProcessing, model.JobStatusDeleted:
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				fmt.Sprintf("cannot set status to '%s' directly, use the submit, cancel or delete endpoints", *req.Status))
			return
		}
	}

	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	if req.RadiologyNotes != nil {
		c.RadiologyNotes = req.RadiologyNotes
	}
	if req.PathologyNotes != nil {
		c.PathologyNotes = req.PathologyNotes
	}
	if req.OncologyNotes != nil {
		c.OncologyNotes = req.OncologyNotes
	}
	if req.GuidelinesRef != nil {
		c.GuidelinesRef = req.GuidelinesRef
	}
	if req.Recommendations != nil {
		c.Recommendations = req.Recommendations
	}
	if req.FinalDecision != nil {
		c.FinalDecision = req.FinalDecision
	}
	if req.Status != nil {
		c.Status = model.JobStatus(*req.Status)
	}

	updated, err := h.db.UpdateCaseNotes(r.Context(), c)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Tumor board case not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to update case", err)
		return
	}

	patient := h.casePatient(r.Context(), updated.HospitalID, updated.PatientID)
	name := "Unknown"
	if patient != nil {
		name = patient.Name
	}
	h.recordActivity(r, model.ActionTumorBoardUpdate, "tumor_board", updated.ID,
		fmt.Sprintf("Updated tumor board case for patient: %s", name))

	writeJSON(w, r, http.StatusOK, model.NewCaseResponse(updated, patient))
}

// HandleCaseStatus handles GET /v1/cases/{id}/status, the progress poll.
func (h *Handlers) HandleCaseStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	resp := model.CaseStatusResponse{
		ID:                    c.ID,
		Status:                c.Status,
		ProgressPercent:       c.ProgressPercent,
		ProgressMessage:       c.ProgressMessage,
		ErrorMessage:          c.ErrorMessage,
		ProcessingStartedAt:   c.ProcessingStartedAt,
		ProcessingCompletedAt: c.ProcessingCompletedAt,
		HasAIData:             c.HasAIData(),
	}
	if patient := h.casePatient(r.Context(), c.HospitalID, c.PatientID); patient != nil {
		resp.PatientName = &patient.Name
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleCaseAIView handles GET /v1/cases/{id}/ai-view: the stored
// multi-agent view, verbatim.
func (h *Handlers) HandleCaseAIView(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	if !c.HasAIData() {
		writeJSON(w, r, http.StatusOK, model.CaseViewResponse{
			Status:  "no_data",
			CaseID:  c.ID,
			Message: "No AI analysis data available for this patient",
		})
		return
	}

	resp := model.CaseViewResponse{
		Status:         "success",
		CaseID:         c.ID,
		TumorBoardView: c.AITumorBoardJSON,
	}
	if patient := h.casePatient(r.Context(), c.HospitalID, c.PatientID); patient != nil {
		resp.Patient = &model.CasePatientRef{
			ID:         patient.ID,
			Name:       patient.Name,
			PatientID:  patient.PatientID,
			CancerType: patient.CancerType,
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleSubmitCase handles POST /v1/cases/{id}/submit. The transition is
// guarded in SQL; losing the guard means the case was not submittable.
func (h *Handlers) HandleSubmitCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	if err := h.db.SubmitCase(r.Context(), c.ID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			current := h.caseStatusNow(r.Context(), c)
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				fmt.Sprintf("Cannot submit case in '%s' state. Must be in: ['draft', 'failed']", current))
			return
		}
		h.writeInternalError(w, r, "failed to submit case", err)
		return
	}

	h.recordActivity(r, model.ActionTumorBoardSubmit, "tumor_board", c.ID,
		"Submitted tumor board case for AI processing")

	writeJSON(w, r, http.StatusOK, model.CaseActionResponse{
		Status:  model.JobStatusQueued,
		Message: "Case submitted for processing. This may take 10-15 minutes.",
		CaseID:  c.ID,
	})
}

// HandleRetryCase handles POST /v1/cases/{id}/retry.
func (h *Handlers) HandleRetryCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	if err := h.db.RetryCase(r.Context(), c.ID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			current := h.caseStatusNow(r.Context(), c)
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				fmt.Sprintf("Can only retry cases in 'failed' state. Current state: %s", current))
			return
		}
		h.writeInternalError(w, r, "failed to retry case", err)
		return
	}

	h.recordActivity(r, model.ActionTumorBoardRetry, "tumor_board", c.ID,
		"Requeued tumor board case for AI processing")

	writeJSON(w, r, http.StatusOK, model.CaseActionResponse{
		Status:  model.JobStatusQueued,
		Message: "Case requeued for processing",
		CaseID:  c.ID,
	})
}

// HandleCancelCase handles POST /v1/cases/{id}/cancel. Cancelling a case
// that is not running is not an error; the response just reports the
// current state.
func (h *Handlers) HandleCancelCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	if err := h.db.CancelCase(r.Context(), c.ID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			current := h.caseStatusNow(r.Context(), c)
			writeJSON(w, r, http.StatusOK, model.CaseActionResponse{
				Status:  current,
				Message: fmt.Sprintf("Case is not processing (current status: %s)", current),
				CaseID:  c.ID,
			})
			return
		}
		h.writeInternalError(w, r, "failed to cancel case", err)
		return
	}

	h.recordActivity(r, model.ActionTumorBoardCancel, "tumor_board", c.ID,
		"Cancelled tumor board AI processing")

	writeJSON(w, r, http.StatusOK, model.CaseActionResponse{
		Status:  model.JobStatusCancelled,
		Message: "Processing cancelled",
		CaseID:  c.ID,
	})
}

// HandleDeleteCase handles DELETE /v1/cases/{id}: a soft delete that
// records who removed the case. A running case is deletable, with a
// warning that its worker may still be mid-flight.
func (h *Handlers) HandleDeleteCase(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	if c.Status == model.JobStatusDeleted {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"This tumor board case has already been deleted")
		return
	}

	var warning *string
	if c.Status == model.JobStatusProcessing {
		msg := "Case was in processing state. Processing may continue in background."
		warning = &msg
	}

	if err := h.db.SoftDeleteCase(r.Context(), c.ID, claims.Email); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				"This tumor board case has already been deleted")
			return
		}
		h.writeInternalError(w, r, "failed to delete case", err)
		return
	}

	h.recordActivity(r, model.ActionTumorBoardDelete, "tumor_board", c.ID,
		"Deleted tumor board case")

	writeJSON(w, r, http.StatusOK, model.CaseActionResponse{
		Status:  model.JobStatusDeleted,
		Message: "Tumor board case deleted successfully",
		Warning: warning,
		CaseID:  c.ID,
	})
}

// caseStatusNow re-reads a case's status after a guarded transition was
// refused, falling back to the previously read value.
func (h *Handlers) caseStatusNow(ctx context.Context, c model.BoardCase) model.JobStatus {
	fresh, err := h.db.GetCase(ctx, c.ID)
	if err != nil {
		return c.Status
	}
	return fresh.Status
}
