package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// HandleListPatients handles GET /v1/patients.
func (h *Handlers) HandleListPatients(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := storage.PatientFilter{
		Status:     q.Get("status"),
		CancerType: q.Get("cancerType"),
		Search:     q.Get("search"),
		Limit:      queryLimit(r, 50),
		Offset:     queryOffset(r),
	}

	patients, total, err := h.db.ListPatients(r.Context(), claims.HospitalID, filter)
	if err != nil {
		h.writeInternalError(w, r, "failed to list patients", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.PatientListResponse{
		Patients: patients,
		Total:    total,
	})
}

// HandleCreatePatient handles POST /v1/patients.
func (h *Handlers) HandleCreatePatient(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	var req model.CreatePatientRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Name = strings.TrimSpace(req.Name)
	if req.PatientID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "patientId is required")
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}
	if len(req.Name) > model.MaxNameLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name too long")
		return
	}

	status := "active"
	if req.Status != nil && *req.Status != "" {
		status = *req.Status
	}

	patient, err := h.db.CreatePatient(r.Context(), model.Patient{
		PatientID:  req.PatientID,
		Name:       req.Name,
		Age:        req.Age,
		Gender:     req.Gender,
		CancerType: req.CancerType,
		Status:     status,
		HospitalID: claims.HospitalID,
	})
	if errors.Is(err, storage.ErrDuplicatePatientID) {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "A patient with this ID already exists")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to create patient", err)
		return
	}

	h.recordActivity(r, model.ActionPatientAdd, "patient", patient.ID,
		fmt.Sprintf("Added new patient: %s (%s)", patient.Name, patient.PatientID))

	writeJSON(w, r, http.StatusCreated, patient)
}

// HandleGetPatient handles GET /v1/patients/{id}. The detail view carries
// the patient's reports and analysis job history.
func (h *Handlers) HandleGetPatient(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	id, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	patient, err := h.db.GetPatient(r.Context(), claims.HospitalID, id)
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
		h.writeInternalError(w, r, "failed to load patient reports", err)
		return
	}

	jobRows, err := h.db.ListJobsByPatient(r.Context(), patient.ID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load analysis jobs", err)
		return
	}
	now := time.Now().UTC()
	jobStatuses := make([]model.JobStatusResponse, len(jobRows))
	for i, job := range jobRows {
		jobStatuses[i] = model.NewJobStatusResponse(job, now)
	}

	writeJSON(w, r, http.StatusOK, model.PatientDetailResponse{
		Patient:      patient,
		Reports:      reports,
		AnalysisJobs: jobStatuses,
	})
}

// HandleUpdatePatient handles PATCH /v1/patients/{id}.
func (h *Handlers) HandleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	id, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.UpdatePatientRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Empty() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "No fields to update")
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name cannot be empty")
			return
		}
		if len(trimmed) > model.MaxNameLen {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name too long")
			return
		}
		req.Name = &trimmed
	}

	patient, err := h.db.GetPatient(r.Context(), claims.HospitalID, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load patient", err)
		return
	}

	if req.Name != nil {
		patient.Name = *req.Name
	}
	if req.Age != nil {
		patient.Age = req.Age
	}
	if req.Gender != nil {
		patient.Gender = req.Gender
	}
	if req.CancerType != nil {
		patient.CancerType = req.CancerType
	}
	if req.Status != nil {
		patient.Status = *req.Status
	}

	updated, err := h.db.UpdatePatient(r.Context(), patient)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to update patient", err)
		return
	}

	h.recordActivity(r, model.ActionPatientUpdate, "patient", updated.ID,
		fmt.Sprintf("Updated patient: %s (%s)", updated.Name, updated.PatientID))

	writeJSON(w, r, http.StatusOK, updated)
}

// HandleDeletePatient handles DELETE /v1/patients/{id}. Reports, analysis
// jobs and cases cascade in the database.
func (h *Handlers) HandleDeletePatient(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	id, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	patient, err := h.db.GetPatient(r.Context(), claims.HospitalID, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load patient", err)
		return
	}

	if err := h.db.DeletePatient(r.Context(), claims.HospitalID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Patient not found")
			return
		}
		h.writeInternalError(w, r, "failed to delete patient", err)
		return
	}

	h.recordActivity(r, model.ActionPatientDelete, "patient", id,
		fmt.Sprintf("Deleted patient: %s (%s)", patient.Name, patient.PatientID))

	w.WriteHeader(http.StatusNoContent)
}
