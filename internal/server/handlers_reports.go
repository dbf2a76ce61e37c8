package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// multipartMemoryLimit is how much of a multipart body is held in memory
// before spilling to temp files.
const multipartMemoryLimit = 8 << 20

// HandleUploadReports handles POST /v1/patients/{id}/reports. Multiple
// files arrive in one multipart request; each becomes a report row with
// the file stored under the upload directory, namespaced per patient.
func (h *Handlers) HandleUploadReports(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid multipart form")
		return
	}

	category := r.FormValue("category")
	if !model.ValidReportCategory(category) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"invalid category: must be one of imaging, pathology, lab, clinical")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "No files provided")
		return
	}

	patientDir := filepath.Join(h.uploadDir, patient.ID.String())
	if err := os.MkdirAll(patientDir, 0o750); err != nil {
		h.writeInternalError(w, r, "failed to prepare upload directory", err)
		return
	}

	uploaded := make([]model.Report, 0, len(files))
	for _, header := range files {
		name := filepath.Base(header.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid file name")
			return
		}

		size, path, err := h.saveUpload(header, patientDir)
		if err != nil {
			h.writeInternalError(w, r, "Failed to save file", err)
			return
		}

		report, err := h.db.CreateReport(r.Context(), model.Report{
			FileName:  name,
			FilePath:  path,
			FileSize:  size,
			FileType:  model.FileTypeFor(name),
			Category:  category,
			Status:    "pending",
			PatientID: patient.ID,
		})
		if err != nil {
			h.writeInternalError(w, r, "failed to record report", err)
			return
		}
		uploaded = append(uploaded, report)
	}

	h.recordActivity(r, model.ActionReportUpload, "report", patient.ID,
		fmt.Sprintf("Uploaded %d report(s) for patient: %s", len(uploaded), patient.Name))

	writeJSON(w, r, http.StatusCreated, model.UploadResponse{
		Message:  "Files uploaded successfully",
		Uploaded: len(uploaded),
		Reports:  uploaded,
	})
}

// saveUpload streams one multipart file to disk under dir with a
// collision-proof name and returns the written size and path.
func (h *Handlers) saveUpload(header *multipart.FileHeader, dir string) (int64, string, error) {
	src, err := header.Open()
	if err != nil {
		return 0, "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	id := uuid.New()
	name := hex.EncodeToString(id[:]) + "_" + filepath.Base(header.Filename)
	path := filepath.Join(dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", path, err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		_ = os.Remove(path)
		return 0, "", fmt.Errorf("write %s: %w", path, err)
	}
	return size, path, nil
}

// HandleListPatientReports handles GET /v1/patients/{id}/reports.
func (h *Handlers) HandleListPatientReports(w http.ResponseWriter, r *http.Request) {
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

	reports, err := h.db.ListReportsByPatient(r.Context(), patientID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list reports", err)
		return
	}

	writeJSON(w, r, http.StatusOK, reports)
}

// HandleRecentReports handles GET /v1/reports/recent: the dashboard's
// latest-uploads feed.
func (h *Handlers) HandleRecentReports(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	rows, err := h.db.RecentReports(r.Context(), claims.HospitalID, queryLimit(r, 10))
	if err != nil {
		h.writeInternalError(w, r, "failed to list recent reports", err)
		return
	}

	now := time.Now().UTC()
	recent := make([]model.RecentUpload, len(rows))
	for i, row := range rows {
		recent[i] = model.RecentUpload{
			ID:          row.ID,
			PatientName: row.PatientName,
			PatientID:   row.PatientRef,
			FileType:    model.CategoryLabel(row.Category),
			Category:    row.Category,
			Timestamp:   timeAgo(row.UploadedAt, now),
			Status:      row.Status,
		}
	}

	writeJSON(w, r, http.StatusOK, recent)
}

// HandleDownloadReport handles GET /v1/reports/{id}/download.
func (h *Handlers) HandleDownloadReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	id, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	report, err := h.db.GetReport(r.Context(), claims.HospitalID, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Report not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load report", err)
		return
	}

	f, err := os.Open(report.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "File not found on server")
			return
		}
		h.writeInternalError(w, r, "failed to open report file", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeInternalError(w, r, "failed to stat report file", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	http.ServeContent(w, r, report.FileName, info.ModTime(), f)
}

// HandleDeleteReport handles DELETE /v1/reports/{id}. The file is removed
// best-effort; the row always goes.
func (h *Handlers) HandleDeleteReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	id, err := parsePathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	report, err := h.db.GetReport(r.Context(), claims.HospitalID, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Report not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to load report", err)
		return
	}

	if err := os.Remove(report.FilePath); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("report file removal failed",
			"path", report.FilePath,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	if err := h.db.DeleteReport(r.Context(), claims.HospitalID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "Report not found")
			return
		}
		h.writeInternalError(w, r, "failed to delete report", err)
		return
	}

	h.recordActivity(r, model.ActionReportDelete, "report", id,
		fmt.Sprintf("Deleted report: %s", report.FileName))

	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Report deleted successfully"})
}

// timeAgo renders an upload age the way the dashboard feed shows it.
func timeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
