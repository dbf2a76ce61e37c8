package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chartmed-ai/karte/internal/model"
)

// CreateReport inserts an uploaded report record and returns it.
func (db *DB) CreateReport(ctx context.Context, r model.Report) (model.Report, error) {
	r.ID = uuid.New()
	if r.Status == "" {
		r.Status = "pending"
	}
	r.UploadedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO reports (id, file_name, file_path, file_size, file_type, category, status, patient_id, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.FileName, r.FilePath, r.FileSize, r.FileType, r.Category, r.Status, r.PatientID, r.UploadedAt,
	)
	if err != nil {
		return model.Report{}, fmt.Errorf("storage: create report: %w", err)
	}
	return r, nil
}

// GetReport retrieves a report by ID, scoped to the given hospital via the
// owning patient.
func (db *DB) GetReport(ctx context.Context, hospitalID, id uuid.UUID) (model.Report, error) {
	var r model.Report
	err := db.pool.QueryRow(ctx,
		`SELECT r.id, r.file_name, r.file_path, r.file_size, r.file_type, r.category, r.status, r.patient_id, r.uploaded_at
		 FROM reports r JOIN patients p ON p.id = r.patient_id
		 WHERE r.id = $1 AND p.hospital_id = $2`, id, hospitalID,
	).Scan(&r.ID, &r.FileName, &r.FilePath, &r.FileSize, &r.FileType, &r.Category, &r.Status, &r.PatientID, &r.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Report{}, ErrNotFound
		}
		return model.Report{}, fmt.Errorf("storage: get report: %w", err)
	}
	return r, nil
}

// ListReportsByPatient returns a patient's reports ordered by uploaded_at DESC.
func (db *DB) ListReportsByPatient(ctx context.Context, patientID uuid.UUID) ([]model.Report, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, file_name, file_path, file_size, file_type, category, status, patient_id, uploaded_at
		 FROM reports WHERE patient_id = $1 ORDER BY uploaded_at DESC`, patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var r model.Report
		if err := rows.Scan(&r.ID, &r.FileName, &r.FilePath, &r.FileSize, &r.FileType,
			&r.Category, &r.Status, &r.PatientID, &r.UploadedAt); err != nil {
			return nil, fmt.Errorf("storage: scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// RecentReports returns a hospital's newest uploads joined with patient
// names, for the dashboard feed.
func (db *DB) RecentReports(ctx context.Context, hospitalID uuid.UUID, limit int) ([]model.ReportWithPatient, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT r.id, r.file_name, r.file_path, r.file_size, r.file_type, r.category, r.status, r.patient_id, r.uploaded_at,
		        p.name, p.patient_id
		 FROM reports r JOIN patients p ON p.id = r.patient_id
		 WHERE p.hospital_id = $1
		 ORDER BY r.uploaded_at DESC LIMIT %d`, limit,
	), hospitalID)
	if err != nil {
		return nil, fmt.Errorf("storage: recent reports: %w", err)
	}
	defer rows.Close()

	var reports []model.ReportWithPatient
	for rows.Next() {
		var r model.ReportWithPatient
		if err := rows.Scan(&r.ID, &r.FileName, &r.FilePath, &r.FileSize, &r.FileType,
			&r.Category, &r.Status, &r.PatientID, &r.UploadedAt, &r.PatientName, &r.PatientRef); err != nil {
			return nil, fmt.Errorf("storage: scan recent report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// DeleteReport removes a report record, scoped to the given hospital. The
// caller removes the file from disk.
func (db *DB) DeleteReport(ctx context.Context, hospitalID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM reports r USING patients p
		 WHERE r.patient_id = p.id AND r.id = $1 AND p.hospital_id = $2`, id, hospitalID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
