package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chartmed-ai/karte/internal/model"
)

const caseColumns = `id, patient_id, hospital_id, status, ai_summary,
	 radiology_notes, pathology_notes, oncology_notes, guidelines_ref, recommendations, final_decision,
	 progress_percent, progress_message, error_message, ai_tumor_board_json,
	 processing_started_at, processing_completed_at, deleted_at, deleted_by, created_at, updated_at`

// CreateCase inserts a new draft case and returns it.
func (db *DB) CreateCase(ctx context.Context, c model.BoardCase) (model.BoardCase, error) {
	now := time.Now().UTC()
	c.ID = uuid.New()
	c.Status = model.JobStatusDraft
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO tumor_board_cases (id, patient_id, hospital_id, status, ai_summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.PatientID, c.HospitalID, string(c.Status), c.AISummary, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return model.BoardCase{}, fmt.Errorf("storage: create case: %w", err)
	}
	return c, nil
}

// GetCase retrieves a case by ID. Callers authorize against HospitalID;
// the worker fetches claimed cases this way too.
func (db *DB) GetCase(ctx context.Context, id uuid.UUID) (model.BoardCase, error) {
	return db.scanCase(db.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM tumor_board_cases WHERE id = $1`, id,
	))
}

// CaseOwner returns the hospital that owns a case. The authz cache fronts
// this lookup on polled endpoints.
func (db *DB) CaseOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var hospitalID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT hospital_id FROM tumor_board_cases WHERE id = $1`, id,
	).Scan(&hospitalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("storage: case owner: %w", err)
	}
	return hospitalID, nil
}

// PatientOwner returns the hospital that owns a patient.
func (db *DB) PatientOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var hospitalID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT hospital_id FROM patients WHERE id = $1`, id,
	).Scan(&hospitalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("storage: patient owner: %w", err)
	}
	return hospitalID, nil
}

// ListCases returns a hospital's cases joined with their patients, newest
// update first. Deleted cases are excluded unless explicitly filtered for.
func (db *DB) ListCases(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]model.BoardCaseWithPatient, error) {
	conditions := []string{"c.hospital_id = $1"}
	args := []any{hospitalID}
	if status != "" {
		conditions = append(conditions, "c.status = $2")
		args = append(args, status)
	} else {
		conditions = append(conditions, "c.status <> 'deleted'")
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(
		`SELECT c.id, c.patient_id, c.hospital_id, c.status, c.ai_summary,
		   c.radiology_notes, c.pathology_notes, c.oncology_notes, c.guidelines_ref, c.recommendations, c.final_decision,
		   c.progress_percent, c.progress_message, c.error_message, c.ai_tumor_board_json,
		   c.processing_started_at, c.processing_completed_at, c.deleted_at, c.deleted_by, c.created_at, c.updated_at,
		   p.id, p.patient_id, p.name, p.age, p.gender, p.cancer_type, p.status, p.hospital_id, p.created_at, p.updated_at
		 FROM tumor_board_cases c JOIN patients p ON p.id = c.patient_id
		 WHERE %s ORDER BY c.updated_at DESC LIMIT %d OFFSET %d`,
		strings.Join(conditions, " AND "), limit, offset,
	)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list cases: %w", err)
	}
	defer rows.Close()

	var cases []model.BoardCaseWithPatient
	for rows.Next() {
		var cw model.BoardCaseWithPatient
		c := &cw.BoardCase
		p := &cw.Patient
		if err := rows.Scan(
			&c.ID, &c.PatientID, &c.HospitalID, &c.Status, &c.AISummary,
			&c.RadiologyNotes, &c.PathologyNotes, &c.OncologyNotes, &c.GuidelinesRef, &c.Recommendations, &c.FinalDecision,
			&c.ProgressPercent, &c.ProgressMessage, &c.ErrorMessage, &c.AITumorBoardJSON,
			&c.ProcessingStartedAt, &c.ProcessingCompletedAt, &c.DeletedAt, &c.DeletedBy, &c.CreatedAt, &c.UpdatedAt,
			&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CancerType, &p.Status, &p.HospitalID, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan case: %w", err)
		}
		cases = append(cases, cw)
	}
	return cases, rows.Err()
}

// UpdateCaseNotes persists the clinician-editable fields of c.
func (db *DB) UpdateCaseNotes(ctx context.Context, c model.BoardCase) (model.BoardCase, error) {
	c.UpdatedAt = time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases SET radiology_notes = $1, pathology_notes = $2, oncology_notes = $3,
		   guidelines_ref = $4, recommendations = $5, final_decision = $6, status = $7, updated_at = $8
		 WHERE id = $9`,
		c.RadiologyNotes, c.PathologyNotes, c.OncologyNotes,
		c.GuidelinesRef, c.Recommendations, c.FinalDecision, string(c.Status), c.UpdatedAt, c.ID,
	)
	if err != nil {
		return model.BoardCase{}, fmt.Errorf("storage: update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.BoardCase{}, ErrNotFound
	}
	return c, nil
}

// SubmitCase moves a draft or failed case to queued and clears the previous
// run's error and timestamps. Returns ErrInvalidTransition when the case
// left the submittable states first.
func (db *DB) SubmitCase(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'queued', progress_percent = 0, progress_message = 'Waiting in queue...',
		   error_message = NULL, processing_started_at = NULL, processing_completed_at = NULL, updated_at = now()
		 WHERE id = $1 AND status IN ('draft', 'failed')`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: submit case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// RetryCase requeues a failed case. Unlike SubmitCase it keeps the previous
// run's processing timestamps.
func (db *DB) RetryCase(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'queued', progress_percent = 0, progress_message = 'Retrying... Waiting in queue',
		   error_message = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'failed'`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: retry case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CancelCase cancels a queued or processing case.
func (db *DB) CancelCase(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'cancelled', progress_message = 'Cancelled by user', error_message = NULL,
		   processing_completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ('queued', 'processing')`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: cancel case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SoftDeleteCase marks a case deleted, keeping the row for audit.
func (db *DB) SoftDeleteCase(ctx context.Context, id uuid.UUID, deletedBy string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'deleted', deleted_at = now(), deleted_by = $1, updated_at = now()
		 WHERE id = $2 AND status <> 'deleted'`, deletedBy, id,
	)
	if err != nil {
		return fmt.Errorf("storage: delete case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ClaimQueuedCase atomically moves the oldest queued case to processing and
// returns it, mirroring ClaimQueuedJob.
func (db *DB) ClaimQueuedCase(ctx context.Context) (model.BoardCase, error) {
	return db.scanCase(db.pool.QueryRow(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'processing', processing_started_at = now(), progress_percent = 0,
		   progress_message = 'Starting AI analysis...', error_message = NULL, updated_at = now()
		 WHERE id = (
		   SELECT id FROM tumor_board_cases WHERE status = 'queued'
		   ORDER BY updated_at LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+caseColumns,
	))
}

// UpdateCaseProgress advances the progress gauge. The status guard doubles
// as the worker's cancellation check: once a cancel lands, the update
// misses and ErrInvalidTransition tells the worker to stop.
func (db *DB) UpdateCaseProgress(ctx context.Context, id uuid.UUID, percent int, message string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases SET progress_percent = $1, progress_message = $2, updated_at = now()
		 WHERE id = $3 AND status = 'processing'`,
		percent, message, id,
	)
	if err != nil {
		return fmt.Errorf("storage: update case progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CompleteCase stores the cleaned view and summary and marks the case
// completed, guarded like UpdateCaseProgress.
func (db *DB) CompleteCase(ctx context.Context, id uuid.UUID, view json.RawMessage, summary string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'completed', progress_percent = 100, progress_message = 'Analysis complete',
		   ai_tumor_board_json = $1, ai_summary = $2, processing_completed_at = now(), updated_at = now()
		 WHERE id = $3 AND status = 'processing'`,
		view, summary, id,
	)
	if err != nil {
		return fmt.Errorf("storage: complete case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// FailCase marks a processing case failed. The progress message is cleared
// and the gauge reset; processing_completed_at stays as-is.
func (db *DB) FailCase(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tumor_board_cases
		 SET status = 'failed', progress_percent = 0, progress_message = NULL, error_message = $1, updated_at = now()
		 WHERE id = $2 AND status = 'processing'`,
		message, id,
	)
	if err != nil {
		return fmt.Errorf("storage: fail case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (db *DB) scanCase(row pgx.Row) (model.BoardCase, error) {
	var c model.BoardCase
	err := row.Scan(
		&c.ID, &c.PatientID, &c.HospitalID, &c.Status, &c.AISummary,
		&c.RadiologyNotes, &c.PathologyNotes, &c.OncologyNotes, &c.GuidelinesRef, &c.Recommendations, &c.FinalDecision,
		&c.ProgressPercent, &c.ProgressMessage, &c.ErrorMessage, &c.AITumorBoardJSON,
		&c.ProcessingStartedAt, &c.ProcessingCompletedAt, &c.DeletedAt, &c.DeletedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BoardCase{}, ErrNotFound
		}
		return model.BoardCase{}, fmt.Errorf("storage: get case: %w", err)
	}
	return c, nil
}
