package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chartmed-ai/karte/internal/model"
)

const selectJob = `SELECT id, patient_id, hospital_id, status, report_count, estimated_seconds,
	 result, error_message, generated_at, started_at, completed_at
	 FROM ai_reports`

// CreateAnalysisJob enqueues a new document analysis job and returns it.
func (db *DB) CreateAnalysisJob(ctx context.Context, job model.AnalysisJob) (model.AnalysisJob, error) {
	job.ID = uuid.New()
	job.Status = model.JobStatusQueued
	job.GeneratedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO ai_reports (id, patient_id, hospital_id, status, report_count, estimated_seconds, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.PatientID, job.HospitalID, string(job.Status), job.ReportCount, job.EstimatedSeconds, job.GeneratedAt,
	)
	if err != nil {
		return model.AnalysisJob{}, fmt.Errorf("storage: create analysis job: %w", err)
	}
	return job, nil
}

// GetJob retrieves an analysis job by ID, scoped to the given hospital.
func (db *DB) GetJob(ctx context.Context, hospitalID, id uuid.UUID) (model.AnalysisJob, error) {
	return db.scanJob(db.pool.QueryRow(ctx,
		selectJob+` WHERE id = $1 AND hospital_id = $2`, id, hospitalID,
	))
}

// LatestJobByPatient returns the patient's most recent job regardless of
// state, or ErrNotFound when the patient has never run an analysis.
func (db *DB) LatestJobByPatient(ctx context.Context, patientID uuid.UUID) (model.AnalysisJob, error) {
	return db.scanJob(db.pool.QueryRow(ctx,
		selectJob+` WHERE patient_id = $1 ORDER BY generated_at DESC LIMIT 1`, patientID,
	))
}

// LatestCompletedJobByPatient returns the patient's most recent completed
// job. Tumor board preparation reads its stored result.
func (db *DB) LatestCompletedJobByPatient(ctx context.Context, patientID uuid.UUID) (model.AnalysisJob, error) {
	return db.scanJob(db.pool.QueryRow(ctx,
		selectJob+` WHERE patient_id = $1 AND status = 'completed' ORDER BY generated_at DESC LIMIT 1`, patientID,
	))
}

// ListJobsByPatient returns all of a patient's jobs, newest first.
func (db *DB) ListJobsByPatient(ctx context.Context, patientID uuid.UUID) ([]model.AnalysisJob, error) {
	rows, err := db.pool.Query(ctx,
		selectJob+` WHERE patient_id = $1 ORDER BY generated_at DESC`, patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list analysis jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		var j model.AnalysisJob
		if err := rows.Scan(
			&j.ID, &j.PatientID, &j.HospitalID, &j.Status, &j.ReportCount, &j.EstimatedSeconds,
			&j.Result, &j.ErrorMessage, &j.GeneratedAt, &j.StartedAt, &j.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan analysis job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ClaimQueuedJob atomically moves the oldest queued job to processing and
// returns it. FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming
// the same row. Returns ErrNotFound when the queue is empty.
func (db *DB) ClaimQueuedJob(ctx context.Context) (model.AnalysisJob, error) {
	return db.scanJob(db.pool.QueryRow(ctx,
		`UPDATE ai_reports SET status = 'processing', started_at = now()
		 WHERE id = (
		   SELECT id FROM ai_reports WHERE status = 'queued'
		   ORDER BY generated_at LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, patient_id, hospital_id, status, report_count, estimated_seconds,
		   result, error_message, generated_at, started_at, completed_at`,
	))
}

// CompleteJob stores the analysis result and marks the job completed. The
// status guard means a cancellation that landed first wins; that case
// returns ErrInvalidTransition.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ai_reports SET status = 'completed', result = $1, completed_at = now()
		 WHERE id = $2 AND status = 'processing'`,
		result, id,
	)
	if err != nil {
		return fmt.Errorf("storage: complete analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// FailJob marks the job failed with an operator-facing message, guarded
// like CompleteJob. The message is also stored as an {"error": ...} result
// payload so consumers that only read results see the failure.
func (db *DB) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return fmt.Errorf("storage: fail analysis job: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE ai_reports SET status = 'failed', error_message = $1, result = $2, completed_at = now()
		 WHERE id = $3 AND status = 'processing'`,
		message, payload, id,
	)
	if err != nil {
		return fmt.Errorf("storage: fail analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CancelJobsByPatient cancels every queued or processing job for a patient
// and returns how many rows changed.
func (db *DB) CancelJobsByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ai_reports SET status = 'cancelled', completed_at = now()
		 WHERE patient_id = $1 AND status IN ('queued', 'processing')`,
		patientID,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cancel analysis jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (db *DB) scanJob(row pgx.Row) (model.AnalysisJob, error) {
	var j model.AnalysisJob
	err := row.Scan(
		&j.ID, &j.PatientID, &j.HospitalID, &j.Status, &j.ReportCount, &j.EstimatedSeconds,
		&j.Result, &j.ErrorMessage, &j.GeneratedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AnalysisJob{}, ErrNotFound
		}
		return model.AnalysisJob{}, fmt.Errorf("storage: get analysis job: %w", err)
	}
	return j, nil
}
