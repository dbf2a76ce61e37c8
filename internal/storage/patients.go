package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chartmed-ai/karte/internal/model"
)

// ErrDuplicatePatientID is returned when a hospital already has a patient
// with the same hospital-assigned identifier.
var ErrDuplicatePatientID = errors.New("storage: patient ID already exists for hospital")

// PatientFilter narrows ListPatients. Zero values mean "no filter".
type PatientFilter struct {
	Status     string
	CancerType string
	Search     string // matches name or patientId, case-insensitive
	Limit      int
	Offset     int
}

// CreatePatient inserts a patient owned by a hospital and returns it.
func (db *DB) CreatePatient(ctx context.Context, p model.Patient) (model.Patient, error) {
	now := time.Now().UTC()
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = model.PatientStatusActive
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO patients (id, patient_id, name, age, gender, cancer_type, status, hospital_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.PatientID, p.Name, p.Age, p.Gender, p.CancerType, p.Status, p.HospitalID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if UniqueViolation(err) == "patients_hospital_id_patient_id_key" {
			return model.Patient{}, ErrDuplicatePatientID
		}
		return model.Patient{}, fmt.Errorf("storage: create patient: %w", err)
	}
	return p, nil
}

// GetPatient retrieves a patient by row ID, scoped to the given hospital.
func (db *DB) GetPatient(ctx context.Context, hospitalID, id uuid.UUID) (model.Patient, error) {
	return db.scanPatient(db.pool.QueryRow(ctx,
		selectPatient+` WHERE id = $1 AND hospital_id = $2`, id, hospitalID,
	))
}

// FindPatient resolves ref as a row ID or, failing that, as the
// hospital-assigned patient identifier. Case endpoints accept either.
func (db *DB) FindPatient(ctx context.Context, hospitalID uuid.UUID, ref string) (model.Patient, error) {
	if id, err := uuid.Parse(ref); err == nil {
		p, err := db.GetPatient(ctx, hospitalID, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return model.Patient{}, err
		}
	}
	return db.scanPatient(db.pool.QueryRow(ctx,
		selectPatient+` WHERE patient_id = $1 AND hospital_id = $2`, ref, hospitalID,
	))
}

// ListPatients returns a hospital's patients ordered by updated_at DESC,
// with the total count for pagination.
func (db *DB) ListPatients(ctx context.Context, hospitalID uuid.UUID, f PatientFilter) ([]model.Patient, int, error) {
	where, args := buildPatientWhereClause(hospitalID, f)

	var total int
	if err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM patients"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count patients: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		selectPatient+`%s ORDER BY updated_at DESC LIMIT %d OFFSET %d`, where, limit, offset,
	), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list patients: %w", err)
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(
			&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CancerType,
			&p.Status, &p.HospitalID, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

// UpdatePatient persists the mutable fields of p, scoped to its hospital.
func (db *DB) UpdatePatient(ctx context.Context, p model.Patient) (model.Patient, error) {
	p.UpdatedAt = time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE patients SET name = $1, age = $2, gender = $3, cancer_type = $4, status = $5, updated_at = $6
		 WHERE id = $7 AND hospital_id = $8`,
		p.Name, p.Age, p.Gender, p.CancerType, p.Status, p.UpdatedAt, p.ID, p.HospitalID,
	)
	if err != nil {
		return model.Patient{}, fmt.Errorf("storage: update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Patient{}, ErrNotFound
	}
	return p, nil
}

// DeletePatient removes a patient. Reports, analysis jobs and tumor board
// cases cascade via foreign keys.
func (db *DB) DeletePatient(ctx context.Context, hospitalID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM patients WHERE id = $1 AND hospital_id = $2`, id, hospitalID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const selectPatient = `SELECT id, patient_id, name, age, gender, cancer_type, status, hospital_id, created_at, updated_at
	 FROM patients`

func buildPatientWhereClause(hospitalID uuid.UUID, f PatientFilter) (string, []any) {
	conditions := []string{"hospital_id = $1"}
	args := []any{hospitalID}
	idx := 2

	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.CancerType != "" {
		conditions = append(conditions, fmt.Sprintf("cancer_type = $%d", idx))
		args = append(args, f.CancerType)
		idx++
	}
	if f.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR patient_id ILIKE $%d)", idx, idx))
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func (db *DB) scanPatient(row pgx.Row) (model.Patient, error) {
	var p model.Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CancerType,
		&p.Status, &p.HospitalID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Patient{}, ErrNotFound
		}
		return model.Patient{}, fmt.Errorf("storage: get patient: %w", err)
	}
	return p, nil
}
