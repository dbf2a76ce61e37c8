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

// Duplicate-account sentinels mapped from unique constraints on signup.
var (
	ErrDuplicateEmail              = errors.New("storage: hospital email already registered")
	ErrDuplicateRegistrationNumber = errors.New("storage: hospital registration number already registered")
)

// CreateHospital inserts a new hospital account.
func (db *DB) CreateHospital(ctx context.Context, h model.Hospital) (model.Hospital, error) {
	now := time.Now().UTC()
	h.ID = uuid.New()
	h.Email = strings.ToLower(strings.TrimSpace(h.Email))
	h.CreatedAt = now
	h.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO hospitals (id, name, email, password_hash, registration_number, address, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.Name, h.Email, h.PasswordHash, h.RegistrationNumber, h.Address, h.Phone, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		switch UniqueViolation(err) {
		case "hospitals_email_key":
			return model.Hospital{}, ErrDuplicateEmail
		case "hospitals_registration_number_key":
			return model.Hospital{}, ErrDuplicateRegistrationNumber
		}
		return model.Hospital{}, fmt.Errorf("storage: create hospital: %w", err)
	}
	return h, nil
}

// GetHospitalByEmail retrieves a hospital by its login email.
func (db *DB) GetHospitalByEmail(ctx context.Context, email string) (model.Hospital, error) {
	return db.scanHospital(db.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, registration_number, address, phone, created_at, updated_at
		 FROM hospitals WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)),
	))
}

func (db *DB) scanHospital(row pgx.Row) (model.Hospital, error) {
	var h model.Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Email, &h.PasswordHash, &h.RegistrationNumber,
		&h.Address, &h.Phone, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Hospital{}, ErrNotFound
		}
		return model.Hospital{}, fmt.Errorf("storage: get hospital: %w", err)
	}
	return h, nil
}
