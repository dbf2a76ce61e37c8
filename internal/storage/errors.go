package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidTransition is returned when a status update is rejected by a
// state-machine guard (e.g. completing a job that was cancelled mid-run).
var ErrInvalidTransition = errors.New("storage: invalid status transition")

// UniqueViolation returns the violated constraint name when err is a
// Postgres unique_violation, or "" otherwise. Callers match on constraint
// names to produce field-specific messages.
func UniqueViolation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}
