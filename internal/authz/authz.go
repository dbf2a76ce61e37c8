// Package authz provides hospital-scope ownership checks.
//
// This package exists to share access-control logic between the HTTP server
// and the MCP server without creating a circular dependency (both import this
// package; neither imports the other). List queries are already scoped by
// hospital_id in SQL; these checks cover the lookups that start from a bare
// resource ID.
package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/storage"
)

// CanAccessPatient reports whether the hospital in claims owns the patient.
// A missing patient and another hospital's patient both return false, so
// callers answer "not found" either way and row existence never leaks
// across hospitals.
func CanAccessPatient(ctx context.Context, db *storage.DB, cache *OwnerCache, claims *auth.Claims, patientID uuid.UUID) (bool, error) {
	if claims == nil {
		return false, nil
	}

	owner, ok := cache.Patient(patientID)
	if !ok {
		var err error
		owner, err = db.PatientOwner(ctx, patientID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		cache.SetPatient(patientID, owner)
	}

	return owner == claims.HospitalID, nil
}

// CanAccessCase reports whether the hospital in claims owns the tumor board
// case. Same not-found semantics as CanAccessPatient.
func CanAccessCase(ctx context.Context, db *storage.DB, cache *OwnerCache, claims *auth.Claims, caseID uuid.UUID) (bool, error) {
	if claims == nil {
		return false, nil
	}

	owner, ok := cache.Case(caseID)
	if !ok {
		var err error
		owner, err = db.CaseOwner(ctx, caseID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		cache.SetCase(caseID, owner)
	}

	return owner == claims.HospitalID, nil
}
