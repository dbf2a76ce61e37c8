package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/authz"
)

// canAccessPatient delegates to the shared authz package using the
// handler's owner cache.
func (h *Handlers) canAccessPatient(ctx context.Context, claims *auth.Claims, patientID uuid.UUID) (bool, error) {
	return authz.CanAccessPatient(ctx, h.db, h.owners, claims, patientID)
}

// canAccessCase delegates to the shared authz package.
func (h *Handlers) canAccessCase(ctx context.Context, claims *auth.Claims, caseID uuid.UUID) (bool, error) {
	return authz.CanAccessCase(ctx, h.db, h.owners, claims, caseID)
}
