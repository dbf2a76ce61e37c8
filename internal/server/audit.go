package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/model"
)

// activityWriteTimeout bounds the audit insert so a slow database cannot
// stall a response that has already done its real work.
const activityWriteTimeout = 5 * time.Second

// recordActivity appends one audit-trail entry for a completed mutation.
// Failures are logged and swallowed: the mutation itself has already
// succeeded and the trail is advisory, not transactional.
func (h *Handlers) recordActivity(r *http.Request, action, entityType string, entityID uuid.UUID, description string) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return
	}

	idStr := entityID.String()
	performedBy := claims.Email
	entry := model.ActivityEntry{
		HospitalID:  claims.HospitalID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    &idStr,
		Description: description,
		PerformedBy: &performedBy,
	}

	// Detach from the request context so a client disconnect right after
	// the response does not lose the entry. Trace values still flow.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), activityWriteTimeout)
	defer cancel()

	if err := h.db.InsertActivity(ctx, entry); err != nil {
		h.logger.Warn("activity log write failed",
			"action", action,
			"entity_type", entityType,
			"entity_id", idStr,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}
}
