package server

import (
	"net/http"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// HandleListActivity handles GET /v1/activity, the hospital's audit feed.
func (h *Handlers) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := storage.ActivityFilter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		Limit:      queryLimit(r, 50),
		Offset:     queryOffset(r),
	}

	entries, total, err := h.db.ListActivity(r.Context(), claims.HospitalID, filter)
	if err != nil {
		h.writeInternalError(w, r, "failed to list activity", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.ActivityListResponse{
		Activities: entries,
		Total:      total,
	})
}

// HandleDashboardStats handles GET /v1/activity/stats.
func (h *Handlers) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}

	stats, err := h.db.DashboardStats(r.Context(), claims.HospitalID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load dashboard stats", err)
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}
