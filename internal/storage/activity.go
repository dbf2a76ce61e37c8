package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chartmed-ai/karte/internal/model"
)

// ActivityFilter narrows ListActivity. Zero values mean "no filter".
type ActivityFilter struct {
	Action     string
	EntityType string
	Limit      int
	Offset     int
}

// InsertActivity appends one audit trail entry. Callers treat failures as
// non-fatal; an action that succeeded is not rolled back over its log line.
func (db *DB) InsertActivity(ctx context.Context, e model.ActivityEntry) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO activity_log (id, hospital_id, action, entity_type, entity_id, description, metadata, performed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.HospitalID, e.Action, e.EntityType, e.EntityID, e.Description, e.Metadata, e.PerformedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert activity: %w", err)
	}
	return nil
}

// ListActivity returns a hospital's audit entries, newest first, with the
// total count for pagination.
func (db *DB) ListActivity(ctx context.Context, hospitalID uuid.UUID, f ActivityFilter) ([]model.ActivityEntry, int, error) {
	conditions := []string{"hospital_id = $1"}
	args := []any{hospitalID}
	idx := 2

	if f.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", idx))
		args = append(args, f.Action)
		idx++
	}
	if f.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", idx))
		args = append(args, f.EntityType)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM activity_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count activity: %w", err)
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

	entries, err := db.queryActivity(ctx, fmt.Sprintf(
		`SELECT id, hospital_id, action, entity_type, entity_id, description, metadata, performed_by, created_at
		 FROM activity_log%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, limit, offset,
	), args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// DashboardStats aggregates the counters shown on the hospital dashboard.
func (db *DB) DashboardStats(ctx context.Context, hospitalID uuid.UUID) (model.DashboardStats, error) {
	var stats model.DashboardStats
	err := db.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM patients WHERE hospital_id = $1),
		   (SELECT COUNT(*) FROM reports r JOIN patients p ON p.id = r.patient_id WHERE p.hospital_id = $1),
		   (SELECT COUNT(*) FROM ai_reports WHERE hospital_id = $1),
		   (SELECT COUNT(*) FROM tumor_board_cases WHERE hospital_id = $1 AND status IN ('queued', 'processing'))`,
		hospitalID,
	).Scan(&stats.TotalPatients, &stats.TotalReports, &stats.TotalAnalyses, &stats.ActiveCases)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("storage: dashboard stats: %w", err)
	}

	recent, err := db.queryActivity(ctx,
		`SELECT id, hospital_id, action, entity_type, entity_id, description, metadata, performed_by, created_at
		 FROM activity_log WHERE hospital_id = $1 ORDER BY created_at DESC LIMIT 10`, hospitalID,
	)
	if err != nil {
		return model.DashboardStats{}, err
	}
	stats.RecentActivity = recent
	return stats, nil
}

func (db *DB) queryActivity(ctx context.Context, query string, args ...any) ([]model.ActivityEntry, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list activity: %w", err)
	}
	defer rows.Close()

	var entries []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		if err := rows.Scan(&e.ID, &e.HospitalID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Description, &e.Metadata, &e.PerformedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
