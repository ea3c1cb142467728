package db

import (
	"context"
	"fmt"

	"violation-service/internal/models"
)

func (t *txStore) InsertStatusLog(ctx context.Context, l models.StatusLog) error {
	query := `
	INSERT INTO status_log (id, entity, entity_id, old_status, new_status, note, changed_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.q.Exec(ctx, query, l.ID, l.Entity, l.EntityID, l.OldStatus, l.NewStatus, l.Note, l.ChangedBy, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert status log: %w", err)
	}
	return nil
}

// StatusHistory returns the status changes of one entity in order.
func (d *DB) StatusHistory(ctx context.Context, entity, id string) ([]models.StatusLog, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id::text, entity, entity_id, old_status, new_status, note, changed_by, created_at
	FROM status_log
	WHERE entity = $1 AND entity_id = $2
	ORDER BY created_at ASC`, entity, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history for %s %s: %w", entity, id, err)
	}
	defer rows.Close()

	history := []models.StatusLog{}
	for rows.Next() {
		var l models.StatusLog
		if err := rows.Scan(&l.ID, &l.Entity, &l.EntityID, &l.OldStatus, &l.NewStatus, &l.Note, &l.ChangedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		history = append(history, l)
	}
	return history, rows.Err()
}

// DashboardStats aggregates violation and contest counts by status.
func (d *DB) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	stats := models.DashboardStats{
		ViolationsByStatus: map[models.ViolationStatus]int{},
		ContestsByStatus:   map[models.ContestStatus]int{},
	}

	rows, err := d.Pool.Query(ctx, `SELECT status, COUNT(*) FROM violations GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to count violations: %w", err)
	}
	for rows.Next() {
		var status models.ViolationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("failed to scan violation count: %w", err)
		}
		stats.ViolationsByStatus[status] = count
	}
	rows.Close()

	rows, err = d.Pool.Query(ctx, `SELECT contest_status, COUNT(*) FROM contests GROUP BY contest_status`)
	if err != nil {
		return stats, fmt.Errorf("failed to count contests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.ContestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan contest count: %w", err)
		}
		stats.ContestsByStatus[status] = count
	}
	stats.PendingContests = stats.ContestsByStatus[models.ContestPending] + stats.ContestsByStatus[models.ContestUnderReview]
	return stats, rows.Err()
}
