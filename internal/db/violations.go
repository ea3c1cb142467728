package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"violation-service/internal/models"
)

const violationColumns = `id::text, vehicle_id, owner_id, violation_type_id, reporter_id, status,
	description, location, evidence_url, contest_id, created_at, updated_at, resolved_at`

func scanViolation(row pgx.Row) (models.Violation, error) {
	var v models.Violation
	err := row.Scan(
		&v.ID,
		&v.VehicleID,
		&v.OwnerID,
		&v.ViolationTypeID,
		&v.ReporterID,
		&v.Status,
		&v.Description,
		&v.Location,
		&v.EvidenceURL,
		&v.ContestID,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.ResolvedAt,
	)
	return v, err
}

func getViolation(ctx context.Context, q querier, id string, lock bool) (models.Violation, error) {
	if !validID(id) {
		return models.Violation{}, ErrNotFound
	}
	query := `SELECT ` + violationColumns + ` FROM violations WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	v, err := scanViolation(q.QueryRow(ctx, query, id))
	if err != nil {
		return models.Violation{}, notFound(err)
	}
	return v, nil
}

func (d *DB) GetViolation(ctx context.Context, id string) (models.Violation, error) {
	return getViolation(ctx, d.Pool, id, false)
}

// ListViolations returns violations newest first, optionally filtered by status and owner.
func (d *DB) ListViolations(ctx context.Context, f models.ViolationFilter) ([]models.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations WHERE 1=1`
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.OwnerID != 0 {
		args = append(args, f.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	args = append(args, Limit(f.Limit), f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	list := []models.Violation{}
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

func (t *txStore) LockViolation(ctx context.Context, id string) (models.Violation, error) {
	return getViolation(ctx, t.q, id, true)
}

func (t *txStore) InsertViolation(ctx context.Context, v models.Violation) error {
	query := `
	INSERT INTO violations (
		id, vehicle_id, owner_id, violation_type_id, reporter_id, status,
		description, location, evidence_url, contest_id, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10, $10)`
	_, err := t.q.Exec(ctx, query,
		v.ID,
		v.VehicleID,
		v.OwnerID,
		v.ViolationTypeID,
		v.ReporterID,
		v.Status,
		v.Description,
		v.Location,
		v.EvidenceURL,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

func (t *txStore) UpdateViolationStatus(ctx context.Context, id string, from, to models.ViolationStatus, contestID string, resolvedAt *time.Time) error {
	query := `
	UPDATE violations
	SET status = $1,
	    contest_id = CASE WHEN $2 = '' THEN contest_id ELSE $2 END,
	    resolved_at = COALESCE($3, resolved_at),
	    updated_at = NOW()
	WHERE id = $4 AND status = $5`
	tag, err := t.q.Exec(ctx, query, to, contestID, resolvedAt, id, from)
	if err != nil {
		return fmt.Errorf("failed to update violation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}
