package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"violation-service/internal/models"
)

const contestColumns = `id::text, violation_id::text, owner_id, contest_status, explanation, evidence,
	reviewer_id, review_notes, submitted_at, reviewed_at`

func scanContest(row pgx.Row) (models.Contest, error) {
	var c models.Contest
	var evidence []byte
	err := row.Scan(
		&c.ID,
		&c.ViolationID,
		&c.OwnerID,
		&c.Status,
		&c.Explanation,
		&evidence,
		&c.ReviewerID,
		&c.ReviewNotes,
		&c.SubmittedAt,
		&c.ReviewedAt,
	)
	if err != nil {
		return models.Contest{}, err
	}
	if len(evidence) > 0 {
		var e models.Evidence
		if err := json.Unmarshal(evidence, &e); err != nil {
			return models.Contest{}, fmt.Errorf("failed to decode evidence for contest %s: %w", c.ID, err)
		}
		c.Evidence = &e
	}
	return c, nil
}

func getContest(ctx context.Context, q querier, id string) (models.Contest, error) {
	if !validID(id) {
		return models.Contest{}, ErrNotFound
	}
	c, err := scanContest(q.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
	if err != nil {
		return models.Contest{}, notFound(err)
	}
	return c, nil
}

func (d *DB) GetContest(ctx context.Context, id string) (models.Contest, error) {
	return getContest(ctx, d.Pool, id)
}

// ListContests returns contests newest first, optionally filtered by status and owner.
func (d *DB) ListContests(ctx context.Context, f models.ContestFilter) ([]models.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE 1=1`
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND contest_status = $%d", len(args))
	}
	if f.OwnerID != 0 {
		args = append(args, f.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	args = append(args, Limit(f.Limit), f.Offset)
	query += fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contests: %w", err)
	}
	defer rows.Close()

	list := []models.Contest{}
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (t *txStore) GetContest(ctx context.Context, id string) (models.Contest, error) {
	return getContest(ctx, t.q, id)
}

func (t *txStore) ActiveContest(ctx context.Context, violationID string) (models.Contest, bool, error) {
	query := `SELECT ` + contestColumns + ` FROM contests
	WHERE violation_id = $1 AND contest_status IN ('pending', 'under_review')
	LIMIT 1`
	c, err := scanContest(t.q.QueryRow(ctx, query, violationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Contest{}, false, nil
		}
		return models.Contest{}, false, fmt.Errorf("failed to look up active contest: %w", err)
	}
	return c, true, nil
}

func (t *txStore) InsertContest(ctx context.Context, c models.Contest) error {
	var evidence []byte
	if c.Evidence != nil {
		b, err := json.Marshal(c.Evidence)
		if err != nil {
			return fmt.Errorf("failed to encode evidence: %w", err)
		}
		evidence = b
	}

	query := `
	INSERT INTO contests (
		id, violation_id, owner_id, contest_status, explanation, evidence, submitted_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.q.Exec(ctx, query,
		c.ID,
		c.ViolationID,
		c.OwnerID,
		c.Status,
		c.Explanation,
		evidence,
		c.SubmittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActive
		}
		return fmt.Errorf("failed to insert contest: %w", err)
	}
	return nil
}

// UpdateContestReview is a compare-and-swap on contest_status. The losing
// writer of a race observes zero affected rows.
func (t *txStore) UpdateContestReview(ctx context.Context, c models.Contest, expected models.ContestStatus) error {
	query := `
	UPDATE contests
	SET contest_status = $1,
	    reviewer_id = $2,
	    review_notes = $3,
	    reviewed_at = $4
	WHERE id = $5 AND contest_status = $6`
	tag, err := t.q.Exec(ctx, query,
		c.Status,
		c.ReviewerID,
		c.ReviewNotes,
		c.ReviewedAt,
		c.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update contest review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}
