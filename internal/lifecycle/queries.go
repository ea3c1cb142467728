package lifecycle

import (
	"context"

	"violation-service/internal/apperr"
	"violation-service/internal/models"
)

// ContestDetail is a contest together with the review actions still open.
type ContestDetail struct {
	models.Contest
	PermittedActions []models.ReviewAction `json:"permitted_actions"`
}

// GetViolation returns one violation. Owners only see their own.
func (e *Engine) GetViolation(ctx context.Context, actor models.Actor, id string) (models.Violation, error) {
	v, err := e.store.GetViolation(ctx, id)
	if err != nil {
		return models.Violation{}, wrap("get violation", lookup(entityViolation, id, err))
	}
	if !actor.IsStaff() && v.OwnerID != actor.UserID {
		return models.Violation{}, apperr.NotFound(entityViolation, id)
	}
	return v, nil
}

// ListViolations lists violations newest first. Owner listings are always
// scoped to the caller.
func (e *Engine) ListViolations(ctx context.Context, actor models.Actor, f models.ViolationFilter) ([]models.Violation, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status", "unknown violation status %q", f.Status)
	}
	if !actor.IsStaff() {
		f.OwnerID = actor.UserID
	}
	list, err := e.store.ListViolations(ctx, f)
	if err != nil {
		return nil, apperr.Persistence("list violations", err)
	}
	return list, nil
}

func (e *Engine) GetContest(ctx context.Context, actor models.Actor, id string) (ContestDetail, error) {
	c, err := e.store.GetContest(ctx, id)
	if err != nil {
		return ContestDetail{}, wrap("get contest", lookup(entityContest, id, err))
	}
	if !actor.IsStaff() && c.OwnerID != actor.UserID {
		return ContestDetail{}, apperr.NotFound(entityContest, id)
	}
	detail := ContestDetail{Contest: c}
	if actor.IsAdmin() {
		detail.PermittedActions = PermittedActions(c.Status)
	}
	return detail, nil
}

// ListContests lists contests newest first. Owner listings are always scoped
// to the caller.
func (e *Engine) ListContests(ctx context.Context, actor models.Actor, f models.ContestFilter) ([]models.Contest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("contest_status", "unknown contest status %q", f.Status)
	}
	if !actor.IsStaff() {
		f.OwnerID = actor.UserID
	}
	list, err := e.store.ListContests(ctx, f)
	if err != nil {
		return nil, apperr.Persistence("list contests", err)
	}
	return list, nil
}

// History returns the status log of a violation or contest, oldest first.
func (e *Engine) History(ctx context.Context, actor models.Actor, entity, id string) ([]models.StatusLog, error) {
	switch entity {
	case entityViolation:
		if _, err := e.GetViolation(ctx, actor, id); err != nil {
			return nil, err
		}
	case entityContest:
		if _, err := e.GetContest(ctx, actor, id); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Validation("entity", "unknown entity %q", entity)
	}
	logs, err := e.store.StatusHistory(ctx, entity, id)
	if err != nil {
		return nil, apperr.Persistence("status history", err)
	}
	return logs, nil
}

// Stats is the authoritative dashboard snapshot.
func (e *Engine) Stats(ctx context.Context, actor models.Actor) (models.DashboardStats, error) {
	if !actor.IsStaff() {
		return models.DashboardStats{}, apperr.Forbidden("dashboard statistics are staff only")
	}
	stats, err := e.store.DashboardStats(ctx)
	if err != nil {
		return models.DashboardStats{}, apperr.Persistence("dashboard stats", err)
	}
	stats.GeneratedAt = e.now()
	return stats, nil
}
