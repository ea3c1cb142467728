package db

import (
	"context"
	"errors"
	"time"

	"violation-service/internal/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStale is returned by compare-and-swap updates whose precondition no
	// longer holds.
	ErrStale = errors.New("record changed concurrently")
	// ErrDuplicateActive is returned when a second active contest would be
	// inserted for the same violation.
	ErrDuplicateActive = errors.New("violation already has an active contest")
)

// Tx is the set of writes the lifecycle engine performs inside one
// transaction. Either every write in the callback commits or none does.
type Tx interface {
	// LockViolation reads a violation and holds its row until commit.
	LockViolation(ctx context.Context, id string) (models.Violation, error)
	InsertViolation(ctx context.Context, v models.Violation) error
	// UpdateViolationStatus moves a violation from -> to. Returns ErrStale
	// when the stored status is no longer from.
	UpdateViolationStatus(ctx context.Context, id string, from, to models.ViolationStatus, contestID string, resolvedAt *time.Time) error

	ActiveContest(ctx context.Context, violationID string) (models.Contest, bool, error)
	GetContest(ctx context.Context, id string) (models.Contest, error)
	InsertContest(ctx context.Context, c models.Contest) error
	// UpdateContestReview writes status and review fields of c when the
	// stored contest_status still equals expected, otherwise ErrStale.
	UpdateContestReview(ctx context.Context, c models.Contest, expected models.ContestStatus) error

	InsertNotification(ctx context.Context, n models.Notification) error
	InsertStatusLog(ctx context.Context, l models.StatusLog) error
}

// Store is the entity store consumed by the engine, the emitter and the API.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetViolation(ctx context.Context, id string) (models.Violation, error)
	ListViolations(ctx context.Context, f models.ViolationFilter) ([]models.Violation, error)
	GetContest(ctx context.Context, id string) (models.Contest, error)
	ListContests(ctx context.Context, f models.ContestFilter) ([]models.Contest, error)
	StatusHistory(ctx context.Context, entity, id string) ([]models.StatusLog, error)
	DashboardStats(ctx context.Context) (models.DashboardStats, error)

	GetNotification(ctx context.Context, id string) (models.Notification, error)
	ListNotifications(ctx context.Context, f models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	// MarkNotificationRead sets is_read for a notification owned by userID.
	// Already-read notifications are left untouched and succeed.
	MarkNotificationRead(ctx context.Context, userID int64, id string) error
	// MarkAllNotificationsRead returns how many rows flipped to read.
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)

	Close()
}

const defaultLimit = 50

// Limit normalizes a caller-supplied page size.
func Limit(n int) int {
	if n <= 0 || n > 500 {
		return defaultLimit
	}
	return n
}
