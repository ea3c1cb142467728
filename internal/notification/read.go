package notification

import (
	"context"
	"errors"

	"violation-service/internal/apperr"
	"violation-service/internal/db"
	"violation-service/internal/models"
)

// List returns the caller's notifications, newest first.
func (e *Emitter) List(ctx context.Context, actor models.Actor, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	list, err := e.store.ListNotifications(ctx, models.NotificationFilter{
		UserID:     actor.UserID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, apperr.Persistence("list notifications", err)
	}
	return list, nil
}

func (e *Emitter) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	n, err := e.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, apperr.Persistence("count unread", err)
	}
	return n, nil
}

// MarkRead flags one of the caller's notifications as read. Marking an
// already-read notification succeeds without change.
func (e *Emitter) MarkRead(ctx context.Context, actor models.Actor, id string) error {
	err := e.store.MarkNotificationRead(ctx, actor.UserID, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("notification", id)
	case err != nil:
		return apperr.Persistence("mark notification read", err)
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller and returns how
// many changed.
func (e *Emitter) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	n, err := e.store.MarkAllNotificationsRead(ctx, actor.UserID)
	if err != nil {
		return 0, apperr.Persistence("mark all notifications read", err)
	}
	if n > 0 {
		e.logger.Debugf("Marked %d notifications read for user %d", n, actor.UserID)
	}
	return n, nil
}
