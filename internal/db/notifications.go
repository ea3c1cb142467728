package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"violation-service/internal/models"
)

const notificationColumns = `id::text, user_id, type, title, message, entity_id, is_read, created_at`

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.EntityID, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (t *txStore) InsertNotification(ctx context.Context, n models.Notification) error {
	query := `
	INSERT INTO notifications (id, user_id, type, title, message, entity_id, is_read, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`
	_, err := t.q.Exec(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Message, n.EntityID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (d *DB) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	if !validID(id) {
		return models.Notification{}, ErrNotFound
	}
	n, err := scanNotification(d.Pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		return models.Notification{}, notFound(err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications newest first.
func (d *DB) ListNotifications(ctx context.Context, f models.NotificationFilter) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []interface{}{f.UserID}
	if f.UnreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC LIMIT $2 OFFSET $3"
	args = append(args, Limit(f.Limit), f.Offset)

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications by user_id %d: %w", f.UserID, err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (d *DB) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead never writes is_read = FALSE, so repeating it is a no-op.
func (d *DB) MarkNotificationRead(ctx context.Context, userID int64, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	var exists bool
	query := `
	WITH updated AS (
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2 AND is_read = FALSE
		RETURNING id
	)
	SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`
	if err := d.Pool.QueryRow(ctx, query, id, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (d *DB) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := d.Pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
