package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/recycle-market/internal/domain/notification"
)

const (
	notificationColumns = `id, user_id, title_en, title_ar, body_en, body_ar, type, order_id, payload, is_read,
		created_at, delivered_at, attempts, last_error, next_attempt_at`

	insertNotificationSQL = `INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	listNotificationsSQL = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC`

	setNotificationReadSQL = `UPDATE notifications SET is_read = $3 WHERE id = $1 AND user_id = $2`

	deleteNotificationsSQL = `DELETE FROM notifications WHERE user_id = $1 AND id = ANY($2)`

	pendingNotificationsSQL = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE delivered_at IS NULL AND next_attempt_at <= $1
		ORDER BY created_at
		LIMIT NULLIF($2::int, 0)`

	markDeliveredSQL = `UPDATE notifications SET delivered_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1`

	markFailedSQL = `UPDATE notifications SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1`
)

var (
	_ notification.Repository = notificationRepo{}
	_ notification.Outbox     = notificationRepo{}
)

type notificationRepo struct {
	q querier
}

func (r notificationRepo) Enqueue(ctx context.Context, n *notification.Notification) error {
	_, err := r.q.Exec(ctx, insertNotificationSQL,
		n.ID, n.UserID, n.Title.En, n.Title.Ar, n.Body.En, n.Body.Ar, string(n.Type), nullable(n.OrderID),
		n.Payload, n.IsRead, n.CreatedAt, n.DeliveredAt, n.Attempts, n.LastError, n.NextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing notification %q: %w", n.ID, err)
	}
	return nil
}

func (r notificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	rows, err := r.q.Query(ctx, listNotificationsSQL, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return pgx.CollectRows(rows, scanNotification)
}

func (r notificationRepo) SetRead(ctx context.Context, userID, id string, read bool) error {
	tag, err := r.q.Exec(ctx, setNotificationReadSQL, id, userID, read)
	if err != nil {
		return fmt.Errorf("marking notification %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r notificationRepo) Delete(ctx context.Context, userID string, ids []string) (int, error) {
	tag, err := r.q.Exec(ctx, deleteNotificationsSQL, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r notificationRepo) Pending(ctx context.Context, now time.Time, limit int) ([]notification.Notification, error) {
	rows, err := r.q.Query(ctx, pendingNotificationsSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending notifications: %w", err)
	}
	return pgx.CollectRows(rows, scanNotification)
}

func (r notificationRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx, markDeliveredSQL, id, at.UTC())
	if err != nil {
		return fmt.Errorf("marking notification %q delivered: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r notificationRepo) MarkFailed(ctx context.Context, id, reason string, next time.Time) error {
	tag, err := r.q.Exec(ctx, markFailedSQL, id, reason, next.UTC())
	if err != nil {
		return fmt.Errorf("marking notification %q failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.CollectableRow) (notification.Notification, error) {
	var (
		n       notification.Notification
		typ     string
		orderID *string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.Title.En, &n.Title.Ar, &n.Body.En, &n.Body.Ar, &typ, &orderID, &n.Payload,
		&n.IsRead, &n.CreatedAt, &n.DeliveredAt, &n.Attempts, &n.LastError, &n.NextAttemptAt,
	)
	n.Type = notification.Type(typ)
	n.OrderID = deref(orderID)
	n.CreatedAt = n.CreatedAt.UTC()
	n.DeliveredAt = utcPtr(n.DeliveredAt)
	n.NextAttemptAt = n.NextAttemptAt.UTC()
	return n, err
}
