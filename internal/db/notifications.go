package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"webpush-service/internal/models"
)

const notificationColumns = `n.id, n.content, n.title, n.category, n."group", n.user_id, n.type,
       n.icon_url, n.extra, n.created_at, n.updated_at,
       COALESCE(a.id, ''), COALESCE(a.state, '')`

func (d *DB) CreateNotification(ctx context.Context, n models.Notification) error {
	query := `
        INSERT INTO push_notifications (
            id, content, title, category, "group", user_id, type, icon_url, extra, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	var extra []byte
	if len(n.Extra) > 0 {
		extra = n.Extra
	}
	_, err := d.conn(ctx).Exec(ctx, query,
		n.ID, n.Content, n.Title, n.Category, n.Group, n.UserID, string(n.Type),
		n.IconURL, extra, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (d *DB) GetNotificationByID(ctx context.Context, id string) (models.Notification, error) {
	query := `
        SELECT ` + notificationColumns + `
        FROM push_notifications n
        LEFT JOIN approval_processes a ON a.notification_id = n.id
        WHERE n.id = $1`
	n, err := scanNotification(d.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return n, nil
}

// ListNotificationsByUser returns one page of a user's notifications, newest first.
func (d *DB) ListNotificationsByUser(ctx context.Context, userID string, page, pageSize int) (models.NotificationPage, error) {
	offset := (page - 1) * pageSize
	rows, err := d.conn(ctx).Query(ctx, `
        SELECT `+notificationColumns+`
        FROM push_notifications n
        LEFT JOIN approval_processes a ON a.notification_id = n.id
        WHERE n.user_id = $1
        ORDER BY n.created_at DESC
        LIMIT $2 OFFSET $3`, userID, pageSize, offset)
	if err != nil {
		return models.NotificationPage{}, fmt.Errorf("failed to list notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return models.NotificationPage{}, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return models.NotificationPage{}, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	var total int
	if err := d.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM push_notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return models.NotificationPage{}, fmt.Errorf("failed to count notifications for %s: %w", userID, err)
	}

	return models.NotificationPage{
		Notifications: notifications,
		TotalCount:    total,
		TotalPages:    (total + pageSize - 1) / pageSize,
	}, nil
}

// DeleteNotification removes a user's notification and its approval record in one transaction.
func (d *DB) DeleteNotification(ctx context.Context, id, userID string) error {
	return d.WithTx(ctx, func(ctx context.Context) error {
		if _, err := d.conn(ctx).Exec(ctx,
			`DELETE FROM approval_processes WHERE notification_id = $1 AND user_id = $2`, id, userID); err != nil {
			return fmt.Errorf("failed to delete approval for notification %s: %w", id, err)
		}
		tag, err := d.conn(ctx).Exec(ctx,
			`DELETE FROM push_notifications WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("failed to delete notification %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
		}
		return nil
	})
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	var typ, approvalState string
	var extra []byte
	err := row.Scan(
		&n.ID, &n.Content, &n.Title, &n.Category, &n.Group, &n.UserID, &typ,
		&n.IconURL, &extra, &n.CreatedAt, &n.UpdatedAt,
		&n.ApprovalID, &approvalState,
	)
	if err != nil {
		return models.Notification{}, err
	}
	n.Type = models.NotificationType(typ)
	n.ApprovalState = models.ApprovalState(approvalState)
	if len(extra) > 0 {
		n.Extra = extra
	}
	return n, nil
}
