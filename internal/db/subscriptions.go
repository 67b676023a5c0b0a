package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"webpush-service/internal/models"
)

const subscriptionColumns = `id, user_id, device_fingerprint, subscription, created_at, updated_at`

// UpsertSubscription stores the subscription for (user, fingerprint), replacing
// any previous one. created reports whether a new row was inserted.
func (d *DB) UpsertSubscription(ctx context.Context, s models.Subscription) (stored models.Subscription, created bool, err error) {
	row := d.conn(ctx).QueryRow(ctx, `
        INSERT INTO subscriptions (`+subscriptionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, device_fingerprint)
        DO UPDATE SET subscription = EXCLUDED.subscription, updated_at = EXCLUDED.updated_at
        RETURNING `+subscriptionColumns+`, (xmax = 0)`,
		s.ID, s.UserID, s.DeviceFingerprint, []byte(s.Subscription), s.CreatedAt, s.UpdatedAt)

	var raw []byte
	err = row.Scan(&stored.ID, &stored.UserID, &stored.DeviceFingerprint, &raw,
		&stored.CreatedAt, &stored.UpdatedAt, &created)
	if err != nil {
		return models.Subscription{}, false, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	stored.Subscription = raw
	return stored, created, nil
}

// ListSubscriptionsByUser returns a user's subscriptions oldest first.
func (d *DB) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := d.conn(ctx).Query(ctx, `
        SELECT `+subscriptionColumns+`
        FROM subscriptions
        WHERE user_id = $1
        ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for %s: %w", userID, err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

func (d *DB) GetSubscriptionByFingerprint(ctx context.Context, userID, fingerprint string) (models.Subscription, error) {
	s, err := scanSubscription(d.conn(ctx).QueryRow(ctx, `
        SELECT `+subscriptionColumns+`
        FROM subscriptions
        WHERE user_id = $1 AND device_fingerprint = $2`, userID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, fmt.Errorf("subscription: %w", models.ErrNotFound)
		}
		return models.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// DeleteSubscriptions removes the given subscription ids. Missing ids are ignored.
func (d *DB) DeleteSubscriptions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := d.conn(ctx).Exec(ctx, `DELETE FROM subscriptions WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete subscriptions: %w", err)
	}
	return nil
}

func (d *DB) DeleteSubscriptionByFingerprint(ctx context.Context, userID, fingerprint string) error {
	tag, err := d.conn(ctx).Exec(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND device_fingerprint = $2`, userID, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription: %w", models.ErrNotFound)
	}
	return nil
}

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var s models.Subscription
	var raw []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.DeviceFingerprint, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return models.Subscription{}, err
	}
	s.Subscription = raw
	return s, nil
}
