package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"webpush-service/internal/models"
)

const credentialColumns = `id, user_id, public_key, private_key, push_token, created_at, updated_at`

func (d *DB) CreateCredentials(ctx context.Context, c models.UserCredentials) error {
	_, err := d.conn(ctx).Exec(ctx, `
        INSERT INTO user_credentials (`+credentialColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.PublicKey, c.PrivateKey, c.PushToken, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credentials: %w", err)
	}
	return nil
}

func (d *DB) GetCredentialsByUser(ctx context.Context, userID string) (models.UserCredentials, error) {
	return d.getCredentials(ctx, `user_id = $1`, userID)
}

// GetCredentialsByPushToken resolves the owner of a push token.
func (d *DB) GetCredentialsByPushToken(ctx context.Context, token string) (models.UserCredentials, error) {
	return d.getCredentials(ctx, `push_token = $1`, token)
}

func (d *DB) getCredentials(ctx context.Context, where string, arg string) (models.UserCredentials, error) {
	var c models.UserCredentials
	err := d.conn(ctx).QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM user_credentials WHERE `+where, arg).
		Scan(&c.ID, &c.UserID, &c.PublicKey, &c.PrivateKey, &c.PushToken, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserCredentials{}, fmt.Errorf("credentials: %w", models.ErrNotFound)
		}
		return models.UserCredentials{}, fmt.Errorf("failed to get credentials: %w", err)
	}
	return c, nil
}

func (d *DB) UpdatePushToken(ctx context.Context, userID, token string) error {
	tag, err := d.conn(ctx).Exec(ctx, `
        UPDATE user_credentials SET push_token = $1, updated_at = $2 WHERE user_id = $3`,
		token, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credentials: %w", models.ErrNotFound)
	}
	return nil
}

func (d *DB) UpdateKeys(ctx context.Context, userID, publicKey, privateKey string) error {
	tag, err := d.conn(ctx).Exec(ctx, `
        UPDATE user_credentials SET public_key = $1, private_key = $2, updated_at = $3 WHERE user_id = $4`,
		publicKey, privateKey, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update keys: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credentials: %w", models.ErrNotFound)
	}
	return nil
}
