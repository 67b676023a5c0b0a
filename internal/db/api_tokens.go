package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"webpush-service/internal/models"
)

const apiTokenColumns = `id, user_id, name, token_hash, hint, expires_at, created_at`

func (d *DB) CreateAPIToken(ctx context.Context, t models.APIToken) error {
	_, err := d.conn(ctx).Exec(ctx, `
        INSERT INTO api_tokens (`+apiTokenColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Name, t.TokenHash, t.Hint, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}
	return nil
}

// GetAPITokenByHash resolves a presented token by its SHA-256 hash.
func (d *DB) GetAPITokenByHash(ctx context.Context, hash string) (models.APIToken, error) {
	t, err := scanAPIToken(d.conn(ctx).QueryRow(ctx,
		`SELECT `+apiTokenColumns+` FROM api_tokens WHERE token_hash = $1`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.APIToken{}, fmt.Errorf("api token: %w", models.ErrNotFound)
		}
		return models.APIToken{}, fmt.Errorf("failed to get api token: %w", err)
	}
	return t, nil
}

func (d *DB) ListAPITokensByUser(ctx context.Context, userID string, page, pageSize int) (models.APITokenPage, error) {
	offset := (page - 1) * pageSize
	rows, err := d.conn(ctx).Query(ctx, `
        SELECT `+apiTokenColumns+`
        FROM api_tokens
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`, userID, pageSize, offset)
	if err != nil {
		return models.APITokenPage{}, fmt.Errorf("failed to list api tokens for %s: %w", userID, err)
	}
	defer rows.Close()

	tokens := []models.APIToken{}
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return models.APITokenPage{}, fmt.Errorf("failed to scan api token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return models.APITokenPage{}, fmt.Errorf("failed to iterate api tokens: %w", err)
	}

	var total int
	if err := d.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM api_tokens WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return models.APITokenPage{}, fmt.Errorf("failed to count api tokens for %s: %w", userID, err)
	}

	return models.APITokenPage{
		Tokens: tokens,
		Pagination: models.Pagination{
			CurrentPage: page,
			PageSize:    pageSize,
			TotalPages:  (total + pageSize - 1) / pageSize,
			TotalCount:  total,
		},
	}, nil
}

// DeleteAPIToken removes one of userID's tokens.
func (d *DB) DeleteAPIToken(ctx context.Context, id, userID string) error {
	tag, err := d.conn(ctx).Exec(ctx,
		`DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete api token %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api token %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanAPIToken(row pgx.Row) (models.APIToken, error) {
	var t models.APIToken
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.Hint, &t.ExpiresAt, &t.CreatedAt)
	return t, err
}
