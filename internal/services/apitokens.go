package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"webpush-service/internal/models"
)

const (
	DefaultTokenPageSize = 5
	maxTokenNameLength   = 100
)

// NeverExpires is the expiry given to tokens created with zero days.
var NeverExpires = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)

// CreateAPIToken issues a named token valid for expiresInDays, or until
// NeverExpires when expiresInDays is 0. The raw token is returned once and
// only its hash is stored.
func (a *Accounts) CreateAPIToken(ctx context.Context, userID, name string, expiresInDays int) (models.IssuedAPIToken, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.IssuedAPIToken{}, models.NewError(models.ErrValidation, "Token name is required")
	}
	if utf8.RuneCountInString(name) > maxTokenNameLength {
		return models.IssuedAPIToken{}, models.NewError(models.ErrValidation, "Token name is too long")
	}
	if expiresInDays < 0 {
		return models.IssuedAPIToken{}, models.NewError(models.ErrValidation, "Invalid expiration period. Minimum is 1 day.")
	}

	now := a.now()
	expiresAt := NeverExpires
	if expiresInDays > 0 {
		expiresAt = now.AddDate(0, 0, expiresInDays)
	}

	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	t := models.APIToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		TokenHash: hashAPIToken(raw),
		Hint:      maskToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := a.store.CreateAPIToken(ctx, t); err != nil {
		return models.IssuedAPIToken{}, err
	}
	a.logger.Infof("Created API token %s for user %s", t.ID, userID)
	return models.IssuedAPIToken{ID: t.ID, Name: t.Name, Token: raw, ExpiresAt: expiresAt}, nil
}

func (a *Accounts) ListAPITokens(ctx context.Context, userID string, page, pageSize int) (models.APITokenPage, error) {
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize {
		return models.APITokenPage{}, models.NewError(models.ErrValidation, "Invalid page or pageSize")
	}
	return a.store.ListAPITokensByUser(ctx, userID, page, pageSize)
}

func (a *Accounts) RevokeAPIToken(ctx context.Context, userID, id string) error {
	if id == "" {
		return models.NewError(models.ErrValidation, "Token ID is required")
	}
	if err := a.store.DeleteAPIToken(ctx, id, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewError(models.ErrNotFound, "Token not found")
		}
		return err
	}
	a.logger.Infof("Revoked API token %s for user %s", id, userID)
	return nil
}

// AuthenticateAPIToken returns the owner of a raw token. Expired tokens are
// deleted on sight.
func (a *Accounts) AuthenticateAPIToken(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", models.NewError(models.ErrAuth, "Unauthorized")
	}
	t, err := a.store.GetAPITokenByHash(ctx, hashAPIToken(raw))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.NewError(models.ErrAuth, "Unauthorized")
		}
		return "", err
	}
	if t.Expired(a.now()) {
		if err := a.store.DeleteAPIToken(ctx, t.ID, t.UserID); err != nil && !errors.Is(err, models.ErrNotFound) {
			a.logger.Warnf("Delete expired API token %s failed: %v", t.ID, err)
		}
		return "", models.NewError(models.ErrAuth, "Unauthorized")
	}
	return t.UserID, nil
}

func hashAPIToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// maskToken keeps the first and last four characters.
func maskToken(token string) string {
	const visible = 4
	if len(token) <= 2*visible {
		return token
	}
	return token[:visible] + strings.Repeat("*", len(token)-2*visible) + token[len(token)-visible:]
}
