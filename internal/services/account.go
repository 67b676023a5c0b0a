package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"webpush-service/internal/logging"
	"webpush-service/internal/models"
	"webpush-service/internal/providers"
	"webpush-service/internal/utils"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Accounts manages what a signed-in user owns: credentials, subscriptions and
// stored notifications.
type Accounts struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

func NewAccounts(store Store, logger *logging.Logger) *Accounts {
	return &Accounts{store: store, logger: logger, now: time.Now}
}

// Credentials returns the user's credentials, creating them on first access.
func (a *Accounts) Credentials(ctx context.Context, userID string) (models.UserCredentials, error) {
	creds, err := a.store.GetCredentialsByUser(ctx, userID)
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.UserCredentials{}, err
	}

	publicKey, privateKey, err := providers.GenerateVAPIDKeys()
	if err != nil {
		return models.UserCredentials{}, err
	}
	token, err := providers.GeneratePushToken()
	if err != nil {
		return models.UserCredentials{}, err
	}
	now := a.now()
	creds = models.UserCredentials{
		ID:         uuid.NewString(),
		UserID:     userID,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		PushToken:  token,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateCredentials(ctx, creds); err != nil {
		// A concurrent request may have created them first.
		if existing, getErr := a.store.GetCredentialsByUser(ctx, userID); getErr == nil {
			return existing, nil
		}
		return models.UserCredentials{}, err
	}
	a.logger.Infof("Created credentials for user %s", userID)
	return creds, nil
}

// ResetPushToken issues a new push token. The key pair is untouched.
func (a *Accounts) ResetPushToken(ctx context.Context, userID string) (models.UserCredentials, error) {
	creds, err := a.Credentials(ctx, userID)
	if err != nil {
		return models.UserCredentials{}, err
	}
	token, err := providers.GeneratePushToken()
	if err != nil {
		return models.UserCredentials{}, err
	}
	if err := a.store.UpdatePushToken(ctx, userID, token); err != nil {
		return models.UserCredentials{}, err
	}
	creds.PushToken = token
	a.logger.Infof("Reset push token for user %s", userID)
	return creds, nil
}

// RotateKeys issues a new VAPID key pair. The push token is untouched;
// devices must re-subscribe with the new public key.
func (a *Accounts) RotateKeys(ctx context.Context, userID string) (models.UserCredentials, error) {
	creds, err := a.Credentials(ctx, userID)
	if err != nil {
		return models.UserCredentials{}, err
	}
	publicKey, privateKey, err := providers.GenerateVAPIDKeys()
	if err != nil {
		return models.UserCredentials{}, err
	}
	if err := a.store.UpdateKeys(ctx, userID, publicKey, privateKey); err != nil {
		return models.UserCredentials{}, err
	}
	creds.PublicKey, creds.PrivateKey = publicKey, privateKey
	a.logger.Infof("Rotated VAPID keys for user %s", userID)
	return creds, nil
}

// SaveSubscription stores the device's subscription, replacing an earlier one
// from the same fingerprint. created is false on replacement.
func (a *Accounts) SaveSubscription(ctx context.Context, userID, fingerprint string, raw json.RawMessage) (models.Subscription, bool, error) {
	if !utils.IsValidFingerprint(fingerprint) {
		return models.Subscription{}, false, models.NewError(models.ErrValidation, "Invalid device fingerprint")
	}
	var parsed struct {
		Endpoint string `json:"endpoint"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &parsed) != nil || parsed.Endpoint == "" {
		return models.Subscription{}, false, models.NewError(models.ErrValidation, "Invalid subscription")
	}

	now := a.now()
	return a.store.UpsertSubscription(ctx, models.Subscription{
		ID:                uuid.NewString(),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		Subscription:      raw,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func (a *Accounts) RemoveSubscription(ctx context.Context, userID, fingerprint string) error {
	if !utils.IsValidFingerprint(fingerprint) {
		return models.NewError(models.ErrValidation, "Invalid device fingerprint")
	}
	if err := a.store.DeleteSubscriptionByFingerprint(ctx, userID, fingerprint); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewError(models.ErrNotFound, "Subscription not found")
		}
		return err
	}
	return nil
}

// VerifyDevice checks that fingerprint belongs to one of userID's subscriptions.
func (a *Accounts) VerifyDevice(ctx context.Context, userID, fingerprint string) error {
	if fingerprint == "" {
		return models.NewError(models.ErrValidation, "Missing device fingerprint")
	}
	if !utils.IsValidFingerprint(fingerprint) {
		return models.NewError(models.ErrValidation, "Invalid device fingerprint")
	}
	if _, err := a.store.GetSubscriptionByFingerprint(ctx, userID, fingerprint); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewError(models.ErrValidation, "Invalid device fingerprint")
		}
		return err
	}
	return nil
}

func (a *Accounts) Notifications(ctx context.Context, userID string, page, pageSize int) (models.NotificationPage, error) {
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize {
		return models.NotificationPage{}, models.NewError(models.ErrValidation, "Invalid page or pageSize")
	}
	return a.store.ListNotificationsByUser(ctx, userID, page, pageSize)
}

func (a *Accounts) DeleteNotification(ctx context.Context, userID, id string) error {
	if id == "" {
		return models.NewError(models.ErrValidation, "Notification ID is required")
	}
	if err := a.store.DeleteNotification(ctx, id, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewError(models.ErrNotFound, "Notification not found")
		}
		return err
	}
	return nil
}
