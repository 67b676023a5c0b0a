package services

import (
	"context"
	"time"

	"webpush-service/internal/models"
)

// Store is the relational storage the services depend on. *db.DB implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateNotification(ctx context.Context, n models.Notification) error
	GetNotificationByID(ctx context.Context, id string) (models.Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string, page, pageSize int) (models.NotificationPage, error)
	DeleteNotification(ctx context.Context, id, userID string) error

	CreateApproval(ctx context.Context, a models.ApprovalProcess) error
	GetApprovalByID(ctx context.Context, id string) (models.ApprovalProcess, error)
	TransitionApproval(ctx context.Context, id string, to models.ApprovalState,
		fn func(ctx context.Context, updated models.ApprovalProcess) error) (models.ApprovalProcess, error)

	UpsertSubscription(ctx context.Context, s models.Subscription) (models.Subscription, bool, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error)
	GetSubscriptionByFingerprint(ctx context.Context, userID, fingerprint string) (models.Subscription, error)
	DeleteSubscriptions(ctx context.Context, ids []string) error
	DeleteSubscriptionByFingerprint(ctx context.Context, userID, fingerprint string) error

	CreateCredentials(ctx context.Context, c models.UserCredentials) error
	GetCredentialsByUser(ctx context.Context, userID string) (models.UserCredentials, error)
	GetCredentialsByPushToken(ctx context.Context, token string) (models.UserCredentials, error)
	UpdatePushToken(ctx context.Context, userID, token string) error
	UpdateKeys(ctx context.Context, userID, publicKey, privateKey string) error

	CreateAPIToken(ctx context.Context, t models.APIToken) error
	GetAPITokenByHash(ctx context.Context, hash string) (models.APIToken, error)
	ListAPITokensByUser(ctx context.Context, userID string, page, pageSize int) (models.APITokenPage, error)
	DeleteAPIToken(ctx context.Context, id, userID string) error
}

// TokenStore keeps temporary approval tokens. *redis.TokenStore implements it.
type TokenStore interface {
	Set(ctx context.Context, approvalID, token string, ttl time.Duration) error
	Get(ctx context.Context, approvalID string) (string, bool, error)
	Delete(ctx context.Context, approvalID string) error
}

// Pusher delivers one payload to one subscription.
type Pusher interface {
	Send(ctx context.Context, sub models.Subscription, creds models.UserCredentials, payload []byte, topic string) error
}

// WebhookSender posts a JSON payload to an external URL.
type WebhookSender interface {
	Send(ctx context.Context, url string, payload any) error
}
