package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"

	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
	"webpush-service/internal/models"
	"webpush-service/internal/utils"
)

// Options tunes the Publisher and Approvals.
type Options struct {
	TokenTTL           time.Duration
	AllowLocalWebhooks bool
	Resolver           utils.Resolver
}

// Publisher turns an authenticated publish request into a stored notification,
// a push to every device and a live event.
type Publisher struct {
	store  Store
	tokens TokenStore
	fanout *Fanout
	hub    *Hub
	opts   Options
	logger *logging.Logger
	now    func() time.Time
}

func NewPublisher(store Store, tokens TokenStore, fanout *Fanout, hub *Hub, opts Options, logger *logging.Logger) *Publisher {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 300 * time.Second
	}
	return &Publisher{
		store:  store,
		tokens: tokens,
		fanout: fanout,
		hub:    hub,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// draft is a fully validated publish request, ready to persist.
type draft struct {
	notification models.Notification
	approval     *models.ApprovalProcess
	token        string
	topic        string
	message      []byte
}

// Publish validates content, stores it and fans it out to the owner of pushToken.
// Validation errors are returned before anything is written or sent.
func (p *Publisher) Publish(ctx context.Context, pushToken, content string) (models.PublishResult, error) {
	if pushToken == "" || content == "" {
		return models.PublishResult{}, models.NewError(models.ErrValidation, "Invalid input parameters")
	}

	creds, err := p.store.GetCredentialsByPushToken(ctx, pushToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.PublishResult{}, models.NewError(models.ErrAuth, "Invalid push token")
		}
		return models.PublishResult{}, err
	}

	d, err := p.prepare(ctx, creds.UserID, content)
	if err != nil {
		return models.PublishResult{}, err
	}

	if err := p.persist(ctx, d); err != nil {
		return models.PublishResult{}, err
	}
	metrics.NotificationsPublished.WithLabelValues(string(d.notification.Type)).Inc()

	result := models.PublishResult{NotificationID: d.notification.ID}
	if d.approval != nil {
		result.ApprovalID = d.approval.ID
	}

	failed, err := p.fanout.Deliver(ctx, creds, d.message, d.topic)
	if err != nil {
		return models.PublishResult{}, err
	}
	result.FailedPushes = failed

	event := d.notification
	if d.approval != nil {
		event.ApprovalID = d.approval.ID
		event.ApprovalState = models.ApprovalPending
	}
	p.hub.Send(creds.UserID, EventNewNotification, event)

	p.logger.Infof("Published notification %s for user %s (%d failed pushes)",
		d.notification.ID, creds.UserID, len(failed))
	return result, nil
}

func (p *Publisher) prepare(ctx context.Context, userID, content string) (draft, error) {
	header, body := ParseContent(content)

	typ, ok := models.ParseNotificationType(header["type"])
	if !ok {
		return draft{}, models.NewError(models.ErrValidation, "Invalid notification type")
	}

	if icon := header["icon_url"]; icon != "" {
		u, err := url.Parse(icon)
		if err != nil || u.Host == "" {
			return draft{}, models.NewError(models.ErrValidation, "Invalid icon URL")
		}
		if u.Scheme != "https" {
			return draft{}, models.NewError(models.ErrValidation, "Icon URL must use HTTPS protocol")
		}
	}

	var extra json.RawMessage
	if raw := header["extra"]; raw != "" {
		if !json.Valid([]byte(raw)) {
			return draft{}, models.NewError(models.ErrValidation, "Invalid extra metadata")
		}
		extra = json.RawMessage(raw)
	}

	now := p.now()
	d := draft{
		notification: models.Notification{
			ID:        uuid.NewString(),
			Content:   body,
			Title:     header["title"],
			Category:  header["category"],
			Group:     header["group"],
			UserID:    userID,
			Type:      typ,
			IconURL:   header["icon_url"],
			Extra:     extra,
			CreatedAt: now,
			UpdatedAt: now,
		},
		topic: header["topic"],
	}

	msg := models.PushMessage{
		ID:        d.notification.ID,
		Title:     d.notification.Title,
		Body:      d.notification.Content,
		Category:  d.notification.Category,
		Group:     d.notification.Group,
		IconURL:   d.notification.IconURL,
		Type:      typ,
		CreatedAt: now.UnixMilli(),
	}

	if typ == models.TypeApprovalProcess {
		webhookURL := header["webhook_url"]
		if webhookURL == "" {
			return draft{}, models.NewError(models.ErrValidation, "Webhook URL is required for approval process")
		}
		if err := p.checkWebhookURL(ctx, webhookURL); err != nil {
			return draft{}, err
		}
		d.approval = &models.ApprovalProcess{
			ID:             uuid.NewString(),
			NotificationID: d.notification.ID,
			WebhookURL:     webhookURL,
			UserID:         userID,
			State:          models.ApprovalPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		d.token = uuid.NewString()
		msg.ApprovalState = models.ApprovalPending
		msg.ApprovalID = d.approval.ID
		msg.TempAccessToken = d.token
	}

	message, err := encodeMessage(msg)
	if err != nil {
		return draft{}, err
	}
	if len(message) > models.MaxMessageSize {
		return draft{}, models.NewError(models.ErrResourceExhausted, "Message size exceeds 4KB limit")
	}
	d.message = message
	return d, nil
}

// checkWebhookURL rejects non-http(s) URLs and, unless allowed, local targets.
func (p *Publisher) checkWebhookURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return models.NewError(models.ErrValidation, "Invalid webhook URL")
	}
	if p.opts.AllowLocalWebhooks {
		return nil
	}
	local, err := utils.IsLocalNetworkURL(ctx, p.opts.Resolver, raw)
	if err != nil {
		return models.WrapError(models.ErrValidation, "Invalid webhook URL", err)
	}
	if local {
		return models.NewError(models.ErrValidation, "Webhook URL must not point to a local network address")
	}
	return nil
}

// persist writes the notification and, for approvals, the approval record and
// its temporary token in one transaction.
func (p *Publisher) persist(ctx context.Context, d draft) error {
	if d.approval == nil {
		if err := p.store.CreateNotification(ctx, d.notification); err != nil {
			return models.WrapError(models.ErrUpstream, "Failed to create notification", err)
		}
		return nil
	}

	err := p.store.WithTx(ctx, func(ctx context.Context) error {
		if err := p.store.CreateNotification(ctx, d.notification); err != nil {
			return err
		}
		if err := p.store.CreateApproval(ctx, *d.approval); err != nil {
			return err
		}
		return p.tokens.Set(ctx, d.approval.ID, d.token, p.opts.TokenTTL)
	})
	if err != nil {
		return models.WrapError(models.ErrUpstream, "Failed to create approval process", err)
	}
	return nil
}

// encodeMessage serializes msg without HTML escaping, so the byte count is
// what the device receives.
func encodeMessage(msg models.PushMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, models.WrapError(models.ErrValidation, "Invalid message", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
