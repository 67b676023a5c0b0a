package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"webpush-service/internal/models"
)

// DefaultTopic is used when a publish request does not name one.
const DefaultTopic = "Default"

// aes128gcm adds an 86-byte header (salt, record size, key id), a padding
// delimiter and a 16-byte tag around the plaintext.
const recordOverhead = 86 + 1 + 16

// recordSize fits a message of models.MaxMessageSize in a single record.
const recordSize = models.MaxMessageSize + recordOverhead

// PushError is a push service response outside the 2xx range.
type PushError struct {
	StatusCode int
	Body       string
}

func (e *PushError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Gone reports whether the endpoint is permanently unsubscribed.
func (e *PushError) Gone() bool {
	return e.StatusCode == http.StatusGone
}

// WebPush delivers VAPID-signed Web Push messages.
type WebPush struct {
	httpClient webpush.HTTPClient
	ttl        time.Duration
}

func NewWebPush(ttl time.Duration) *WebPush {
	return NewWebPushWithHTTPClient(&http.Client{Timeout: 30 * time.Second}, ttl)
}

func NewWebPushWithHTTPClient(client webpush.HTTPClient, ttl time.Duration) *WebPush {
	return &WebPush{httpClient: client, ttl: ttl}
}

// Send encrypts payload for sub and posts it to the subscription endpoint,
// signed with the user's VAPID keys.
func (p *WebPush) Send(ctx context.Context, sub models.Subscription, creds models.UserCredentials, payload []byte, topic string) error {
	var target webpush.Subscription
	if err := json.Unmarshal(sub.Subscription, &target); err != nil {
		return fmt.Errorf("invalid subscription %s: %w", sub.ID, err)
	}
	if target.Endpoint == "" {
		return fmt.Errorf("invalid subscription %s: missing endpoint", sub.ID)
	}
	if topic == "" {
		topic = DefaultTopic
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &target, &webpush.Options{
		HTTPClient:      p.httpClient,
		RecordSize:      recordSize,
		Subscriber:      creds.UserID,
		Topic:           topic,
		TTL:             int(p.ttl.Seconds()),
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  creds.PublicKey,
		VAPIDPrivateKey: creds.PrivateKey,
	})
	if err != nil {
		return fmt.Errorf("push to %s failed: %w", sub.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &PushError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
