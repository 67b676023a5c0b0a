package models

// MaxMessageSize caps the serialized push message in bytes.
const MaxMessageSize = 4096

// PushMessage is what a device's push event decodes to.
type PushMessage struct {
	ID              string           `json:"id"`
	Title           string           `json:"title,omitempty"`
	Body            string           `json:"body"`
	Category        string           `json:"category,omitempty"`
	Group           string           `json:"group,omitempty"`
	IconURL         string           `json:"iconUrl,omitempty"`
	Type            NotificationType `json:"type"`
	ApprovalState   ApprovalState    `json:"approvalState,omitempty"`
	ApprovalID      string           `json:"approvalId,omitempty"`
	TempAccessToken string           `json:"tempAccessToken,omitempty"`
	CreatedAt       int64            `json:"createdAt"`
}

// FailedPush records one subscription that could not be reached.
type FailedPush struct {
	SubscriptionID string `json:"subscriptionId"`
	Reason         string `json:"reason"`
}

// PublishResult is the outcome of a publish operation.
type PublishResult struct {
	NotificationID string       `json:"notificationId"`
	ApprovalID     string       `json:"approvalId,omitempty"`
	FailedPushes   []FailedPush `json:"failedPushes,omitempty"`
}

// Succeeded reports whether every subscription accepted the message.
func (r PublishResult) Succeeded() bool {
	return len(r.FailedPushes) == 0
}
