package models

import "time"

// ApprovalState is the lifecycle of an approval decision.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// IsDecision reports whether s is a valid terminal state a caller may request.
func (s ApprovalState) IsDecision() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// IsTerminal reports whether no further transition is permitted out of s.
func (s ApprovalState) IsTerminal() bool {
	return s.IsDecision()
}

// ApprovalProcess tracks the decision attached 1:1 to a notification.
type ApprovalProcess struct {
	ID             string        `json:"id"`
	NotificationID string        `json:"notificationId"`
	WebhookURL     string        `json:"webhookUrl"`
	UserID         string        `json:"userId"`
	State          ApprovalState `json:"state"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// WebhookPayload is posted to the approval's webhook on resolution.
type WebhookPayload struct {
	NotificationID string        `json:"notificationId"`
	ApprovalID     string        `json:"approvalId"`
	State          ApprovalState `json:"state"`
}
