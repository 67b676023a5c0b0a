package models

import (
	"encoding/json"
	"time"
)

// NotificationType selects how a notification body is interpreted.
type NotificationType string

const (
	TypePlain           NotificationType = "plain"
	TypeEncrypted       NotificationType = "encrypted"
	TypeApprovalProcess NotificationType = "approval-process"
)

// ParseNotificationType maps a front-matter `type` value. An absent value is plain.
func ParseNotificationType(s string) (NotificationType, bool) {
	switch NotificationType(s) {
	case "", TypePlain:
		return TypePlain, true
	case TypeEncrypted:
		return TypeEncrypted, true
	case TypeApprovalProcess:
		return TypeApprovalProcess, true
	default:
		return "", false
	}
}

// Notification is a published message. It is never mutated after creation.
type Notification struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Title     string           `json:"title,omitempty"`
	Category  string           `json:"category,omitempty"`
	Group     string           `json:"group,omitempty"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	IconURL   string           `json:"iconUrl,omitempty"`
	Extra     json.RawMessage  `json:"extra,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`

	// Populated on read for approval-process notifications, not stored on the row.
	ApprovalID    string        `json:"approvalId,omitempty"`
	ApprovalState ApprovalState `json:"approvalState,omitempty"`
}

// NotificationPage is one page of a user's notifications, newest first.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	TotalCount    int            `json:"totalCount"`
	TotalPages    int            `json:"totalPages"`
}
