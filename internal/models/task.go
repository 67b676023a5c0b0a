package models

import "time"

// Task is a publish request received off the message queue.
type Task struct {
	RequestID  string    `json:"request_id"`
	PushToken  string    `json:"push_token"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"-"`
}
