package models

import (
	"encoding/json"
	"time"
)

// Subscription is a device's Web Push subscription, unique per (user, fingerprint).
type Subscription struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	DeviceFingerprint string          `json:"deviceFingerprint"`
	Subscription      json.RawMessage `json:"subscription"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// UserCredentials holds the VAPID key pair and the push token of one user.
type UserCredentials struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	PublicKey  string    `json:"publicKey"`
	PrivateKey string    `json:"-"`
	PushToken  string    `json:"pushToken"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
