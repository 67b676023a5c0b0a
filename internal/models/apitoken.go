package models

import "time"

// APIToken is a named long-lived credential. Only the SHA-256 hash of the
// token is stored; Hint is a masked copy kept for display.
type APIToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	TokenHash string    `json:"-"`
	Hint      string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t APIToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalPages  int `json:"totalPages"`
	TotalCount  int `json:"totalCount"`
}

// APITokenPage is one page of a user's API tokens, newest first.
type APITokenPage struct {
	Tokens     []APIToken `json:"tokens"`
	Pagination Pagination `json:"pagination"`
}

// IssuedAPIToken is returned once, at creation. Token is the only copy of
// the raw secret.
type IssuedAPIToken struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
