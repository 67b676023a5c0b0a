package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the JWT body of a signed-in user's session.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var errNoSession = errors.New("no session token")

// NewSessionToken signs an HS256 session for userID valid for ttl.
func NewSessionToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseSession validates tokenString and returns the user it identifies.
func parseSession(tokenString, secret string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errors.New("token carries no user")
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate tries the bearer header first, then the session cookie.
func authenticate(r *http.Request, secret, cookieName string) (string, error) {
	var lastErr error = errNoSession
	if token := bearerToken(r); token != "" {
		userID, err := parseSession(token, secret)
		if err == nil {
			return userID, nil
		}
		lastErr = err
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		userID, err := parseSession(cookie.Value, secret)
		if err == nil {
			return userID, nil
		}
		lastErr = err
	}
	return "", lastErr
}
