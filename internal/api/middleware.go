package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"webpush-service/internal/logging"
	"webpush-service/internal/models"
)

const (
	ctxRequestID = "request_id"
	ctxUserID    = "user_id"

	headerRequestID = "X-Request-ID"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(headerRequestID, requestID)

		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.WithRequest(requestID).Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// APITokenAuthenticator resolves a raw API token to its owner.
type APITokenAuthenticator interface {
	AuthenticateAPIToken(ctx context.Context, raw string) (string, error)
}

// SessionAuth rejects requests without a valid session with 401. When tokens
// is non-nil, a bearer API token is accepted in place of a session.
func SessionAuth(secret, cookieName string, tokens APITokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := authenticate(c.Request, secret, cookieName)
		if err != nil && tokens != nil {
			if raw := bearerToken(c.Request); raw != "" {
				userID, err = tokens.AuthenticateAPIToken(c.Request.Context(), raw)
				if err != nil && !errors.Is(err, models.ErrAuth) {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": models.PublicMessage(err)})
					return
				}
			}
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// OptionalSession records the session user when there is one and lets every
// request through. Used where a bearer token may stand in for a session.
func OptionalSession(secret, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := authenticate(c.Request, secret, cookieName); err == nil {
			c.Set(ctxUserID, userID)
		}
		c.Next()
	}
}

const (
	limiterCacheSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// keyedLimiter hands out one token bucket per key. Idle buckets expire.
type keyedLimiter struct {
	mu      sync.Mutex
	perSec  int
	buckets *expirable.LRU[string, *rate.Limiter]
}

// newKeyedLimiter allows perSec requests per second per key, with a burst of
// the same size. perSec <= 0 disables limiting.
func newKeyedLimiter(perSec int) *keyedLimiter {
	return &keyedLimiter{
		perSec:  perSec,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
	}
}

func (l *keyedLimiter) Allow(key string) bool {
	if l.perSec <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.perSec)), l.perSec)
		l.buckets.Add(key, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}
