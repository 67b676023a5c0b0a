package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ApprovalTokenPrefix is the key prefix for temporary approval tokens.
const ApprovalTokenPrefix = "approval_token:"

// TokenStore keeps temporary approval tokens with a TTL.
type TokenStore struct {
	client redis.Cmdable
}

func NewTokenStore(client redis.Cmdable) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(approvalID string) string {
	return ApprovalTokenPrefix + approvalID
}

// Set stores token for approvalID, expiring after ttl.
func (s *TokenStore) Set(ctx context.Context, approvalID, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, tokenKey(approvalID), token, ttl).Err(); err != nil {
		return fmt.Errorf("set approval token: %w", err)
	}
	return nil
}

// Get returns the token for approvalID. found is false once it expired or was revoked.
func (s *TokenStore) Get(ctx context.Context, approvalID string) (token string, found bool, err error) {
	token, err = s.client.Get(ctx, tokenKey(approvalID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get approval token: %w", err)
	}
	return token, true, nil
}

func (s *TokenStore) Delete(ctx context.Context, approvalID string) error {
	if err := s.client.Del(ctx, tokenKey(approvalID)).Err(); err != nil {
		return fmt.Errorf("delete approval token: %w", err)
	}
	return nil
}
