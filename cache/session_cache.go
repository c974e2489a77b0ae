package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "session:%s" // String: Session JSON, keyed by token ID

// Session is the server-side record behind a JWT. Deleting it revokes the
// token before its expiry.
type Session struct {
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionCache stores login sessions in Redis.
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a session cache on the given client.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Put stores a session under its token ID with a TTL matching the token.
func (c *SessionCache) Put(ctx context.Context, tokenID string, s *Session) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	key := fmt.Sprintf(sessionKey, tokenID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get retrieves a session by token ID. Returns nil when the session does not
// exist (logged out or expired).
func (c *SessionCache) Get(ctx context.Context, tokenID string) (*Session, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionKey, tokenID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Delete removes a session, revoking its token.
func (c *SessionCache) Delete(ctx context.Context, tokenID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionKey, tokenID)
	return c.client.Del(ctx, key).Err()
}
