package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

const sessionKeyPrefix = "rbac:session"

// SessionCache stores session snapshots in Redis, keyed by tenant and session
// id. TTL mirrors the session expiry so stale sessions age out on their own.
type SessionCache struct {
	client *red.Client
}

// NewSessionCache wires Redis storage for session snapshots.
func NewSessionCache(client *red.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Put stores the session snapshot with the supplied TTL.
func (c *SessionCache) Put(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if session == nil {
		return fmt.Errorf("session required")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if ttl < 0 {
		ttl = 0
	}

	if err := c.client.Set(ctx, sessionKey(session.ContextID, session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Get retrieves a session snapshot, returning repository.ErrNotFound when the
// key is absent or aged out.
func (c *SessionCache) Get(ctx context.Context, contextID, sessionID string) (*domain.Session, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}

	data, err := c.client.Get(ctx, sessionKey(contextID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &session, nil
}

// Delete evicts a session snapshot.
func (c *SessionCache) Delete(ctx context.Context, contextID, sessionID string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis client not configured")
	}

	if err := c.client.Del(ctx, sessionKey(contextID, sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}

	return nil
}

func sessionKey(contextID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", sessionKeyPrefix, contextID, sessionID)
}

var _ port.SessionCache = (*SessionCache)(nil)
