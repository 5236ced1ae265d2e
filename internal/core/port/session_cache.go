package port

import (
	"context"
	"time"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

// SessionCache stores session snapshots keyed by session id. The engine works
// without one; callers may hold sessions themselves and pass them back in.
type SessionCache interface {
	Put(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Get(ctx context.Context, contextID, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, contextID, sessionID string) error
}
