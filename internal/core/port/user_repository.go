package port

import (
	"context"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

// UserRepository persists identity records and their role assignments. Every
// call is scoped by the tenant context id carried on the entity or passed
// explicitly.
type UserRepository interface {
	Get(ctx context.Context, contextID, userID string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, contextID, userID string) error
	// Search returns users whose id begins with the given pattern.
	Search(ctx context.Context, contextID, pattern string) ([]domain.User, error)

	AssignRole(ctx context.Context, contextID string, ur domain.UserRole, admin bool) error
	DeassignRole(ctx context.Context, contextID, userID, role string, admin bool) error
	// AssignedUsers returns the ids of users holding the role.
	AssignedUsers(ctx context.Context, contextID, role string, admin bool) ([]string, error)
}
