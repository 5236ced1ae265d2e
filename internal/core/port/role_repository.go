package port

import (
	"context"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

// RoleRepository persists roles and the hierarchy edges between them. RBAC and
// admin roles live in separate hierarchies, selected by the admin flag.
type RoleRepository interface {
	Get(ctx context.Context, contextID, name string, admin bool) (*domain.Role, error)
	Create(ctx context.Context, role *domain.Role) error
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, contextID, name string, admin bool) error
	Search(ctx context.Context, contextID, pattern string, admin bool) ([]domain.Role, error)

	ListRelationships(ctx context.Context, contextID string, admin bool) ([]domain.Relationship, error)
	AddRelationship(ctx context.Context, contextID string, rel domain.Relationship, admin bool) error
	RemoveRelationship(ctx context.Context, contextID string, rel domain.Relationship, admin bool) error
}
