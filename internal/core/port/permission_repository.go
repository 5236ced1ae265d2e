package port

import (
	"context"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

// PermissionRepository persists permission objects, operations, and the
// role/user grants attached to them.
type PermissionRepository interface {
	Get(ctx context.Context, contextID, objName, opName string, admin bool) (*domain.Permission, error)
	Create(ctx context.Context, perm *domain.Permission) error
	Update(ctx context.Context, perm *domain.Permission) error
	Delete(ctx context.Context, contextID, objName, opName string, admin bool) error
	Search(ctx context.Context, contextID, objPattern, opPattern string, admin bool) ([]domain.Permission, error)

	GetObject(ctx context.Context, contextID, objName string) (*domain.PermObj, error)
	CreateObject(ctx context.Context, obj *domain.PermObj) error
	DeleteObject(ctx context.Context, contextID, objName string) error

	// FindByRoles returns every permission granted to at least one of the
	// given roles.
	FindByRoles(ctx context.Context, contextID string, roles []string, admin bool) ([]domain.Permission, error)
	// FindByUser returns every permission granted to the user directly.
	FindByUser(ctx context.Context, contextID, userID string, admin bool) ([]domain.Permission, error)
	// FindByRole returns every permission referencing the role, used by bulk
	// revocation.
	FindByRole(ctx context.Context, contextID, role string, admin bool) ([]domain.Permission, error)

	GrantRole(ctx context.Context, contextID, objName, opName, role string, admin bool) error
	RevokeRole(ctx context.Context, contextID, objName, opName, role string, admin bool) error
	GrantUser(ctx context.Context, contextID, objName, opName, userID string, admin bool) error
	RevokeUser(ctx context.Context, contextID, objName, opName, userID string, admin bool) error
}
