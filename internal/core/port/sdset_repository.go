package port

import (
	"context"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

// SDSetRepository persists static and dynamic separation-of-duty sets.
type SDSetRepository interface {
	Get(ctx context.Context, contextID, name string, kind domain.SDSetKind) (*domain.SDSet, error)
	Create(ctx context.Context, set *domain.SDSet) error
	Update(ctx context.Context, set *domain.SDSet) error
	Delete(ctx context.Context, contextID, name string, kind domain.SDSetKind) error
	ListByKind(ctx context.Context, contextID string, kind domain.SDSetKind) ([]domain.SDSet, error)
	// ListByMember returns the sets of the given kind containing any of the
	// given roles. Constraint checks pass the hierarchy-expanded role set so
	// inherited membership is honored.
	ListByMember(ctx context.Context, contextID string, kind domain.SDSetKind, roles []string) ([]domain.SDSet, error)
}
