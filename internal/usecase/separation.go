package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
)

// SeparationChecker enforces static and dynamic separation of duty sets.
// Membership is evaluated over hierarchy-expanded role sets, so a role
// inherits the exclusions of every role it descends from.
type SeparationChecker struct {
	sdsets    port.SDSetRepository
	hierarchy *HierarchyService
	logger    *zap.Logger
}

// NewSeparationChecker constructs a SeparationChecker.
func NewSeparationChecker(sdsets port.SDSetRepository, hierarchy *HierarchyService, logger *zap.Logger) *SeparationChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeparationChecker{sdsets: sdsets, hierarchy: hierarchy, logger: logger}
}

// ValidateSSD checks whether assigning candidate to a user already holding
// the given roles would breach a static set. Both the candidate and the held
// roles are expanded through their ascendants before counting.
func (c *SeparationChecker) ValidateSSD(ctx context.Context, contextID string, assigned []string, candidate string) error {
	proposed := append(append([]string(nil), assigned...), candidate)
	expanded, err := c.hierarchy.Expand(ctx, contextID, proposed, false)
	if err != nil {
		return fmt.Errorf("expand assigned roles: %w", err)
	}

	sets, err := c.sdsets.ListByMember(ctx, contextID, domain.SDStatic, expanded)
	if err != nil {
		return fmt.Errorf("list static sets: %w", err)
	}

	return c.check(sets, expanded)
}

// ValidateDSD checks whether activating candidate into a session whose
// expanded active set is given would breach a dynamic set. Callers pass one
// candidate at a time so session creation can drop offenders in request order.
func (c *SeparationChecker) ValidateDSD(ctx context.Context, contextID string, active []string, candidate string) error {
	proposed := append(append([]string(nil), active...), candidate)
	expanded, err := c.hierarchy.Expand(ctx, contextID, proposed, false)
	if err != nil {
		return fmt.Errorf("expand active roles: %w", err)
	}

	sets, err := c.sdsets.ListByMember(ctx, contextID, domain.SDDynamic, expanded)
	if err != nil {
		return fmt.Errorf("list dynamic sets: %w", err)
	}

	return c.check(sets, expanded)
}

// check counts how many of the expanded roles fall inside each set. A set is
// breached when the count reaches its cardinality.
func (c *SeparationChecker) check(sets []domain.SDSet, expanded []string) error {
	for _, set := range sets {
		matched := 0
		for _, role := range expanded {
			if set.HasMember(role) {
				matched++
			}
		}
		if matched >= set.Cardinality {
			c.logger.Debug("separation of duty breach",
				zap.String("set", set.Name),
				zap.String("kind", string(set.Kind)),
				zap.Int("matched", matched),
				zap.Int("cardinality", set.Cardinality))
			return &SDViolationError{Set: set.Name, Kind: set.Kind, Cardinality: set.Cardinality}
		}
	}
	return nil
}
