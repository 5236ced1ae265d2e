package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

// HierarchyService resolves the role hierarchy: transitive ascendant and
// descendant closures, and the edge mutations that keep the graph acyclic.
// Each (tenant, admin) pair gets its own in-memory adjacency graph, lazily
// loaded from the role repository and guarded so closure reads run
// concurrently while edge writes stay atomic with the store.
type HierarchyService struct {
	roles  port.RoleRepository
	logger *zap.Logger

	mu     sync.RWMutex
	graphs map[graphKey]*roleGraph
}

type graphKey struct {
	contextID string
	admin     bool
}

type roleGraph struct {
	mu sync.RWMutex
	// parents maps child role name to its direct parent names.
	parents map[string][]string
	// children is the inverse index.
	children map[string][]string
}

// NewHierarchyService constructs a HierarchyService.
func NewHierarchyService(roles port.RoleRepository, logger *zap.Logger) *HierarchyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchyService{
		roles:  roles,
		logger: logger,
		graphs: make(map[graphKey]*roleGraph),
	}
}

// Ascendants returns the transitive parents of the role, excluding the role
// itself. Unknown roles yield an empty closure rather than an error so
// permission checks degrade gracefully.
func (s *HierarchyService) Ascendants(ctx context.Context, contextID, role string, admin bool) ([]string, error) {
	g, err := s.graph(ctx, contextID, admin)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closure(role, g.parents), nil
}

// Descendants returns the transitive children of the role, excluding the role
// itself.
func (s *HierarchyService) Descendants(ctx context.Context, contextID, role string, admin bool) ([]string, error) {
	g, err := s.graph(ctx, contextID, admin)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closure(role, g.children), nil
}

// Parents returns the direct parents of the role, without transitive
// expansion. This is the edge list role reads report back.
func (s *HierarchyService) Parents(ctx context.Context, contextID, role string, admin bool) ([]string, error) {
	g, err := s.graph(ctx, contextID, admin)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.parents[role]...), nil
}

// Expand returns the union of the given roles and all of their ascendants,
// deduplicated. This is the closure used for permission inheritance and
// separation of duty checks.
func (s *HierarchyService) Expand(ctx context.Context, contextID string, roles []string, admin bool) ([]string, error) {
	g, err := s.graph(ctx, contextID, admin)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{}, len(roles))
	expanded := make([]string, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role]; !ok {
			seen[role] = struct{}{}
			expanded = append(expanded, role)
		}
		for _, asc := range g.closure(role, g.parents) {
			if _, ok := seen[asc]; !ok {
				seen[asc] = struct{}{}
				expanded = append(expanded, asc)
			}
		}
	}
	return expanded, nil
}

// AddRelationship inserts a (child, parent) edge after verifying both roles
// exist, the edge is new, and it cannot close a cycle. The store write and the
// in-memory update happen under the graph write lock so concurrent closure
// reads never observe a half-applied edge.
func (s *HierarchyService) AddRelationship(ctx context.Context, contextID string, rel domain.Relationship, admin bool) error {
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return ErrContextRequired
	}
	rel.Child = strings.TrimSpace(rel.Child)
	rel.Parent = strings.TrimSpace(rel.Parent)
	if rel.Child == "" || rel.Parent == "" {
		return fmt.Errorf("child and parent role names are required")
	}
	if rel.Child == rel.Parent {
		return ErrHierarchyCycle
	}

	for _, name := range []string{rel.Child, rel.Parent} {
		if _, err := s.roles.Get(ctx, contextID, name, admin); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("role %s: %w", name, ErrRoleNotFound)
			}
			return fmt.Errorf("lookup role %s: %w", name, err)
		}
	}

	g, err := s.graph(ctx, contextID, admin)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, parent := range g.parents[rel.Child] {
		if parent == rel.Parent {
			return ErrRelationshipExists
		}
	}

	// The edge child -> parent closes a cycle iff the parent already descends
	// from the child.
	for _, desc := range g.closure(rel.Child, g.children) {
		if desc == rel.Parent {
			return ErrHierarchyCycle
		}
	}

	if err := s.roles.AddRelationship(ctx, contextID, rel, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrRelationshipExists
		}
		return fmt.Errorf("store relationship: %w", err)
	}

	g.parents[rel.Child] = append(g.parents[rel.Child], rel.Parent)
	g.children[rel.Parent] = append(g.children[rel.Parent], rel.Child)

	s.logger.Info("hierarchy edge added",
		zap.String("context_id", contextID),
		zap.String("child", rel.Child),
		zap.String("parent", rel.Parent),
		zap.Bool("admin", admin))
	return nil
}

// RemoveRelationship deletes a direct (child, parent) edge. Only direct edges
// can be removed; inherited paths are untouched.
func (s *HierarchyService) RemoveRelationship(ctx context.Context, contextID string, rel domain.Relationship, admin bool) error {
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return ErrContextRequired
	}
	rel.Child = strings.TrimSpace(rel.Child)
	rel.Parent = strings.TrimSpace(rel.Parent)
	if rel.Child == "" || rel.Parent == "" {
		return fmt.Errorf("child and parent role names are required")
	}

	g, err := s.graph(ctx, contextID, admin)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, parent := range g.parents[rel.Child] {
		if parent == rel.Parent {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrRelationshipNotFound
	}

	if err := s.roles.RemoveRelationship(ctx, contextID, rel, admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRelationshipNotFound
		}
		return fmt.Errorf("remove relationship: %w", err)
	}

	g.parents[rel.Child] = append(g.parents[rel.Child][:idx], g.parents[rel.Child][idx+1:]...)
	for i, child := range g.children[rel.Parent] {
		if child == rel.Child {
			g.children[rel.Parent] = append(g.children[rel.Parent][:i], g.children[rel.Parent][i+1:]...)
			break
		}
	}

	s.logger.Info("hierarchy edge removed",
		zap.String("context_id", contextID),
		zap.String("child", rel.Child),
		zap.String("parent", rel.Parent),
		zap.Bool("admin", admin))
	return nil
}

// Invalidate drops the cached graph for a tenant so the next read reloads from
// the store. Called after role deletion.
func (s *HierarchyService) Invalidate(contextID string, admin bool) {
	s.mu.Lock()
	delete(s.graphs, graphKey{contextID: contextID, admin: admin})
	s.mu.Unlock()
}

func (s *HierarchyService) graph(ctx context.Context, contextID string, admin bool) (*roleGraph, error) {
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return nil, ErrContextRequired
	}

	key := graphKey{contextID: contextID, admin: admin}

	s.mu.RLock()
	g, ok := s.graphs[key]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.graphs[key]; ok {
		return g, nil
	}

	rels, err := s.roles.ListRelationships(ctx, contextID, admin)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	g = &roleGraph{
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
	for _, rel := range rels {
		g.parents[rel.Child] = append(g.parents[rel.Child], rel.Parent)
		g.children[rel.Parent] = append(g.children[rel.Parent], rel.Child)
	}
	s.graphs[key] = g
	return g, nil
}

// closure walks the adjacency map breadth-first from start, returning every
// reachable role except start itself. The visited set makes the walk safe even
// if the stored graph somehow contains a cycle.
func (g *roleGraph) closure(start string, adj map[string][]string) []string {
	visited := map[string]struct{}{start: {}}
	var out []string

	queue := append([]string(nil), adj[start]...)
	for len(queue) > 0 {
		role := queue[0]
		queue = queue[1:]
		if _, ok := visited[role]; ok {
			continue
		}
		visited[role] = struct{}{}
		out = append(out, role)
		queue = append(queue, adj[role]...)
	}
	return out
}
