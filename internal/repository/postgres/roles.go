package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

// RoleRepository implements role and hierarchy persistence.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	repo := &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Get retrieves a role by name within a tenant scope.
func (r *RoleRepository) Get(ctx context.Context, contextID, name string, admin bool) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("context_id", "name", "is_admin", "constraints", "description").
		From("rbac.roles").
		Where(squirrel.Eq{"context_id": contextID, "name": name, "is_admin": admin}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		role        domain.Role
		constraints []byte
		description sql.NullString
	)
	if err := row.Scan(&role.ContextID, &role.Name, &role.Admin, &constraints, &description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	if role.Constraint, err = decodeConstraint(constraints); err != nil {
		return nil, fmt.Errorf("decode role constraint: %w", err)
	}
	if description.Valid {
		role.Description = &description.String
	}

	return &role, nil
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role *domain.Role) error {
	constraints, err := encodeConstraint(role.Constraint)
	if err != nil {
		return fmt.Errorf("encode role constraint: %w", err)
	}

	stmt, args, err := r.builder.Insert("rbac.roles").
		Columns("context_id", "name", "is_admin", "constraints", "description").
		Values(role.ContextID, role.Name, role.Admin, constraints, role.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// Update modifies the mutable fields of an existing role.
func (r *RoleRepository) Update(ctx context.Context, role *domain.Role) error {
	constraints, err := encodeConstraint(role.Constraint)
	if err != nil {
		return fmt.Errorf("encode role constraint: %w", err)
	}

	stmt, args, err := r.builder.Update("rbac.roles").
		Set("constraints", constraints).
		Set("description", role.Description).
		Where(squirrel.Eq{"context_id": role.ContextID, "name": role.Name, "is_admin": role.Admin}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a role; hierarchy edges cascade via FK.
func (r *RoleRepository) Delete(ctx context.Context, contextID, name string, admin bool) error {
	stmt, args, err := r.builder.Delete("rbac.roles").
		Where(squirrel.Eq{"context_id": contextID, "name": name, "is_admin": admin}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Search returns roles whose names begin with the given pattern.
func (r *RoleRepository) Search(ctx context.Context, contextID, pattern string, admin bool) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("context_id", "name", "is_admin", "constraints", "description").
		From("rbac.roles").
		Where(squirrel.Eq{"context_id": contextID, "is_admin": admin}).
		Where(squirrel.Like{"name": pattern + "%"}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var (
			role        domain.Role
			constraints []byte
			description sql.NullString
		)
		if err := rows.Scan(&role.ContextID, &role.Name, &role.Admin, &constraints, &description); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if role.Constraint, err = decodeConstraint(constraints); err != nil {
			return nil, fmt.Errorf("decode role constraint: %w", err)
		}
		if description.Valid {
			role.Description = &description.String
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// ListRelationships returns every hierarchy edge in the tenant scope.
func (r *RoleRepository) ListRelationships(ctx context.Context, contextID string, admin bool) ([]domain.Relationship, error) {
	stmt, args, err := r.builder.Select("child", "parent").
		From("rbac.role_relationships").
		Where(squirrel.Eq{"context_id": contextID, "is_admin": admin}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list relationships sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]domain.Relationship, 0)
	for rows.Next() {
		var rel domain.Relationship
		if err := rows.Scan(&rel.Child, &rel.Parent); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}

	return rels, nil
}

// AddRelationship inserts a hierarchy edge.
func (r *RoleRepository) AddRelationship(ctx context.Context, contextID string, rel domain.Relationship, admin bool) error {
	stmt, args, err := r.builder.Insert("rbac.role_relationships").
		Columns("context_id", "child", "parent", "is_admin").
		Values(contextID, rel.Child, rel.Parent, admin).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert relationship sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert relationship: %w", err)
	}

	return nil
}

// RemoveRelationship deletes a hierarchy edge.
func (r *RoleRepository) RemoveRelationship(ctx context.Context, contextID string, rel domain.Relationship, admin bool) error {
	stmt, args, err := r.builder.Delete("rbac.role_relationships").
		Where(squirrel.Eq{
			"context_id": contextID,
			"child":      rel.Child,
			"parent":     rel.Parent,
			"is_admin":   admin,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete relationship sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete relationship: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func encodeConstraint(c *domain.Constraint) ([]byte, error) {
	if c.IsZero() {
		return nil, nil
	}
	return json.Marshal(c)
}

func decodeConstraint(raw []byte) (*domain.Constraint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c domain.Constraint
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
