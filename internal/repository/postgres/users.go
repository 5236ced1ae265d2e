package postgres

import (
	"context"
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

// UserRepository implements identity persistence.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Get loads a user together with its role assignments.
func (r *UserRepository) Get(ctx context.Context, contextID, userID string) (*domain.User, error) {
	stmt, args, err := r.builder.Select("context_id", "id", "password_hash", "status", "props", "constraints").
		From("rbac.users").
		Where(squirrel.Eq{"context_id": contextID, "id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		user        domain.User
		props       []byte
		constraints []byte
	)
	if err := row.Scan(&user.ContextID, &user.ID, &user.PasswordHash, &user.Status, &props, &constraints); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if len(props) > 0 {
		if err := json.Unmarshal(props, &user.Props); err != nil {
			return nil, fmt.Errorf("decode user props: %w", err)
		}
	}
	if user.Constraint, err = decodeConstraint(constraints); err != nil {
		return nil, fmt.Errorf("decode user constraint: %w", err)
	}

	if user.Roles, err = r.assignments(ctx, contextID, userID, false); err != nil {
		return nil, err
	}
	if user.AdminRoles, err = r.assignments(ctx, contextID, userID, true); err != nil {
		return nil, err
	}

	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	props, err := encodeProps(user.Props)
	if err != nil {
		return fmt.Errorf("encode user props: %w", err)
	}
	constraints, err := encodeConstraint(user.Constraint)
	if err != nil {
		return fmt.Errorf("encode user constraint: %w", err)
	}

	stmt, args, err := r.builder.Insert("rbac.users").
		Columns("context_id", "id", "password_hash", "status", "props", "constraints").
		Values(user.ContextID, user.ID, user.PasswordHash, user.Status, props, constraints).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Update modifies the mutable fields of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	props, err := encodeProps(user.Props)
	if err != nil {
		return fmt.Errorf("encode user props: %w", err)
	}
	constraints, err := encodeConstraint(user.Constraint)
	if err != nil {
		return fmt.Errorf("encode user constraint: %w", err)
	}

	stmt, args, err := r.builder.Update("rbac.users").
		Set("password_hash", user.PasswordHash).
		Set("status", user.Status).
		Set("props", props).
		Set("constraints", constraints).
		Where(squirrel.Eq{"context_id": user.ContextID, "id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a user; assignments cascade via FK.
func (r *UserRepository) Delete(ctx context.Context, contextID, userID string) error {
	stmt, args, err := r.builder.Delete("rbac.users").
		Where(squirrel.Eq{"context_id": contextID, "id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Search returns users whose ids begin with the given pattern. Assignments
// are not loaded; callers needing them use Get.
func (r *UserRepository) Search(ctx context.Context, contextID, pattern string) ([]domain.User, error) {
	stmt, args, err := r.builder.Select("context_id", "id", "password_hash", "status").
		From("rbac.users").
		Where(squirrel.Eq{"context_id": contextID}).
		Where(squirrel.Like{"id": pattern + "%"}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ContextID, &user.ID, &user.PasswordHash, &user.Status); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// AssignRole links a role to a user.
func (r *UserRepository) AssignRole(ctx context.Context, contextID string, ur domain.UserRole, admin bool) error {
	constraints, err := encodeConstraint(ur.Constraint)
	if err != nil {
		return fmt.Errorf("encode assignment constraint: %w", err)
	}

	stmt, args, err := r.builder.Insert("rbac.user_roles").
		Columns("context_id", "user_id", "role_name", "is_admin", "constraints").
		Values(contextID, ur.UserID, ur.Name, admin, constraints).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

// DeassignRole removes a role assignment from a user.
func (r *UserRepository) DeassignRole(ctx context.Context, contextID, userID, role string, admin bool) error {
	stmt, args, err := r.builder.Delete("rbac.user_roles").
		Where(squirrel.Eq{
			"context_id": contextID,
			"user_id":    userID,
			"role_name":  role,
			"is_admin":   admin,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deassign role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deassign role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AssignedUsers returns the ids of users holding the role.
func (r *UserRepository) AssignedUsers(ctx context.Context, contextID, role string, admin bool) ([]string, error) {
	stmt, args, err := r.builder.Select("user_id").
		From("rbac.user_roles").
		Where(squirrel.Eq{"context_id": contextID, "role_name": role, "is_admin": admin}).
		OrderBy("user_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assigned users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query assigned users: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assigned user: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assigned users: %w", err)
	}

	return ids, nil
}

func (r *UserRepository) assignments(ctx context.Context, contextID, userID string, admin bool) ([]domain.UserRole, error) {
	stmt, args, err := r.builder.Select("user_id", "role_name", "constraints").
		From("rbac.user_roles").
		Where(squirrel.Eq{"context_id": contextID, "user_id": userID, "is_admin": admin}).
		OrderBy("role_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assignments sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]domain.UserRole, 0)
	for rows.Next() {
		var (
			ur          domain.UserRole
			constraints []byte
		)
		if err := rows.Scan(&ur.UserID, &ur.Name, &constraints); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if ur.Constraint, err = decodeConstraint(constraints); err != nil {
			return nil, fmt.Errorf("decode assignment constraint: %w", err)
		}
		assignments = append(assignments, ur)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return assignments, nil
}

func encodeProps(props map[string]string) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}
	return json.Marshal(props)
}

var _ port.UserRepository = (*UserRepository)(nil)
