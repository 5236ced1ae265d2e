package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

// PermissionRepository implements permission and grant persistence.
type PermissionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	repo := &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Get loads a permission together with its role and user grants.
func (r *PermissionRepository) Get(ctx context.Context, contextID, objName, opName string, admin bool) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select("context_id", "obj_name", "op_name", "is_admin", "type").
		From("rbac.permissions").
		Where(squirrel.Eq{"context_id": contextID, "obj_name": objName, "op_name": opName, "is_admin": admin}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		perm     domain.Permission
		permType sql.NullString
	)
	if err := row.Scan(&perm.ContextID, &perm.ObjName, &perm.OpName, &perm.Admin, &permType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	if permType.Valid {
		perm.Type = &permType.String
	}

	if perm.Roles, err = r.grantees(ctx, "rbac.permission_roles", "role_name", contextID, objName, opName, admin); err != nil {
		return nil, err
	}
	if perm.Users, err = r.grantees(ctx, "rbac.permission_users", "user_id", contextID, objName, opName, admin); err != nil {
		return nil, err
	}

	return &perm, nil
}

// Create inserts a new permission.
func (r *PermissionRepository) Create(ctx context.Context, perm *domain.Permission) error {
	stmt, args, err := r.builder.Insert("rbac.permissions").
		Columns("context_id", "obj_name", "op_name", "is_admin", "type").
		Values(perm.ContextID, perm.ObjName, perm.OpName, perm.Admin, perm.Type).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert permission: %w", err)
	}

	return nil
}

// Update modifies the mutable fields of a permission.
func (r *PermissionRepository) Update(ctx context.Context, perm *domain.Permission) error {
	stmt, args, err := r.builder.Update("rbac.permissions").
		Set("type", perm.Type).
		Where(squirrel.Eq{
			"context_id": perm.ContextID,
			"obj_name":   perm.ObjName,
			"op_name":    perm.OpName,
			"is_admin":   perm.Admin,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update permission: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a permission; grants cascade via FK.
func (r *PermissionRepository) Delete(ctx context.Context, contextID, objName, opName string, admin bool) error {
	stmt, args, err := r.builder.Delete("rbac.permissions").
		Where(squirrel.Eq{"context_id": contextID, "obj_name": objName, "op_name": opName, "is_admin": admin}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Search returns permissions matching the object and operation prefixes.
// Grants are not loaded.
func (r *PermissionRepository) Search(ctx context.Context, contextID, objPattern, opPattern string, admin bool) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("context_id", "obj_name", "op_name", "is_admin", "type").
		From("rbac.permissions").
		Where(squirrel.Eq{"context_id": contextID, "is_admin": admin}).
		Where(squirrel.Like{"obj_name": objPattern + "%"}).
		Where(squirrel.Like{"op_name": opPattern + "%"}).
		OrderBy("obj_name ASC", "op_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search permissions sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

// GetObject retrieves a permission object.
func (r *PermissionRepository) GetObject(ctx context.Context, contextID, objName string) (*domain.PermObj, error) {
	stmt, args, err := r.builder.Select("context_id", "obj_name", "org_unit", "type", "description").
		From("rbac.perm_objects").
		Where(squirrel.Eq{"context_id": contextID, "obj_name": objName}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select object sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		obj         domain.PermObj
		objType     sql.NullString
		description sql.NullString
	)
	if err := row.Scan(&obj.ContextID, &obj.ObjName, &obj.OrgUnit, &objType, &description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan object: %w", err)
	}
	if objType.Valid {
		obj.Type = &objType.String
	}
	if description.Valid {
		obj.Description = &description.String
	}

	return &obj, nil
}

// CreateObject inserts a permission object.
func (r *PermissionRepository) CreateObject(ctx context.Context, obj *domain.PermObj) error {
	stmt, args, err := r.builder.Insert("rbac.perm_objects").
		Columns("context_id", "obj_name", "org_unit", "type", "description").
		Values(obj.ContextID, obj.ObjName, obj.OrgUnit, obj.Type, obj.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert object sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert object: %w", err)
	}

	return nil
}

// DeleteObject removes a permission object; its operations cascade via FK.
func (r *PermissionRepository) DeleteObject(ctx context.Context, contextID, objName string) error {
	stmt, args, err := r.builder.Delete("rbac.perm_objects").
		Where(squirrel.Eq{"context_id": contextID, "obj_name": objName}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete object sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// FindByRoles returns permissions granted to at least one of the given roles.
func (r *PermissionRepository) FindByRoles(ctx context.Context, contextID string, roles []string, admin bool) ([]domain.Permission, error) {
	if len(roles) == 0 {
		return []domain.Permission{}, nil
	}

	stmt, args, err := r.builder.Select("DISTINCT p.context_id", "p.obj_name", "p.op_name", "p.is_admin", "p.type").
		From("rbac.permissions p").
		Join("rbac.permission_roles pr ON pr.context_id = p.context_id AND pr.obj_name = p.obj_name AND pr.op_name = p.op_name AND pr.is_admin = p.is_admin").
		Where(squirrel.Eq{"p.context_id": contextID, "p.is_admin": admin, "pr.role_name": roles}).
		OrderBy("p.obj_name ASC", "p.op_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by roles sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

// FindByUser returns permissions granted to the user directly.
func (r *PermissionRepository) FindByUser(ctx context.Context, contextID, userID string, admin bool) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("p.context_id", "p.obj_name", "p.op_name", "p.is_admin", "p.type").
		From("rbac.permissions p").
		Join("rbac.permission_users pu ON pu.context_id = p.context_id AND pu.obj_name = p.obj_name AND pu.op_name = p.op_name AND pu.is_admin = p.is_admin").
		Where(squirrel.Eq{"p.context_id": contextID, "p.is_admin": admin, "pu.user_id": userID}).
		OrderBy("p.obj_name ASC", "p.op_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by user sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

// FindByRole returns every permission referencing the role.
func (r *PermissionRepository) FindByRole(ctx context.Context, contextID, role string, admin bool) ([]domain.Permission, error) {
	return r.FindByRoles(ctx, contextID, []string{role}, admin)
}

// GrantRole attaches a role grant to a permission.
func (r *PermissionRepository) GrantRole(ctx context.Context, contextID, objName, opName, role string, admin bool) error {
	stmt, args, err := r.builder.Insert("rbac.permission_roles").
		Columns("context_id", "obj_name", "op_name", "is_admin", "role_name").
		Values(contextID, objName, opName, admin, role).
		ToSql()
	if err != nil {
		return fmt.Errorf("build grant role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("grant role: %w", err)
	}

	return nil
}

// RevokeRole removes a role grant from a permission.
func (r *PermissionRepository) RevokeRole(ctx context.Context, contextID, objName, opName, role string, admin bool) error {
	stmt, args, err := r.builder.Delete("rbac.permission_roles").
		Where(squirrel.Eq{
			"context_id": contextID,
			"obj_name":   objName,
			"op_name":    opName,
			"is_admin":   admin,
			"role_name":  role,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GrantUser attaches a direct user grant to a permission.
func (r *PermissionRepository) GrantUser(ctx context.Context, contextID, objName, opName, userID string, admin bool) error {
	stmt, args, err := r.builder.Insert("rbac.permission_users").
		Columns("context_id", "obj_name", "op_name", "is_admin", "user_id").
		Values(contextID, objName, opName, admin, userID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build grant user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("grant user: %w", err)
	}

	return nil
}

// RevokeUser removes a direct user grant from a permission.
func (r *PermissionRepository) RevokeUser(ctx context.Context, contextID, objName, opName, userID string, admin bool) error {
	stmt, args, err := r.builder.Delete("rbac.permission_users").
		Where(squirrel.Eq{
			"context_id": contextID,
			"obj_name":   objName,
			"op_name":    opName,
			"is_admin":   admin,
			"user_id":    userID,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, stmt string, args []any) ([]domain.Permission, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]domain.Permission, 0)
	for rows.Next() {
		var (
			perm     domain.Permission
			permType sql.NullString
		)
		if err := rows.Scan(&perm.ContextID, &perm.ObjName, &perm.OpName, &perm.Admin, &permType); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		if permType.Valid {
			perm.Type = &permType.String
		}
		perms = append(perms, perm)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return perms, nil
}

func (r *PermissionRepository) grantees(ctx context.Context, table, column, contextID, objName, opName string, admin bool) ([]string, error) {
	stmt, args, err := r.builder.Select(column).
		From(table).
		Where(squirrel.Eq{"context_id": contextID, "obj_name": objName, "op_name": opName, "is_admin": admin}).
		OrderBy(column + " ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build grantees sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query grantees: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan grantee: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grantees: %w", err)
	}

	return names, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
