package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

// PasswordHasher produces stored password hashes for new and updated users.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// AdminService owns policy bookkeeping: user and role lifecycle, permission
// lifecycle, user-role assignment with the static separation hook, permission
// grants and revocations, separation set management, and the bulk removals
// that keep grants consistent when a user or role disappears.
type AdminService struct {
	users      port.UserRepository
	roles      port.RoleRepository
	perms      port.PermissionRepository
	sdsets     port.SDSetRepository
	hierarchy  *HierarchyService
	separation *SeparationChecker
	hasher     PasswordHasher
	publisher  port.EventPublisher
	logger     *zap.Logger
}

// NewAdminService constructs an AdminService. hasher and publisher may be nil;
// without a hasher, users can only be created without credentials.
func NewAdminService(
	users port.UserRepository,
	roles port.RoleRepository,
	perms port.PermissionRepository,
	sdsets port.SDSetRepository,
	hierarchy *HierarchyService,
	separation *SeparationChecker,
	hasher PasswordHasher,
	publisher port.EventPublisher,
	logger *zap.Logger,
) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		users:      users,
		roles:      roles,
		perms:      perms,
		sdsets:     sdsets,
		hierarchy:  hierarchy,
		separation: separation,
		hasher:     hasher,
		publisher:  publisher,
		logger:     logger,
	}
}

// AddUser creates a user record. A non-empty password is hashed before
// storage; trusted-only accounts may omit it.
func (s *AdminService) AddUser(ctx context.Context, user *domain.User, password string) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if err := validateScoped(user.ContextID, user.ID, "user id"); err != nil {
		return err
	}
	user.ID = strings.TrimSpace(user.ID)

	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}

	if password != "" {
		if s.hasher == nil {
			return fmt.Errorf("password hashing is not configured")
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("user %s: %w", user.ID, err)
		}
		return fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created",
		zap.String("context_id", user.ContextID),
		zap.String("user_id", user.ID),
	)
	return nil
}

// UpdateUser replaces the user's status, properties, and constraint. The
// stored password hash is kept unless a new password is supplied.
func (s *AdminService) UpdateUser(ctx context.Context, user *domain.User, password string) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if err := validateScoped(user.ContextID, user.ID, "user id"); err != nil {
		return err
	}
	user.ID = strings.TrimSpace(user.ID)

	existing, err := s.users.Get(ctx, user.ContextID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if password != "" {
		if s.hasher == nil {
			return fmt.Errorf("password hashing is not configured")
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	} else {
		user.PasswordHash = existing.PasswordHash
	}
	if user.Status == "" {
		user.Status = existing.Status
	}

	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// GetUser fetches a user together with both role assignment lists.
func (s *AdminService) GetUser(ctx context.Context, contextID, userID string) (*domain.User, error) {
	if err := validateScoped(contextID, userID, "user id"); err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, contextID, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// GetRole fetches a role definition.
func (s *AdminService) GetRole(ctx context.Context, contextID, name string, admin bool) (*domain.Role, error) {
	if err := validateScoped(contextID, name, "role name"); err != nil {
		return nil, err
	}

	role, err := s.roles.Get(ctx, contextID, strings.TrimSpace(name), admin)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	parents, err := s.hierarchy.Parents(ctx, contextID, role.Name, admin)
	if err != nil {
		return nil, fmt.Errorf("resolve parents: %w", err)
	}
	role.Parents = parents
	return role, nil
}

// AddRole creates a role. Named parents become hierarchy edges, so the
// created role inherits from them immediately; an edge that cannot be linked
// (unknown parent, cycle) fails the call after the role row exists.
func (s *AdminService) AddRole(ctx context.Context, role *domain.Role) error {
	if err := validateScoped(role.ContextID, role.Name, "role name"); err != nil {
		return err
	}
	role.Name = strings.TrimSpace(role.Name)

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("role %s: %w", role.Name, err)
		}
		return fmt.Errorf("create role: %w", err)
	}

	for _, parent := range role.Parents {
		rel := domain.Relationship{Child: role.Name, Parent: parent}
		if err := s.hierarchy.AddRelationship(ctx, role.ContextID, rel, role.Admin); err != nil {
			return fmt.Errorf("link parent %s: %w", parent, err)
		}
	}
	return nil
}

// UpdateRole replaces the mutable fields of a role and reconciles its parent
// edges against the requested list: missing edges are added, edges no longer
// named are removed.
func (s *AdminService) UpdateRole(ctx context.Context, role *domain.Role) error {
	if err := validateScoped(role.ContextID, role.Name, "role name"); err != nil {
		return err
	}
	if err := s.roles.Update(ctx, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}

	current, err := s.hierarchy.Parents(ctx, role.ContextID, role.Name, role.Admin)
	if err != nil {
		return fmt.Errorf("resolve parents: %w", err)
	}

	desired := make(map[string]struct{}, len(role.Parents))
	for _, parent := range role.Parents {
		desired[parent] = struct{}{}
	}
	existing := make(map[string]struct{}, len(current))
	for _, parent := range current {
		existing[parent] = struct{}{}
	}

	for _, parent := range role.Parents {
		if _, ok := existing[parent]; ok {
			continue
		}
		rel := domain.Relationship{Child: role.Name, Parent: parent}
		if err := s.hierarchy.AddRelationship(ctx, role.ContextID, rel, role.Admin); err != nil {
			return fmt.Errorf("link parent %s: %w", parent, err)
		}
	}
	for _, parent := range current {
		if _, ok := desired[parent]; ok {
			continue
		}
		rel := domain.Relationship{Child: role.Name, Parent: parent}
		if err := s.hierarchy.RemoveRelationship(ctx, role.ContextID, rel, role.Admin); err != nil {
			return fmt.Errorf("unlink parent %s: %w", parent, err)
		}
	}
	return nil
}

// DeleteRole removes a role after revoking every permission that references
// it and invalidating the cached hierarchy. Per-permission failures do not
// stop the sweep; they are aggregated.
func (s *AdminService) DeleteRole(ctx context.Context, contextID, name string, admin bool) error {
	if err := validateScoped(contextID, name, "role name"); err != nil {
		return err
	}
	name = strings.TrimSpace(name)

	if _, err := s.roles.Get(ctx, contextID, name, admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	var failures []error
	referencing, err := s.perms.FindByRole(ctx, contextID, name, admin)
	if err != nil {
		return fmt.Errorf("find referencing permissions: %w", err)
	}
	for _, perm := range referencing {
		if err := s.perms.RevokeRole(ctx, contextID, perm.ObjName, perm.OpName, name, admin); err != nil {
			failures = append(failures, fmt.Errorf("revoke %s from %s: %w", name, perm.Ident(), err))
		}
	}

	holders, err := s.users.AssignedUsers(ctx, contextID, name, admin)
	if err != nil {
		failures = append(failures, fmt.Errorf("list assigned users: %w", err))
	}
	for _, userID := range holders {
		if err := s.users.DeassignRole(ctx, contextID, userID, name, admin); err != nil {
			failures = append(failures, fmt.Errorf("deassign %s from user %s: %w", name, userID, err))
		}
	}

	if err := s.roles.Delete(ctx, contextID, name, admin); err != nil {
		failures = append(failures, fmt.Errorf("delete role %s: %w", name, err))
	}
	s.hierarchy.Invalidate(contextID, admin)

	if len(failures) > 0 {
		return &BulkRevokeError{Errs: failures}
	}
	return nil
}

// AssignUser assigns a role to a user, first checking the static separation
// sets against the user's expanded assignments.
func (s *AdminService) AssignUser(ctx context.Context, contextID string, ur domain.UserRole, admin bool) error {
	if err := validateScoped(contextID, ur.Name, "role name"); err != nil {
		return err
	}
	ur.Name = strings.TrimSpace(ur.Name)
	ur.UserID = strings.TrimSpace(ur.UserID)
	if ur.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	user, err := s.users.Get(ctx, contextID, ur.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if _, err := s.roles.Get(ctx, contextID, ur.Name, admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("role %s: %w", ur.Name, ErrRoleNotFound)
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	assigned := user.Roles
	if admin {
		assigned = user.AdminRoles
	}
	if findRoleAssignment(assigned, ur.Name) != nil {
		return ErrAlreadyAssigned
	}

	// Static separation applies to RBAC roles only.
	if !admin {
		if err := s.separation.ValidateSSD(ctx, contextID, user.AuthorizedRoles(), ur.Name); err != nil {
			return err
		}
	}

	if err := s.users.AssignRole(ctx, contextID, ur, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyAssigned
		}
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// DeassignUser removes a role assignment from a user.
func (s *AdminService) DeassignUser(ctx context.Context, contextID, userID, role string, admin bool) error {
	if err := validateScoped(contextID, role, "role name"); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	if err := s.users.DeassignRole(ctx, contextID, userID, strings.TrimSpace(role), admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotAssigned
		}
		return fmt.Errorf("deassign role: %w", err)
	}
	return nil
}

// AddPermObj registers a protected object.
func (s *AdminService) AddPermObj(ctx context.Context, obj *domain.PermObj) error {
	if err := validateScoped(obj.ContextID, obj.ObjName, "object name"); err != nil {
		return err
	}
	obj.ObjName = strings.TrimSpace(obj.ObjName)

	if err := s.perms.CreateObject(ctx, obj); err != nil {
		return fmt.Errorf("create permission object: %w", err)
	}
	return nil
}

// DeletePermObj removes a protected object and, implicitly, its operations.
func (s *AdminService) DeletePermObj(ctx context.Context, contextID, objName string) error {
	if err := validateScoped(contextID, objName, "object name"); err != nil {
		return err
	}
	if err := s.perms.DeleteObject(ctx, contextID, strings.TrimSpace(objName)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("delete permission object: %w", err)
	}
	return nil
}

// AddPermission registers an operation on an existing object.
func (s *AdminService) AddPermission(ctx context.Context, perm *domain.Permission) error {
	if err := validateScoped(perm.ContextID, perm.ObjName, "object name"); err != nil {
		return err
	}
	perm.ObjName = strings.TrimSpace(perm.ObjName)
	perm.OpName = strings.TrimSpace(perm.OpName)
	if perm.OpName == "" {
		return fmt.Errorf("operation name is required")
	}

	if _, err := s.perms.GetObject(ctx, perm.ContextID, perm.ObjName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("object %s: %w", perm.ObjName, ErrPermissionNotFound)
		}
		return fmt.Errorf("lookup permission object: %w", err)
	}

	if err := s.perms.Create(ctx, perm); err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// DeletePermission removes an operation and its grants.
func (s *AdminService) DeletePermission(ctx context.Context, contextID, objName, opName string, admin bool) error {
	if err := validateScoped(contextID, objName, "object name"); err != nil {
		return err
	}
	if err := s.perms.Delete(ctx, contextID, strings.TrimSpace(objName), strings.TrimSpace(opName), admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

// GrantToRole grants a permission to a role. Granting a grant that already
// exists fails without changing anything.
func (s *AdminService) GrantToRole(ctx context.Context, contextID, objName, opName, role string, admin bool) error {
	perm, err := s.lookupPermission(ctx, contextID, objName, opName, admin)
	if err != nil {
		return err
	}
	role = strings.TrimSpace(role)
	if _, err := s.roles.Get(ctx, contextID, role, admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("role %s: %w", role, ErrRoleNotFound)
		}
		return fmt.Errorf("lookup role: %w", err)
	}
	if perm.HasRole(role) {
		return ErrAlreadyGranted
	}

	if err := s.perms.GrantRole(ctx, contextID, perm.ObjName, perm.OpName, role, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyGranted
		}
		return fmt.Errorf("grant permission to role: %w", err)
	}
	s.publishGrant(ctx, domain.PermissionGrantedEvent{
		ContextID: contextID, ObjName: perm.ObjName, OpName: perm.OpName, Role: role,
	})
	return nil
}

// RevokeFromRole revokes a role grant. Revoking a grant that does not exist
// fails without changing anything.
func (s *AdminService) RevokeFromRole(ctx context.Context, contextID, objName, opName, role string, admin bool) error {
	perm, err := s.lookupPermission(ctx, contextID, objName, opName, admin)
	if err != nil {
		return err
	}
	role = strings.TrimSpace(role)
	if !perm.HasRole(role) {
		return ErrNotGranted
	}

	if err := s.perms.RevokeRole(ctx, contextID, perm.ObjName, perm.OpName, role, admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotGranted
		}
		return fmt.Errorf("revoke permission from role: %w", err)
	}
	s.publishGrant(ctx, domain.PermissionRevokedEvent{
		ContextID: contextID, ObjName: perm.ObjName, OpName: perm.OpName, Role: role,
	})
	return nil
}

// GrantToUser grants a permission to a user directly.
func (s *AdminService) GrantToUser(ctx context.Context, contextID, objName, opName, userID string, admin bool) error {
	perm, err := s.lookupPermission(ctx, contextID, objName, opName, admin)
	if err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if _, err := s.users.Get(ctx, contextID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if perm.HasUser(userID) {
		return ErrAlreadyGranted
	}

	if err := s.perms.GrantUser(ctx, contextID, perm.ObjName, perm.OpName, userID, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyGranted
		}
		return fmt.Errorf("grant permission to user: %w", err)
	}
	s.publishGrant(ctx, domain.PermissionGrantedEvent{
		ContextID: contextID, ObjName: perm.ObjName, OpName: perm.OpName, UserID: userID,
	})
	return nil
}

// RevokeFromUser revokes a direct user grant.
func (s *AdminService) RevokeFromUser(ctx context.Context, contextID, objName, opName, userID string, admin bool) error {
	perm, err := s.lookupPermission(ctx, contextID, objName, opName, admin)
	if err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if !perm.HasUser(userID) {
		return ErrNotGranted
	}

	if err := s.perms.RevokeUser(ctx, contextID, perm.ObjName, perm.OpName, userID, admin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotGranted
		}
		return fmt.Errorf("revoke permission from user: %w", err)
	}
	s.publishGrant(ctx, domain.PermissionRevokedEvent{
		ContextID: contextID, ObjName: perm.ObjName, OpName: perm.OpName, UserID: userID,
	})
	return nil
}

// RemoveUser deletes a user after revoking every direct permission grant.
// Per-grant failures are collected and the sweep continues so a single broken
// grant cannot strand the rest.
func (s *AdminService) RemoveUser(ctx context.Context, contextID, userID string) error {
	if err := validateScoped(contextID, userID, "user id"); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)

	if _, err := s.users.Get(ctx, contextID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	var failures []error
	for _, admin := range []bool{false, true} {
		granted, err := s.perms.FindByUser(ctx, contextID, userID, admin)
		if err != nil {
			failures = append(failures, fmt.Errorf("find user grants: %w", err))
			continue
		}
		for _, perm := range granted {
			if err := s.perms.RevokeUser(ctx, contextID, perm.ObjName, perm.OpName, userID, admin); err != nil {
				failures = append(failures, fmt.Errorf("revoke %s from user %s: %w", perm.Ident(), userID, err))
			}
		}
	}

	if err := s.users.Delete(ctx, contextID, userID); err != nil {
		failures = append(failures, fmt.Errorf("delete user %s: %w", userID, err))
	}

	if len(failures) > 0 {
		return &BulkRevokeError{Errs: failures}
	}
	return nil
}

// AddSDSet creates a separation of duty set. Cardinality below 2 would forbid
// single-role membership, so it is rejected.
func (s *AdminService) AddSDSet(ctx context.Context, set *domain.SDSet) error {
	if err := s.validateSDSet(ctx, set); err != nil {
		return err
	}
	if err := s.sdsets.Create(ctx, set); err != nil {
		return fmt.Errorf("create separation set: %w", err)
	}
	return nil
}

// UpdateSDSet replaces a separation set definition.
func (s *AdminService) UpdateSDSet(ctx context.Context, set *domain.SDSet) error {
	if err := s.validateSDSet(ctx, set); err != nil {
		return err
	}
	if err := s.sdsets.Update(ctx, set); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSDSetNotFound
		}
		return fmt.Errorf("update separation set: %w", err)
	}
	return nil
}

// DeleteSDSet removes a separation set.
func (s *AdminService) DeleteSDSet(ctx context.Context, contextID, name string, kind domain.SDSetKind) error {
	if err := validateScoped(contextID, name, "set name"); err != nil {
		return err
	}
	if err := s.sdsets.Delete(ctx, contextID, strings.TrimSpace(name), kind); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSDSetNotFound
		}
		return fmt.Errorf("delete separation set: %w", err)
	}
	return nil
}

func (s *AdminService) validateSDSet(ctx context.Context, set *domain.SDSet) error {
	if err := validateScoped(set.ContextID, set.Name, "set name"); err != nil {
		return err
	}
	set.Name = strings.TrimSpace(set.Name)
	if set.Kind != domain.SDStatic && set.Kind != domain.SDDynamic {
		return fmt.Errorf("set kind must be static or dynamic")
	}
	if set.Cardinality < 2 {
		return ErrCardinalityTooLow
	}
	for _, member := range set.Members {
		if _, err := s.roles.Get(ctx, set.ContextID, member, false); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("member %s: %w", member, ErrRoleNotFound)
			}
			return fmt.Errorf("lookup member %s: %w", member, err)
		}
	}
	return nil
}

func (s *AdminService) lookupPermission(ctx context.Context, contextID, objName, opName string, admin bool) (*domain.Permission, error) {
	if err := validateScoped(contextID, objName, "object name"); err != nil {
		return nil, err
	}
	opName = strings.TrimSpace(opName)
	if opName == "" {
		return nil, fmt.Errorf("operation name is required")
	}

	perm, err := s.perms.Get(ctx, contextID, strings.TrimSpace(objName), opName, admin)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("lookup permission: %w", err)
	}
	return perm, nil
}

func (s *AdminService) publishGrant(ctx context.Context, event port.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", zap.String("topic", event.Topic()), zap.Error(err))
	}
}

func validateScoped(contextID, name, label string) error {
	if strings.TrimSpace(contextID) == "" {
		return ErrContextRequired
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s is required", label)
	}
	return nil
}
