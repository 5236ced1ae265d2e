package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

// DefaultSessionTTL applies when neither the user constraint nor configuration
// provides a session timeout.
const DefaultSessionTTL = 30 * time.Minute

// PasswordVerifier checks a plaintext password against a stored encoded hash.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// EngineMetrics records access decisions; a nil implementation disables
// collection.
type EngineMetrics interface {
	SessionCreated()
	AccessCheck(granted bool)
	ActivationWarning(code string)
}

// CreateSessionInput carries everything needed to open a session. When Roles
// is empty every assigned role is a candidate for activation; otherwise each
// named role must be assigned to the user.
type CreateSessionInput struct {
	ContextID string
	UserID    string
	Password  string
	// Trusted skips password verification. Lock and constraint checks still
	// apply.
	Trusted bool
	Roles   []string
	Props   map[string]string
}

// AccessService owns the session lifecycle and runtime access decisions:
// session creation and teardown, explicit role activation, permission checks,
// and the permission listing for a session.
type AccessService struct {
	users      port.UserRepository
	roles      port.RoleRepository
	perms      port.PermissionRepository
	hierarchy  *HierarchyService
	separation *SeparationChecker
	verifier   PasswordVerifier
	cache      port.SessionCache
	publisher  port.EventPublisher
	metrics    EngineMetrics
	logger     *zap.Logger
	sessionTTL time.Duration
	now        func() time.Time
}

// NewAccessService constructs an AccessService. cache, publisher, and metrics
// may be nil.
func NewAccessService(
	users port.UserRepository,
	roles port.RoleRepository,
	perms port.PermissionRepository,
	hierarchy *HierarchyService,
	separation *SeparationChecker,
	verifier PasswordVerifier,
	cache port.SessionCache,
	publisher port.EventPublisher,
	metrics EngineMetrics,
	logger *zap.Logger,
	sessionTTL time.Duration,
) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &AccessService{
		users:      users,
		roles:      roles,
		perms:      perms,
		hierarchy:  hierarchy,
		separation: separation,
		verifier:   verifier,
		cache:      cache,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// WithClock overrides the service clock, used by tests.
func (s *AccessService) WithClock(now func() time.Time) *AccessService {
	s.now = now
	return s
}

// CreateSession authenticates the user (unless trusted), then activates the
// candidate roles one by one in request order. Roles rejected by a temporal
// constraint or a dynamic separation set are dropped with a warning on the
// session; the session itself still opens. Requesting a role the user does
// not hold is a hard failure. The reference time governs every constraint
// evaluation so a decision can be replayed.
func (s *AccessService) CreateSession(ctx context.Context, input CreateSessionInput, at time.Time) (*domain.Session, error) {
	contextID := strings.TrimSpace(input.ContextID)
	if contextID == "" {
		return nil, ErrContextRequired
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	user, err := s.users.Get(ctx, contextID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// Locked accounts never open sessions, trusted or not.
	switch user.Status {
	case domain.UserStatusLocked:
		return nil, ErrUserLocked
	case domain.UserStatusDisabled:
		return nil, ErrUserDisabled
	}

	if !input.Trusted {
		ok, err := s.verifier.Verify(input.Password, user.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return nil, ErrAuthenticationFailed
		}
	}

	if code := user.Constraint.Validate(at); code != "" {
		return nil, &ConstraintError{Role: "", Code: code}
	}

	candidates, err := candidateRoles(user.Roles, input.Roles)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		ContextID: contextID,
		UserID:    userID,
		State:     domain.SessionStateActive,
		CreatedAt: at,
		Props:     input.Props,
	}

	for _, ur := range candidates {
		if code := s.roleConstraintCode(ctx, contextID, ur, false, at); code != "" {
			s.warn(session, ur.Name, code, "role activation rejected by temporal constraint")
			continue
		}
		if err := s.separation.ValidateDSD(ctx, contextID, session.ActiveRoles(), ur.Name); err != nil {
			var sdErr *SDViolationError
			if errors.As(err, &sdErr) {
				s.warn(session, ur.Name, domain.ActivationFailedDSD,
					fmt.Sprintf("role activation rejected by dynamic set %q", sdErr.Set))
				continue
			}
			return nil, fmt.Errorf("validate dynamic separation: %w", err)
		}
		session.Roles = append(session.Roles, ur)
	}

	// Admin roles skip separation checks; constraint filtering still applies.
	for _, ur := range user.AdminRoles {
		if code := s.roleConstraintCode(ctx, contextID, ur, true, at); code != "" {
			s.warn(session, ur.Name, code, "admin role activation rejected by temporal constraint")
			continue
		}
		session.AdminRoles = append(session.AdminRoles, ur)
	}

	ttl := s.sessionTTL
	if user.Constraint != nil && user.Constraint.Timeout > 0 {
		ttl = time.Duration(user.Constraint.Timeout) * time.Minute
	}
	session.ExpiresAt = at.Add(ttl)

	if s.cache != nil {
		if err := s.cache.Put(ctx, session, ttl); err != nil {
			s.logger.Warn("cache session", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	s.publish(ctx, domain.SessionCreatedEvent{
		SessionID: session.ID,
		ContextID: contextID,
		UserID:    userID,
		Roles:     session.ActiveRoles(),
		Warnings:  len(session.Warnings),
		CreatedAt: at,
	})
	if s.metrics != nil {
		s.metrics.SessionCreated()
	}

	s.logger.Info("session created",
		zap.String("context_id", contextID),
		zap.String("user_id", userID),
		zap.String("session_id", session.ID),
		zap.Int("active_roles", len(session.Roles)),
		zap.Int("warnings", len(session.Warnings)))
	return session, nil
}

// LoadSession fetches a cached session snapshot, surfacing expiry as a closed
// session.
func (s *AccessService) LoadSession(ctx context.Context, contextID, sessionID string) (*domain.Session, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("session cache is not configured")
	}
	session, err := s.cache.Get(ctx, contextID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.IsActive() || s.now().After(session.ExpiresAt) {
		return nil, ErrSessionClosed
	}
	return session, nil
}

// DeleteSession closes the session. Closed sessions stay closed; a second
// delete fails.
func (s *AccessService) DeleteSession(ctx context.Context, session *domain.Session) error {
	if !session.IsActive() {
		return ErrSessionClosed
	}
	session.State = domain.SessionStateClosed

	if s.cache != nil {
		if err := s.cache.Delete(ctx, session.ContextID, session.ID); err != nil {
			s.logger.Warn("evict session", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	s.publish(ctx, domain.SessionClosedEvent{
		SessionID: session.ID,
		ContextID: session.ContextID,
		UserID:    session.UserID,
		ClosedAt:  s.now(),
	})
	return nil
}

// AddActiveRole activates one more authorized role into the session. Unlike
// session creation, every check here is a hard failure: an unauthorized role,
// a constraint rejection, or a dynamic separation breach aborts the call and
// leaves the session unchanged.
func (s *AccessService) AddActiveRole(ctx context.Context, session *domain.Session, role string, at time.Time) error {
	if !session.IsActive() {
		return ErrSessionClosed
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("role name is required")
	}
	if session.HasActiveRole(role) {
		return ErrRoleAlreadyActive
	}

	user, err := s.users.Get(ctx, session.ContextID, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	assignment := user.FindRole(role)
	if assignment == nil {
		return fmt.Errorf("role %s: %w", role, ErrRoleNotAuthorized)
	}

	if code := s.roleConstraintCode(ctx, session.ContextID, *assignment, false, at); code != "" {
		return &ConstraintError{Role: role, Code: code}
	}
	if err := s.separation.ValidateDSD(ctx, session.ContextID, session.ActiveRoles(), role); err != nil {
		return err
	}

	session.Roles = append(session.Roles, *assignment)
	s.store(ctx, session)
	return nil
}

// DropActiveRole deactivates a role in the session. Dropping a role that is
// not active is a failure, not a no-op.
func (s *AccessService) DropActiveRole(ctx context.Context, session *domain.Session, role string) error {
	if !session.IsActive() {
		return ErrSessionClosed
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("role name is required")
	}

	for i := range session.Roles {
		if session.Roles[i].Name == role {
			session.Roles = append(session.Roles[:i], session.Roles[i+1:]...)
			s.store(ctx, session)
			return nil
		}
	}
	return fmt.Errorf("role %s: %w", role, ErrRoleNotActive)
}

// store writes the mutated snapshot back to the cache with its remaining
// lifetime. Cacheless callers hold the snapshot themselves.
func (s *AccessService) store(ctx context.Context, session *domain.Session) {
	if s.cache == nil {
		return
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.cache.Put(ctx, session, ttl); err != nil {
		s.logger.Warn("cache session", zap.String("session_id", session.ID), zap.Error(err))
	}
}

// CheckAccess decides whether the session may perform the operation on the
// object. The decision is pure: it reads the stored permission and the
// hierarchy closure of the session's active roles, and mutates nothing.
// Access is granted when an active role (or one of its ascendants) holds the
// permission, or the user is granted it directly. Closed and expired sessions
// are refused even when the caller holds its own snapshot.
func (s *AccessService) CheckAccess(ctx context.Context, session *domain.Session, objName, opName string) (bool, error) {
	objName = strings.TrimSpace(objName)
	opName = strings.TrimSpace(opName)
	if objName == "" || opName == "" {
		return false, fmt.Errorf("object and operation names are required")
	}
	if !session.IsActive() || s.now().After(session.ExpiresAt) {
		return false, ErrSessionClosed
	}

	perm, err := s.perms.Get(ctx, session.ContextID, objName, opName, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrPermissionNotFound
		}
		return false, fmt.Errorf("lookup permission: %w", err)
	}

	granted, err := s.decide(ctx, session, perm)
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.AccessCheck(granted)
	}
	return granted, nil
}

// SessionPermissions returns every permission the session can exercise: those
// granted to an active role or any of its ascendants, plus direct user grants.
func (s *AccessService) SessionPermissions(ctx context.Context, session *domain.Session) ([]domain.Permission, error) {
	if !session.IsActive() || s.now().After(session.ExpiresAt) {
		return nil, ErrSessionClosed
	}

	expanded, err := s.hierarchy.Expand(ctx, session.ContextID, session.ActiveRoles(), false)
	if err != nil {
		return nil, fmt.Errorf("expand active roles: %w", err)
	}

	var perms []domain.Permission
	if len(expanded) > 0 {
		perms, err = s.perms.FindByRoles(ctx, session.ContextID, expanded, false)
		if err != nil {
			return nil, fmt.Errorf("find permissions by roles: %w", err)
		}
	}

	direct, err := s.perms.FindByUser(ctx, session.ContextID, session.UserID, false)
	if err != nil {
		return nil, fmt.Errorf("find permissions by user: %w", err)
	}

	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		seen[p.Ident()] = struct{}{}
	}
	for _, p := range direct {
		if _, ok := seen[p.Ident()]; !ok {
			seen[p.Ident()] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms, nil
}

func (s *AccessService) decide(ctx context.Context, session *domain.Session, perm *domain.Permission) (bool, error) {
	if perm.HasUser(session.UserID) {
		return true, nil
	}

	expanded, err := s.hierarchy.Expand(ctx, session.ContextID, session.ActiveRoles(), perm.Admin)
	if err != nil {
		return false, fmt.Errorf("expand active roles: %w", err)
	}
	for _, role := range expanded {
		if perm.HasRole(role) {
			return true, nil
		}
	}
	return false, nil
}

// roleConstraintCode evaluates the role entity constraint and the assignment
// constraint, returning the first failure code.
func (s *AccessService) roleConstraintCode(ctx context.Context, contextID string, ur domain.UserRole, admin bool, at time.Time) string {
	if role, err := s.roles.Get(ctx, contextID, ur.Name, admin); err == nil {
		if code := role.Constraint.Validate(at); code != "" {
			return code
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("lookup role for constraint check", zap.String("role", ur.Name), zap.Error(err))
	}
	return ur.Constraint.Validate(at)
}

func (s *AccessService) warn(session *domain.Session, role, code, msg string) {
	session.AddWarning(domain.Warning{Code: code, Role: role, Msg: msg})
	if s.metrics != nil {
		s.metrics.ActivationWarning(code)
	}
	s.logger.Debug("role dropped during activation",
		zap.String("session_id", session.ID),
		zap.String("role", role),
		zap.String("code", code))
}

func (s *AccessService) publish(ctx context.Context, event port.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", zap.String("topic", event.Topic()), zap.Error(err))
	}
}

// candidateRoles resolves the activation candidates. An explicit request must
// be a subset of the user's assignments; any miss fails the whole call.
func candidateRoles(assigned []domain.UserRole, requested []string) ([]domain.UserRole, error) {
	if len(requested) == 0 {
		return assigned, nil
	}

	candidates := make([]domain.UserRole, 0, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		found := findRoleAssignment(assigned, name)
		if found == nil {
			return nil, fmt.Errorf("role %s: %w", name, ErrRoleNotAuthorized)
		}
		candidates = append(candidates, *found)
	}
	return candidates, nil
}

func findRoleAssignment(assigned []domain.UserRole, name string) *domain.UserRole {
	for i := range assigned {
		if assigned[i].Name == name {
			return &assigned[i]
		}
	}
	return nil
}
