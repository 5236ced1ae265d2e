package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

type accessFixture struct {
	svc    *AccessService
	users  *mockUserRepo
	roles  *mockRoleRepo
	perms  *mockPermRepo
	sdsets *mockSDSetRepo
	cache  *mockSessionCache
	events *mockPublisher
}

// Monday 2024-06-10 10:00.
var sessionTime = time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

func newAccessFixture() *accessFixture {
	users := newMockUserRepo()
	roles := newMockRoleRepo()
	perms := newMockPermRepo()
	sdsets := newMockSDSetRepo()
	cache := newMockSessionCache()
	events := &mockPublisher{}

	for _, name := range []string{"r1", "r2", "r3", "cashier", "auditor"} {
		roles.addRole(name, false)
	}
	// r3 descends from r2, r2 from r1: activating r3 carries r1's grants.
	roles.addEdge("r3", "r2")
	roles.addEdge("r2", "r1")

	users.users["alice"] = &domain.User{
		ContextID:    testContext,
		ID:           "alice",
		PasswordHash: "pw:secret",
		Status:       domain.UserStatusActive,
		Roles: []domain.UserRole{
			{UserID: "alice", Name: "r3"},
			{UserID: "alice", Name: "cashier"},
			{UserID: "alice", Name: "auditor"},
		},
	}

	hierarchy := NewHierarchyService(roles, nil)
	separation := NewSeparationChecker(sdsets, hierarchy, nil)
	svc := NewAccessService(users, roles, perms, hierarchy, separation,
		mockVerifier{}, cache, events, nil, nil, 0)
	svc.WithClock(func() time.Time { return sessionTime })

	return &accessFixture{
		svc: svc, users: users, roles: roles, perms: perms,
		sdsets: sdsets, cache: cache, events: events,
	}
}

func (f *accessFixture) createSession(t *testing.T, input CreateSessionInput) *domain.Session {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), input, sessionTime)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

func TestCreateSessionActivatesAssignedRoles(t *testing.T) {
	f := newAccessFixture()

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
	})

	if session.State != domain.SessionStateActive {
		t.Errorf("state = %s, want ACTIVE", session.State)
	}
	if !equalSets(session.ActiveRoles(), []string{"r3", "cashier", "auditor"}) {
		t.Errorf("active roles = %v", session.ActiveRoles())
	}
	if len(session.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", session.Warnings)
	}
	if !session.ExpiresAt.After(sessionTime) {
		t.Errorf("expiry %v not after creation %v", session.ExpiresAt, sessionTime)
	}
	if len(f.events.events) != 1 {
		t.Errorf("published events = %d, want 1", len(f.events.events))
	}
	if _, ok := f.cache.sessions[session.ID]; !ok {
		t.Error("session not cached")
	}
}

func TestCreateSessionWrongPassword(t *testing.T) {
	f := newAccessFixture()

	_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "wrong",
	}, sessionTime)
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestCreateSessionTrustedSkipsPassword(t *testing.T) {
	f := newAccessFixture()

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Trusted: true,
	})
	if !session.IsActive() {
		t.Error("trusted session should be active")
	}
}

func TestCreateSessionLockedUserFailsEvenTrusted(t *testing.T) {
	f := newAccessFixture()
	f.users.users["alice"].Status = domain.UserStatusLocked

	_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		ContextID: testContext, UserID: "alice", Trusted: true,
	}, sessionTime)
	if !errors.Is(err, ErrUserLocked) {
		t.Fatalf("err = %v, want ErrUserLocked", err)
	}
}

func TestCreateSessionUnauthorizedRequestedRoleIsHardFailure(t *testing.T) {
	f := newAccessFixture()

	_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"r3", "root"},
	}, sessionTime)
	if !errors.Is(err, ErrRoleNotAuthorized) {
		t.Fatalf("err = %v, want ErrRoleNotAuthorized", err)
	}
}

func TestCreateSessionDropsDSDConflictWithWarning(t *testing.T) {
	f := newAccessFixture()
	f.sdsets.addSet("cash-audit", domain.SDDynamic, 2, "cashier", "auditor")

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier", "auditor"},
	})

	// First requested role wins; the conflicting one is dropped, not fatal.
	if !equalSets(session.ActiveRoles(), []string{"cashier"}) {
		t.Errorf("active roles = %v, want [cashier]", session.ActiveRoles())
	}
	if len(session.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", session.Warnings)
	}
	w := session.Warnings[0]
	if w.Code != domain.ActivationFailedDSD || w.Role != "auditor" {
		t.Errorf("warning = %+v, want DSD drop of auditor", w)
	}
}

func TestCreateSessionDropsConstrainedRoleWithWarning(t *testing.T) {
	f := newAccessFixture()
	// cashier only activates on weekends; sessionTime is a Monday.
	f.roles.roles[roleKey{"cashier", false}].Constraint = &domain.Constraint{DayMask: "17"}

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier", "r3"},
	})

	if !equalSets(session.ActiveRoles(), []string{"r3"}) {
		t.Errorf("active roles = %v, want [r3]", session.ActiveRoles())
	}
	if len(session.Warnings) != 1 || session.Warnings[0].Code != domain.ActivationFailedDay {
		t.Errorf("warnings = %v, want one ACTV_FAILED_DAY", session.Warnings)
	}
}

func TestAddActiveRoleHardFailsOnDSD(t *testing.T) {
	f := newAccessFixture()
	f.sdsets.addSet("cash-audit", domain.SDDynamic, 2, "cashier", "auditor")

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier"},
	})

	err := f.svc.AddActiveRole(context.Background(), session, "auditor", sessionTime)
	var sdErr *SDViolationError
	if !errors.As(err, &sdErr) {
		t.Fatalf("AddActiveRole = %v, want SDViolationError", err)
	}
	if !equalSets(session.ActiveRoles(), []string{"cashier"}) {
		t.Errorf("session changed on failed activation: %v", session.ActiveRoles())
	}
}

func TestAddActiveRoleHardFailsOnConstraint(t *testing.T) {
	f := newAccessFixture()
	f.roles.roles[roleKey{"auditor", false}].Constraint = &domain.Constraint{DayMask: "17"}

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier"},
	})

	err := f.svc.AddActiveRole(context.Background(), session, "auditor", sessionTime)
	var cErr *ConstraintError
	if !errors.As(err, &cErr) {
		t.Fatalf("AddActiveRole = %v, want ConstraintError", err)
	}
	if cErr.Code != domain.ActivationFailedDay {
		t.Errorf("code = %s, want ACTV_FAILED_DAY", cErr.Code)
	}
}

func TestAddActiveRole(t *testing.T) {
	f := newAccessFixture()

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier"},
	})

	if err := f.svc.AddActiveRole(context.Background(), session, "auditor", sessionTime); err != nil {
		t.Fatalf("AddActiveRole: %v", err)
	}
	if !session.HasActiveRole("auditor") {
		t.Error("auditor not activated")
	}

	err := f.svc.AddActiveRole(context.Background(), session, "auditor", sessionTime)
	if !errors.Is(err, ErrRoleAlreadyActive) {
		t.Fatalf("second activation = %v, want ErrRoleAlreadyActive", err)
	}

	err = f.svc.AddActiveRole(context.Background(), session, "root", sessionTime)
	if !errors.Is(err, ErrRoleNotAuthorized) {
		t.Fatalf("unassigned role = %v, want ErrRoleNotAuthorized", err)
	}
}

func TestDropActiveRole(t *testing.T) {
	f := newAccessFixture()

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier"},
	})

	if err := f.svc.DropActiveRole(context.Background(), session, "cashier"); err != nil {
		t.Fatalf("DropActiveRole: %v", err)
	}
	if session.HasActiveRole("cashier") {
		t.Error("cashier still active")
	}

	err := f.svc.DropActiveRole(context.Background(), session, "cashier")
	if !errors.Is(err, ErrRoleNotActive) {
		t.Fatalf("second drop = %v, want ErrRoleNotActive", err)
	}
}

func TestDeleteSessionClosesOnce(t *testing.T) {
	f := newAccessFixture()

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
	})

	if err := f.svc.DeleteSession(context.Background(), session); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if session.State != domain.SessionStateClosed {
		t.Errorf("state = %s, want CLOSED", session.State)
	}

	err := f.svc.DeleteSession(context.Background(), session)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second delete = %v, want ErrSessionClosed", err)
	}

	if err := f.svc.AddActiveRole(context.Background(), session, "cashier", sessionTime); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("activation on closed session = %v, want ErrSessionClosed", err)
	}
	if _, err := f.svc.CheckAccess(context.Background(), session, "ledger", "read"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("check on closed session = %v, want ErrSessionClosed", err)
	}
}

func TestCheckAccessInheritsThroughHierarchy(t *testing.T) {
	f := newAccessFixture()
	// Grant sits on the top role; alice activates the bottom one.
	f.perms.addPerm("ledger", "read", []string{"r1"}, nil)

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"r3"},
	})

	granted, err := f.svc.CheckAccess(context.Background(), session, "ledger", "read")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !granted {
		t.Error("r3 should inherit r1's grant")
	}
}

func TestCheckAccessDirectUserGrant(t *testing.T) {
	f := newAccessFixture()
	f.perms.addPerm("ledger", "export", nil, []string{"alice"})

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"cashier"},
	})

	granted, err := f.svc.CheckAccess(context.Background(), session, "ledger", "export")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !granted {
		t.Error("direct user grant should pass")
	}
}

func TestCheckAccessDenied(t *testing.T) {
	f := newAccessFixture()
	f.perms.addPerm("ledger", "delete", []string{"admin-only"}, nil)

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
	})

	granted, err := f.svc.CheckAccess(context.Background(), session, "ledger", "delete")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if granted {
		t.Error("access should be denied")
	}
}

func TestCheckAccessValidation(t *testing.T) {
	f := newAccessFixture()

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
	})

	if _, err := f.svc.CheckAccess(context.Background(), session, "", "read"); err == nil {
		t.Error("empty object name should fail")
	}
	if _, err := f.svc.CheckAccess(context.Background(), session, "ledger", " "); err == nil {
		t.Error("blank operation name should fail")
	}
	if _, err := f.svc.CheckAccess(context.Background(), session, "ghost", "read"); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("unknown permission = %v, want ErrPermissionNotFound", err)
	}
}

func TestSessionPermissionsUnion(t *testing.T) {
	f := newAccessFixture()
	f.perms.addPerm("ledger", "read", []string{"r1"}, nil)
	f.perms.addPerm("ledger", "export", nil, []string{"alice"})
	// Granted both ways; must appear once.
	f.perms.addPerm("ledger", "audit", []string{"r2"}, []string{"alice"})

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
		Roles: []string{"r3"},
	})

	perms, err := f.svc.SessionPermissions(context.Background(), session)
	if err != nil {
		t.Fatalf("SessionPermissions: %v", err)
	}

	idents := make([]string, 0, len(perms))
	for _, p := range perms {
		idents = append(idents, p.Ident())
	}
	if !equalSets(idents, []string{"ledger:read", "ledger:export", "ledger:audit"}) {
		t.Errorf("permissions = %v", idents)
	}
}

func TestLoadSessionExpiry(t *testing.T) {
	f := newAccessFixture()
	f.svc.WithClock(func() time.Time { return sessionTime })

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
	})

	loaded, err := f.svc.LoadSession(context.Background(), testContext, session.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.ID != session.ID {
		t.Errorf("loaded %s, want %s", loaded.ID, session.ID)
	}

	f.svc.WithClock(func() time.Time { return sessionTime.Add(24 * time.Hour) })
	if _, err := f.svc.LoadSession(context.Background(), testContext, session.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expired session = %v, want ErrSessionClosed", err)
	}
}

func TestCheckAccessExpiredSession(t *testing.T) {
	f := newAccessFixture()
	f.perms.addPerm("ledger", "read", []string{"r3"}, nil)

	session := f.createSession(t, CreateSessionInput{
		ContextID: testContext, UserID: "alice", Password: "secret",
	})

	granted, err := f.svc.CheckAccess(context.Background(), session, "ledger", "read")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !granted {
		t.Fatal("access should be granted before expiry")
	}

	// The caller still holds the snapshot after its lifetime has run out.
	f.svc.WithClock(func() time.Time { return session.ExpiresAt.Add(time.Minute) })

	if _, err := f.svc.CheckAccess(context.Background(), session, "ledger", "read"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expired CheckAccess = %v, want ErrSessionClosed", err)
	}
	if _, err := f.svc.SessionPermissions(context.Background(), session); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expired SessionPermissions = %v, want ErrSessionClosed", err)
	}
}
