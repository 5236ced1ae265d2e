package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/repository"
)

type adminFixture struct {
	svc       *AdminService
	access    *AccessService
	hierarchy *HierarchyService
	users     *mockUserRepo
	roles     *mockRoleRepo
	perms     *mockPermRepo
	sdsets    *mockSDSetRepo
	events    *mockPublisher
}

func newAdminFixture() *adminFixture {
	users := newMockUserRepo()
	roles := newMockRoleRepo()
	perms := newMockPermRepo()
	sdsets := newMockSDSetRepo()
	events := &mockPublisher{}

	for _, name := range []string{"cashier", "auditor", "clerk"} {
		roles.addRole(name, false)
	}
	users.users["bob"] = &domain.User{
		ContextID:    testContext,
		ID:           "bob",
		PasswordHash: "pw:secret",
		Status:       domain.UserStatusActive,
		Roles:        []domain.UserRole{{UserID: "bob", Name: "cashier"}},
	}
	perms.objs["ledger"] = &domain.PermObj{ContextID: testContext, ObjName: "ledger", OrgUnit: "finance"}
	perms.addPerm("ledger", "read", nil, nil)

	hierarchy := NewHierarchyService(roles, nil)
	separation := NewSeparationChecker(sdsets, hierarchy, nil)
	svc := NewAdminService(users, roles, perms, sdsets, hierarchy, separation, mockHasher{}, events, nil)
	access := NewAccessService(users, roles, perms, hierarchy, separation,
		mockVerifier{}, nil, nil, nil, nil, 0)
	access.WithClock(func() time.Time { return sessionTime })

	return &adminFixture{
		svc: svc, access: access, hierarchy: hierarchy, users: users,
		roles: roles, perms: perms, sdsets: sdsets, events: events,
	}
}

func TestGrantRevokeRoundTrip(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	if err := f.svc.GrantToRole(ctx, testContext, "ledger", "read", "cashier", false); err != nil {
		t.Fatalf("GrantToRole: %v", err)
	}

	session, err := f.access.CreateSession(ctx, CreateSessionInput{
		ContextID: testContext, UserID: "bob", Password: "secret",
	}, sessionTime)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	granted, err := f.access.CheckAccess(ctx, session, "ledger", "read")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !granted {
		t.Fatal("access should be granted after grant")
	}

	if err := f.svc.RevokeFromRole(ctx, testContext, "ledger", "read", "cashier", false); err != nil {
		t.Fatalf("RevokeFromRole: %v", err)
	}

	granted, err = f.access.CheckAccess(ctx, session, "ledger", "read")
	if err != nil {
		t.Fatalf("CheckAccess after revoke: %v", err)
	}
	if granted {
		t.Fatal("access should be denied after revoke")
	}
}

func TestGrantIsNotIdempotent(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	if err := f.svc.GrantToRole(ctx, testContext, "ledger", "read", "cashier", false); err != nil {
		t.Fatalf("GrantToRole: %v", err)
	}
	err := f.svc.GrantToRole(ctx, testContext, "ledger", "read", "cashier", false)
	if !errors.Is(err, ErrAlreadyGranted) {
		t.Fatalf("duplicate grant = %v, want ErrAlreadyGranted", err)
	}

	if err := f.svc.RevokeFromRole(ctx, testContext, "ledger", "read", "cashier", false); err != nil {
		t.Fatalf("RevokeFromRole: %v", err)
	}
	err = f.svc.RevokeFromRole(ctx, testContext, "ledger", "read", "cashier", false)
	if !errors.Is(err, ErrNotGranted) {
		t.Fatalf("revoke of absent grant = %v, want ErrNotGranted", err)
	}
}

func TestGrantToUnknownRole(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.GrantToRole(context.Background(), testContext, "ledger", "read", "ghost", false)
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestGrantRevokeUser(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	if err := f.svc.GrantToUser(ctx, testContext, "ledger", "read", "bob", false); err != nil {
		t.Fatalf("GrantToUser: %v", err)
	}
	if err := f.svc.GrantToUser(ctx, testContext, "ledger", "read", "bob", false); !errors.Is(err, ErrAlreadyGranted) {
		t.Fatalf("duplicate user grant = %v, want ErrAlreadyGranted", err)
	}
	if err := f.svc.RevokeFromUser(ctx, testContext, "ledger", "read", "bob", false); err != nil {
		t.Fatalf("RevokeFromUser: %v", err)
	}
	if err := f.svc.RevokeFromUser(ctx, testContext, "ledger", "read", "bob", false); !errors.Is(err, ErrNotGranted) {
		t.Fatalf("revoke of absent user grant = %v, want ErrNotGranted", err)
	}
}

func TestAssignUserEnforcesSSD(t *testing.T) {
	f := newAdminFixture()
	f.sdsets.addSet("cash-audit", domain.SDStatic, 2, "cashier", "auditor")
	ctx := context.Background()

	err := f.svc.AssignUser(ctx, testContext, domain.UserRole{UserID: "bob", Name: "auditor"}, false)
	var sdErr *SDViolationError
	if !errors.As(err, &sdErr) {
		t.Fatalf("AssignUser = %v, want SDViolationError", err)
	}

	// A role outside the set is fine.
	if err := f.svc.AssignUser(ctx, testContext, domain.UserRole{UserID: "bob", Name: "clerk"}, false); err != nil {
		t.Fatalf("AssignUser clerk: %v", err)
	}
	if f.users.users["bob"].FindRole("clerk") == nil {
		t.Error("clerk not assigned")
	}
}

func TestAssignUserDuplicate(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.AssignUser(context.Background(), testContext, domain.UserRole{UserID: "bob", Name: "cashier"}, false)
	if !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("err = %v, want ErrAlreadyAssigned", err)
	}
}

func TestDeassignUser(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	if err := f.svc.DeassignUser(ctx, testContext, "bob", "cashier", false); err != nil {
		t.Fatalf("DeassignUser: %v", err)
	}
	if err := f.svc.DeassignUser(ctx, testContext, "bob", "cashier", false); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("second deassign = %v, want ErrNotAssigned", err)
	}
}

func TestAddSDSetValidation(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	err := f.svc.AddSDSet(ctx, &domain.SDSet{
		ContextID: testContext, Name: "solo", Kind: domain.SDStatic,
		Members: []string{"cashier"}, Cardinality: 1,
	})
	if !errors.Is(err, ErrCardinalityTooLow) {
		t.Fatalf("cardinality 1 = %v, want ErrCardinalityTooLow", err)
	}

	err = f.svc.AddSDSet(ctx, &domain.SDSet{
		ContextID: testContext, Name: "ghosts", Kind: domain.SDStatic,
		Members: []string{"ghost"}, Cardinality: 2,
	})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("unknown member = %v, want ErrRoleNotFound", err)
	}

	err = f.svc.AddSDSet(ctx, &domain.SDSet{
		ContextID: testContext, Name: "cash-audit", Kind: domain.SDStatic,
		Members: []string{"cashier", "auditor"}, Cardinality: 2,
	})
	if err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}
}

func TestRemoveUserRevokesDirectGrants(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	f.perms.addPerm("ledger", "export", nil, []string{"bob"})
	f.perms.addPerm("ledger", "audit", nil, []string{"bob"})

	if err := f.svc.RemoveUser(ctx, testContext, "bob"); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}

	if _, ok := f.users.users["bob"]; ok {
		t.Error("user still present")
	}
	for _, op := range []string{"export", "audit"} {
		perm := f.perms.perms[permKey{"ledger", op, false}]
		if perm.HasUser("bob") {
			t.Errorf("grant %s still references bob", op)
		}
	}
}

func TestRemoveUserAggregatesFailures(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	f.perms.addPerm("ledger", "export", nil, []string{"bob"})
	f.perms.addPerm("ledger", "audit", nil, []string{"bob"})
	f.perms.revokeErr[permKey{"ledger", "export", false}] = errors.New("backend down")

	err := f.svc.RemoveUser(ctx, testContext, "bob")
	var bulkErr *BulkRevokeError
	if !errors.As(err, &bulkErr) {
		t.Fatalf("RemoveUser = %v, want BulkRevokeError", err)
	}
	if len(bulkErr.Errs) != 1 {
		t.Errorf("failures = %d, want 1", len(bulkErr.Errs))
	}

	// The sweep kept going: the healthy grant was revoked and the user is gone.
	if f.perms.perms[permKey{"ledger", "audit", false}].HasUser("bob") {
		t.Error("healthy grant not revoked")
	}
	if _, ok := f.users.users["bob"]; ok {
		t.Error("user not deleted despite aggregation")
	}
}

func TestDeleteRoleRevokesReferencingGrants(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	f.perms.addPerm("ledger", "export", []string{"cashier"}, nil)

	if err := f.svc.DeleteRole(ctx, testContext, "cashier", false); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, ok := f.roles.roles[roleKey{"cashier", false}]; ok {
		t.Error("role still present")
	}
	if f.perms.perms[permKey{"ledger", "export", false}].HasRole("cashier") {
		t.Error("grant still references deleted role")
	}
	if f.users.users["bob"].FindRole("cashier") != nil {
		t.Error("bob still holds the deleted role")
	}
}

func TestDeleteRoleUnknown(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.DeleteRole(context.Background(), testContext, "ghost", false)
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestAddPermissionRequiresObject(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.AddPermission(context.Background(), &domain.Permission{
		ContextID: testContext, ObjName: "ghost", OpName: "read",
	})
	if !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("err = %v, want ErrPermissionNotFound", err)
	}
}

func TestAddRoleConflict(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.AddRole(context.Background(), &domain.Role{ContextID: testContext, Name: "cashier"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err = %v, want repository.ErrConflict", err)
	}
}

func TestAddUserHashesPassword(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	user := &domain.User{ContextID: testContext, ID: "carol"}
	if err := f.svc.AddUser(ctx, user, "hunter2"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	stored, ok := f.users.users["carol"]
	if !ok {
		t.Fatal("user was not persisted")
	}
	if stored.PasswordHash != "pw:hunter2" {
		t.Fatalf("PasswordHash = %q, want hashed credential", stored.PasswordHash)
	}
	if stored.Status != domain.UserStatusActive {
		t.Fatalf("Status = %q, want active default", stored.Status)
	}
}

func TestUpdateUserKeepsHashWithoutPassword(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	update := &domain.User{ContextID: testContext, ID: "bob", Status: domain.UserStatusLocked}
	if err := f.svc.UpdateUser(ctx, update, ""); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	stored := f.users.users["bob"]
	if stored.Status != domain.UserStatusLocked {
		t.Fatalf("Status = %q, want locked", stored.Status)
	}
	if stored.PasswordHash != "pw:secret" {
		t.Fatalf("PasswordHash = %q, want original hash retained", stored.PasswordHash)
	}
}

func TestUpdateUserUnknown(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.UpdateUser(context.Background(), &domain.User{ContextID: testContext, ID: "ghost"}, "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestAddRoleLinksParents(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	err := f.svc.AddRole(ctx, &domain.Role{
		ContextID: testContext, Name: "teller-supervisor", Parents: []string{"cashier"},
	})
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	ascendants, err := f.hierarchy.Ascendants(ctx, testContext, "teller-supervisor", false)
	if err != nil {
		t.Fatalf("Ascendants: %v", err)
	}
	if len(ascendants) != 1 || ascendants[0] != "cashier" {
		t.Fatalf("ascendants = %v, want [cashier]", ascendants)
	}

	role, err := f.svc.GetRole(ctx, testContext, "teller-supervisor", false)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if len(role.Parents) != 1 || role.Parents[0] != "cashier" {
		t.Fatalf("Parents = %v, want [cashier]", role.Parents)
	}
}

func TestAddRoleUnknownParent(t *testing.T) {
	f := newAdminFixture()

	err := f.svc.AddRole(context.Background(), &domain.Role{
		ContextID: testContext, Name: "orphan", Parents: []string{"ghost"},
	})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestUpdateRoleReconcilesParents(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	err := f.svc.AddRole(ctx, &domain.Role{
		ContextID: testContext, Name: "teller-supervisor", Parents: []string{"cashier"},
	})
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	err = f.svc.UpdateRole(ctx, &domain.Role{
		ContextID: testContext, Name: "teller-supervisor", Parents: []string{"auditor"},
	})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}

	role, err := f.svc.GetRole(ctx, testContext, "teller-supervisor", false)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if len(role.Parents) != 1 || role.Parents[0] != "auditor" {
		t.Fatalf("Parents after update = %v, want [auditor]", role.Parents)
	}

	ascendants, err := f.hierarchy.Ascendants(ctx, testContext, "teller-supervisor", false)
	if err != nil {
		t.Fatalf("Ascendants: %v", err)
	}
	if len(ascendants) != 1 || ascendants[0] != "auditor" {
		t.Fatalf("ascendants after update = %v, want [auditor]", ascendants)
	}
}
