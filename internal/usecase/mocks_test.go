package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

type roleKey struct {
	name  string
	admin bool
}

type mockRoleRepo struct {
	roles map[roleKey]*domain.Role
	rels  []domain.Relationship

	getErr  error
	listErr error
}

func newMockRoleRepo() *mockRoleRepo {
	return &mockRoleRepo{roles: make(map[roleKey]*domain.Role)}
}

func (m *mockRoleRepo) addRole(name string, admin bool) {
	m.roles[roleKey{name, admin}] = &domain.Role{ContextID: testContext, Name: name, Admin: admin}
}

func (m *mockRoleRepo) addEdge(child, parent string) {
	m.rels = append(m.rels, domain.Relationship{Child: child, Parent: parent})
}

func (m *mockRoleRepo) Get(_ context.Context, _ string, name string, admin bool) (*domain.Role, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	role, ok := m.roles[roleKey{name, admin}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return role, nil
}

func (m *mockRoleRepo) Create(_ context.Context, role *domain.Role) error {
	key := roleKey{role.Name, role.Admin}
	if _, ok := m.roles[key]; ok {
		return repository.ErrConflict
	}
	m.roles[key] = role
	return nil
}

func (m *mockRoleRepo) Update(_ context.Context, role *domain.Role) error {
	key := roleKey{role.Name, role.Admin}
	if _, ok := m.roles[key]; !ok {
		return repository.ErrNotFound
	}
	m.roles[key] = role
	return nil
}

func (m *mockRoleRepo) Delete(_ context.Context, _ string, name string, admin bool) error {
	key := roleKey{name, admin}
	if _, ok := m.roles[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.roles, key)
	return nil
}

func (m *mockRoleRepo) Search(_ context.Context, _ string, pattern string, admin bool) ([]domain.Role, error) {
	var out []domain.Role
	for key, role := range m.roles {
		if key.admin == admin && strings.HasPrefix(key.name, pattern) {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *mockRoleRepo) ListRelationships(_ context.Context, _ string, _ bool) ([]domain.Relationship, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Relationship(nil), m.rels...), nil
}

func (m *mockRoleRepo) AddRelationship(_ context.Context, _ string, rel domain.Relationship, _ bool) error {
	m.rels = append(m.rels, rel)
	return nil
}

func (m *mockRoleRepo) RemoveRelationship(_ context.Context, _ string, rel domain.Relationship, _ bool) error {
	for i, existing := range m.rels {
		if existing == rel {
			m.rels = append(m.rels[:i], m.rels[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type mockUserRepo struct {
	users map[string]*domain.User

	getErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*domain.User)}
}

func (m *mockUserRepo) Get(_ context.Context, _ string, userID string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) Create(_ context.Context, user *domain.User) error {
	if _, ok := m.users[user.ID]; ok {
		return repository.ErrConflict
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, _ string, userID string) error {
	if _, ok := m.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, userID)
	return nil
}

func (m *mockUserRepo) Search(_ context.Context, _ string, pattern string) ([]domain.User, error) {
	var out []domain.User
	for id, user := range m.users {
		if strings.HasPrefix(id, pattern) {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (m *mockUserRepo) AssignRole(_ context.Context, _ string, ur domain.UserRole, admin bool) error {
	user, ok := m.users[ur.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	if admin {
		user.AdminRoles = append(user.AdminRoles, ur)
	} else {
		user.Roles = append(user.Roles, ur)
	}
	return nil
}

func (m *mockUserRepo) DeassignRole(_ context.Context, _ string, userID, role string, admin bool) error {
	user, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	assigned := &user.Roles
	if admin {
		assigned = &user.AdminRoles
	}
	for i, ur := range *assigned {
		if ur.Name == role {
			*assigned = append((*assigned)[:i], (*assigned)[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockUserRepo) AssignedUsers(_ context.Context, _ string, role string, admin bool) ([]string, error) {
	var out []string
	for id, user := range m.users {
		assigned := user.Roles
		if admin {
			assigned = user.AdminRoles
		}
		for _, ur := range assigned {
			if ur.Name == role {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

type permKey struct {
	obj   string
	op    string
	admin bool
}

type mockPermRepo struct {
	perms map[permKey]*domain.Permission
	objs  map[string]*domain.PermObj

	revokeErr map[permKey]error
	findErr   error
}

func newMockPermRepo() *mockPermRepo {
	return &mockPermRepo{
		perms:     make(map[permKey]*domain.Permission),
		objs:      make(map[string]*domain.PermObj),
		revokeErr: make(map[permKey]error),
	}
}

func (m *mockPermRepo) addPerm(obj, op string, roles []string, users []string) {
	m.perms[permKey{obj, op, false}] = &domain.Permission{
		ContextID: testContext, ObjName: obj, OpName: op, Roles: roles, Users: users,
	}
}

func (m *mockPermRepo) Get(_ context.Context, _ string, objName, opName string, admin bool) (*domain.Permission, error) {
	perm, ok := m.perms[permKey{objName, opName, admin}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return perm, nil
}

func (m *mockPermRepo) Create(_ context.Context, perm *domain.Permission) error {
	key := permKey{perm.ObjName, perm.OpName, perm.Admin}
	if _, ok := m.perms[key]; ok {
		return repository.ErrConflict
	}
	m.perms[key] = perm
	return nil
}

func (m *mockPermRepo) Update(_ context.Context, perm *domain.Permission) error {
	key := permKey{perm.ObjName, perm.OpName, perm.Admin}
	if _, ok := m.perms[key]; !ok {
		return repository.ErrNotFound
	}
	m.perms[key] = perm
	return nil
}

func (m *mockPermRepo) Delete(_ context.Context, _ string, objName, opName string, admin bool) error {
	key := permKey{objName, opName, admin}
	if _, ok := m.perms[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.perms, key)
	return nil
}

func (m *mockPermRepo) Search(_ context.Context, _ string, objPattern, _ string, admin bool) ([]domain.Permission, error) {
	var out []domain.Permission
	for key, perm := range m.perms {
		if key.admin == admin && strings.HasPrefix(key.obj, objPattern) {
			out = append(out, *perm)
		}
	}
	return out, nil
}

func (m *mockPermRepo) GetObject(_ context.Context, _ string, objName string) (*domain.PermObj, error) {
	obj, ok := m.objs[objName]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return obj, nil
}

func (m *mockPermRepo) CreateObject(_ context.Context, obj *domain.PermObj) error {
	if _, ok := m.objs[obj.ObjName]; ok {
		return repository.ErrConflict
	}
	m.objs[obj.ObjName] = obj
	return nil
}

func (m *mockPermRepo) DeleteObject(_ context.Context, _ string, objName string) error {
	if _, ok := m.objs[objName]; !ok {
		return repository.ErrNotFound
	}
	delete(m.objs, objName)
	return nil
}

func (m *mockPermRepo) FindByRoles(_ context.Context, _ string, roles []string, admin bool) ([]domain.Permission, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []domain.Permission
	for key, perm := range m.perms {
		if key.admin != admin {
			continue
		}
		for _, role := range roles {
			if perm.HasRole(role) {
				out = append(out, *perm)
				break
			}
		}
	}
	return out, nil
}

func (m *mockPermRepo) FindByUser(_ context.Context, _ string, userID string, admin bool) ([]domain.Permission, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []domain.Permission
	for key, perm := range m.perms {
		if key.admin == admin && perm.HasUser(userID) {
			out = append(out, *perm)
		}
	}
	return out, nil
}

func (m *mockPermRepo) FindByRole(_ context.Context, _ string, role string, admin bool) ([]domain.Permission, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []domain.Permission
	for key, perm := range m.perms {
		if key.admin == admin && perm.HasRole(role) {
			out = append(out, *perm)
		}
	}
	return out, nil
}

func (m *mockPermRepo) GrantRole(_ context.Context, _ string, objName, opName, role string, admin bool) error {
	perm, ok := m.perms[permKey{objName, opName, admin}]
	if !ok {
		return repository.ErrNotFound
	}
	perm.Roles = append(perm.Roles, role)
	return nil
}

func (m *mockPermRepo) RevokeRole(_ context.Context, _ string, objName, opName, role string, admin bool) error {
	key := permKey{objName, opName, admin}
	if err := m.revokeErr[key]; err != nil {
		return err
	}
	perm, ok := m.perms[key]
	if !ok {
		return repository.ErrNotFound
	}
	for i, name := range perm.Roles {
		if name == role {
			perm.Roles = append(perm.Roles[:i], perm.Roles[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockPermRepo) GrantUser(_ context.Context, _ string, objName, opName, userID string, admin bool) error {
	perm, ok := m.perms[permKey{objName, opName, admin}]
	if !ok {
		return repository.ErrNotFound
	}
	perm.Users = append(perm.Users, userID)
	return nil
}

func (m *mockPermRepo) RevokeUser(_ context.Context, _ string, objName, opName, userID string, admin bool) error {
	key := permKey{objName, opName, admin}
	if err := m.revokeErr[key]; err != nil {
		return err
	}
	perm, ok := m.perms[key]
	if !ok {
		return repository.ErrNotFound
	}
	for i, id := range perm.Users {
		if id == userID {
			perm.Users = append(perm.Users[:i], perm.Users[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type sdKey struct {
	name string
	kind domain.SDSetKind
}

type mockSDSetRepo struct {
	sets map[sdKey]*domain.SDSet
}

func newMockSDSetRepo() *mockSDSetRepo {
	return &mockSDSetRepo{sets: make(map[sdKey]*domain.SDSet)}
}

func (m *mockSDSetRepo) addSet(name string, kind domain.SDSetKind, cardinality int, members ...string) {
	m.sets[sdKey{name, kind}] = &domain.SDSet{
		ContextID: testContext, Name: name, Kind: kind, Members: members, Cardinality: cardinality,
	}
}

func (m *mockSDSetRepo) Get(_ context.Context, _ string, name string, kind domain.SDSetKind) (*domain.SDSet, error) {
	set, ok := m.sets[sdKey{name, kind}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return set, nil
}

func (m *mockSDSetRepo) Create(_ context.Context, set *domain.SDSet) error {
	key := sdKey{set.Name, set.Kind}
	if _, ok := m.sets[key]; ok {
		return repository.ErrConflict
	}
	m.sets[key] = set
	return nil
}

func (m *mockSDSetRepo) Update(_ context.Context, set *domain.SDSet) error {
	key := sdKey{set.Name, set.Kind}
	if _, ok := m.sets[key]; !ok {
		return repository.ErrNotFound
	}
	m.sets[key] = set
	return nil
}

func (m *mockSDSetRepo) Delete(_ context.Context, _ string, name string, kind domain.SDSetKind) error {
	key := sdKey{name, kind}
	if _, ok := m.sets[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.sets, key)
	return nil
}

func (m *mockSDSetRepo) ListByKind(_ context.Context, _ string, kind domain.SDSetKind) ([]domain.SDSet, error) {
	var out []domain.SDSet
	for key, set := range m.sets {
		if key.kind == kind {
			out = append(out, *set)
		}
	}
	return out, nil
}

func (m *mockSDSetRepo) ListByMember(_ context.Context, _ string, kind domain.SDSetKind, roles []string) ([]domain.SDSet, error) {
	var out []domain.SDSet
	for key, set := range m.sets {
		if key.kind != kind {
			continue
		}
		for _, role := range roles {
			if set.HasMember(role) {
				out = append(out, *set)
				break
			}
		}
	}
	return out, nil
}

type mockSessionCache struct {
	sessions map[string]*domain.Session
	putErr   error
}

func newMockSessionCache() *mockSessionCache {
	return &mockSessionCache{sessions: make(map[string]*domain.Session)}
}

func (m *mockSessionCache) Put(_ context.Context, session *domain.Session, _ time.Duration) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionCache) Get(_ context.Context, _ string, sessionID string) (*domain.Session, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return session, nil
}

func (m *mockSessionCache) Delete(_ context.Context, _ string, sessionID string) error {
	delete(m.sessions, sessionID)
	return nil
}

type mockPublisher struct {
	events []port.Event
}

func (m *mockPublisher) Publish(_ context.Context, event port.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// mockVerifier accepts a password when the stored hash is "pw:" + password.
type mockVerifier struct{}

func (mockVerifier) Verify(password, encodedHash string) (bool, error) {
	return encodedHash == "pw:"+password, nil
}

// mockHasher mirrors mockVerifier's scheme.
type mockHasher struct{}

func (mockHasher) Hash(password string) (string, error) {
	return "pw:" + password, nil
}

var (
	_ port.UserRepository       = (*mockUserRepo)(nil)
	_ port.RoleRepository       = (*mockRoleRepo)(nil)
	_ port.PermissionRepository = (*mockPermRepo)(nil)
	_ port.SDSetRepository      = (*mockSDSetRepo)(nil)
	_ port.SessionCache         = (*mockSessionCache)(nil)
	_ port.EventPublisher       = (*mockPublisher)(nil)
)

const testContext = "tenant-1"
