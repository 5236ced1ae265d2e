package domain

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusLocked   UserStatus = "locked"
	UserStatusDisabled UserStatus = "disabled"
)

// User mirrors the persisted identity record. The engine treats users as
// read-only input; only session-scoped copies are ever mutated.
type User struct {
	ContextID    string
	ID           string
	PasswordHash string
	Status       UserStatus
	Roles        []UserRole
	AdminRoles   []UserRole
	Props        map[string]string
	Constraint   *Constraint
}

// AuthorizedRoles returns the names of the user's assigned RBAC roles.
func (u User) AuthorizedRoles() []string {
	return roleNames(u.Roles)
}

// AuthorizedAdminRoles returns the names of the user's assigned admin roles.
func (u User) AuthorizedAdminRoles() []string {
	return roleNames(u.AdminRoles)
}

// FindRole returns the RBAC role assignment with the given name, or nil.
func (u User) FindRole(name string) *UserRole {
	return findRole(u.Roles, name)
}

// FindAdminRole returns the admin role assignment with the given name, or nil.
func (u User) FindAdminRole(name string) *UserRole {
	return findRole(u.AdminRoles, name)
}

// UserRole assigns a role to a user, optionally bounded by a temporal
// constraint on the assignment itself.
type UserRole struct {
	UserID     string
	Name       string
	Constraint *Constraint
}

func roleNames(assignments []UserRole) []string {
	names := make([]string, 0, len(assignments))
	for _, ur := range assignments {
		names = append(names, ur.Name)
	}
	return names
}

func findRole(assignments []UserRole, name string) *UserRole {
	for i := range assignments {
		if assignments[i].Name == name {
			return &assignments[i]
		}
	}
	return nil
}
