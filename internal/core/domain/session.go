package domain

import "time"

// SessionState tracks the session lifecycle. A session is created ACTIVE and
// moves to CLOSED exactly once; there is no way back.
type SessionState string

const (
	SessionStateActive SessionState = "ACTIVE"
	SessionStateClosed SessionState = "CLOSED"
)

// Session is the unit of access control decisions: a user's authenticated
// context together with the subset of authorized roles activated into it.
// Sessions are mutated only through the access service and are not safe for
// concurrent mutation; one session represents one logical actor.
type Session struct {
	ID         string
	ContextID  string
	UserID     string
	State      SessionState
	Roles      []UserRole
	AdminRoles []UserRole
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Warnings   []Warning
	Props      map[string]string
}

// IsActive reports whether the session can still be used for access checks.
func (s *Session) IsActive() bool {
	return s != nil && s.State == SessionStateActive
}

// ActiveRoles returns the names of the session's active RBAC roles.
func (s *Session) ActiveRoles() []string {
	return roleNames(s.Roles)
}

// ActiveAdminRoles returns the names of the session's active admin roles.
func (s *Session) ActiveAdminRoles() []string {
	return roleNames(s.AdminRoles)
}

// HasActiveRole reports whether the named RBAC role is active in the session.
func (s *Session) HasActiveRole(name string) bool {
	return findRole(s.Roles, name) != nil
}

// AddWarning records a non-fatal activation outcome on the session.
func (s *Session) AddWarning(w Warning) {
	s.Warnings = append(s.Warnings, w)
}

// Warning records a role that could not be activated during session creation,
// with a stable code identifying which check rejected it.
type Warning struct {
	Code string `json:"code"`
	Role string `json:"role"`
	Msg  string `json:"msg"`
}
