package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

var (
	// ErrContextRequired indicates the tenant scope was missing from a call.
	ErrContextRequired = errors.New("context id is required")
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound is returned when the referenced role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound is returned when the referenced permission does not exist.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrSDSetNotFound is returned when the referenced separation set does not exist.
	ErrSDSetNotFound = errors.New("separation of duty set not found")

	// ErrAuthenticationFailed indicates the supplied password did not match.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUserLocked indicates the account cannot open sessions regardless of
	// credentials or trust.
	ErrUserLocked = errors.New("user account is locked")
	// ErrUserDisabled indicates the account has been disabled.
	ErrUserDisabled = errors.New("user account is disabled")
	// ErrRoleNotAuthorized indicates a requested role is not assigned to the user.
	ErrRoleNotAuthorized = errors.New("role not authorized for user")
	// ErrRoleNotActive indicates a drop was requested for a role that is not
	// active in the session.
	ErrRoleNotActive = errors.New("role not active in session")
	// ErrRoleAlreadyActive indicates an activation was requested for a role
	// already active in the session.
	ErrRoleAlreadyActive = errors.New("role already active in session")
	// ErrSessionClosed indicates an operation on a session that has been closed.
	ErrSessionClosed = errors.New("session is closed")

	// ErrRelationshipExists indicates the hierarchy edge is already present.
	ErrRelationshipExists = errors.New("relationship already exists")
	// ErrRelationshipNotFound indicates the hierarchy edge is not present.
	ErrRelationshipNotFound = errors.New("relationship not found")
	// ErrHierarchyCycle indicates the edge would make the hierarchy cyclic.
	ErrHierarchyCycle = errors.New("relationship would create a cycle")

	// ErrAlreadyGranted indicates the grant is already in place; the call did
	// not change anything.
	ErrAlreadyGranted = errors.New("permission already granted")
	// ErrNotGranted indicates there was no grant to revoke; the call did not
	// change anything.
	ErrNotGranted = errors.New("permission not granted")
	// ErrAlreadyAssigned indicates the user already holds the role.
	ErrAlreadyAssigned = errors.New("role already assigned to user")
	// ErrNotAssigned indicates the user does not hold the role.
	ErrNotAssigned = errors.New("role not assigned to user")

	// ErrCardinalityTooLow indicates a separation set with fewer than two
	// permitted simultaneous roles.
	ErrCardinalityTooLow = errors.New("separation of duty cardinality must be at least 2")
)

// SDViolationError reports that an assignment or activation would breach a
// separation of duty set.
type SDViolationError struct {
	Set         string
	Kind        domain.SDSetKind
	Cardinality int
}

func (e *SDViolationError) Error() string {
	return fmt.Sprintf("separation of duty violation: set %q (%s, cardinality %d)", e.Set, e.Kind, e.Cardinality)
}

// ConstraintError reports that a temporal constraint rejected an activation.
// Code is one of the domain.ActivationFailed* values.
type ConstraintError struct {
	Role string
	Code string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation: role %q rejected (%s)", e.Role, e.Code)
}

// BulkRevokeError aggregates per-permission failures during bulk removal. The
// operation keeps going past failures, so callers see every problem at once.
type BulkRevokeError struct {
	Errs []error
}

func (e *BulkRevokeError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("bulk revoke: %d failure(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *BulkRevokeError) Unwrap() []error {
	return e.Errs
}
