package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/core/domain"
)

// ErrorResponse represents a generic error payload with request ID for debugging.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response with the request ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	requestID, _ := c.Get("request_id")
	requestIDStr, _ := requestID.(string)

	return ErrorResponse{
		Error:     errorMsg,
		RequestID: requestIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ConstraintPayload carries a temporal constraint across the API boundary.
type ConstraintPayload struct {
	BeginTime     string `json:"begin_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	DayMask       string `json:"day_mask,omitempty"`
	BeginDate     string `json:"begin_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	BeginLockDate string `json:"begin_lock_date,omitempty"`
	EndLockDate   string `json:"end_lock_date,omitempty"`
	Timeout       int    `json:"timeout,omitempty"`
}

func (p *ConstraintPayload) toDomain() *domain.Constraint {
	if p == nil {
		return nil
	}
	c := &domain.Constraint{
		BeginTime:     p.BeginTime,
		EndTime:       p.EndTime,
		DayMask:       p.DayMask,
		BeginDate:     p.BeginDate,
		EndDate:       p.EndDate,
		BeginLockDate: p.BeginLockDate,
		EndLockDate:   p.EndLockDate,
		Timeout:       p.Timeout,
	}
	if c.IsZero() {
		return nil
	}
	return c
}

func newConstraintPayload(c *domain.Constraint) *ConstraintPayload {
	if c.IsZero() {
		return nil
	}
	return &ConstraintPayload{
		BeginTime:     c.BeginTime,
		EndTime:       c.EndTime,
		DayMask:       c.DayMask,
		BeginDate:     c.BeginDate,
		EndDate:       c.EndDate,
		BeginLockDate: c.BeginLockDate,
		EndLockDate:   c.EndLockDate,
		Timeout:       c.Timeout,
	}
}

// SessionCreateRequest defines the payload for opening a session.
type SessionCreateRequest struct {
	UserID   string            `json:"user_id" binding:"required"`
	Password string            `json:"password"`
	Trusted  bool              `json:"trusted"`
	Roles    []string          `json:"roles"`
	Props    map[string]string `json:"props"`
}

// WarningPayload is a non-fatal condition raised during session creation.
type WarningPayload struct {
	Code string `json:"code"`
	Role string `json:"role,omitempty"`
	Msg  string `json:"msg"`
}

// SessionResponse is the API view of a session snapshot.
type SessionResponse struct {
	ID         string            `json:"id"`
	ContextID  string            `json:"context_id"`
	UserID     string            `json:"user_id"`
	State      string            `json:"state"`
	Roles      []string          `json:"roles"`
	AdminRoles []string          `json:"admin_roles,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Warnings   []WarningPayload  `json:"warnings,omitempty"`
	Props      map[string]string `json:"props,omitempty"`
}

func newSessionResponse(session *domain.Session) SessionResponse {
	warnings := make([]WarningPayload, 0, len(session.Warnings))
	for _, w := range session.Warnings {
		warnings = append(warnings, WarningPayload{Code: w.Code, Role: w.Role, Msg: w.Msg})
	}

	return SessionResponse{
		ID:         session.ID,
		ContextID:  session.ContextID,
		UserID:     session.UserID,
		State:      string(session.State),
		Roles:      session.ActiveRoles(),
		AdminRoles: session.ActiveAdminRoles(),
		CreatedAt:  session.CreatedAt,
		ExpiresAt:  session.ExpiresAt,
		Warnings:   warnings,
		Props:      session.Props,
	}
}

// RoleActivationRequest names the role to activate in a session.
type RoleActivationRequest struct {
	Role string `json:"role" binding:"required"`
}

// AccessCheckRequest identifies the permission to check.
type AccessCheckRequest struct {
	Object    string `json:"object" binding:"required"`
	Operation string `json:"operation" binding:"required"`
}

// AccessCheckResponse carries the access decision.
type AccessCheckResponse struct {
	Granted bool `json:"granted"`
}

// PermissionPayload is the API view of a stored permission.
type PermissionPayload struct {
	Object    string   `json:"object"`
	Operation string   `json:"operation"`
	Admin     bool     `json:"admin,omitempty"`
	Type      *string  `json:"type,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Users     []string `json:"users,omitempty"`
}

func newPermissionPayload(perm domain.Permission) PermissionPayload {
	return PermissionPayload{
		Object:    perm.ObjName,
		Operation: perm.OpName,
		Admin:     perm.Admin,
		Type:      perm.Type,
		Roles:     perm.Roles,
		Users:     perm.Users,
	}
}

// SessionPermissionsResponse lists every permission reachable from a session.
type SessionPermissionsResponse struct {
	Permissions []PermissionPayload `json:"permissions"`
}

// RolePayload defines a role for create and update calls, and doubles as the
// response shape.
type RolePayload struct {
	Name        string             `json:"name" binding:"required"`
	Admin       bool               `json:"admin,omitempty"`
	Parents     []string           `json:"parents,omitempty"`
	Constraint  *ConstraintPayload `json:"constraint,omitempty"`
	Description *string            `json:"description,omitempty"`
}

func newRolePayload(role *domain.Role) RolePayload {
	return RolePayload{
		Name:        role.Name,
		Admin:       role.Admin,
		Parents:     role.Parents,
		Constraint:  newConstraintPayload(role.Constraint),
		Description: role.Description,
	}
}

// RelationshipRequest defines a hierarchy edge between two roles.
type RelationshipRequest struct {
	Child  string `json:"child" binding:"required"`
	Parent string `json:"parent" binding:"required"`
	Admin  bool   `json:"admin"`
}

// RoleClosureResponse lists the transitive closure of a role in one direction.
type RoleClosureResponse struct {
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}

// AssignmentRequest assigns a role to a user.
type AssignmentRequest struct {
	UserID     string             `json:"user_id" binding:"required"`
	Role       string             `json:"role" binding:"required"`
	Admin      bool               `json:"admin"`
	Constraint *ConstraintPayload `json:"constraint,omitempty"`
}

// PermObjRequest defines a protected object.
type PermObjRequest struct {
	Object      string  `json:"object" binding:"required"`
	OrgUnit     string  `json:"org_unit"`
	Type        *string `json:"type,omitempty"`
	Description *string `json:"description,omitempty"`
}

// PermissionCreateRequest defines an (object, operation) permission.
type PermissionCreateRequest struct {
	Object    string  `json:"object" binding:"required"`
	Operation string  `json:"operation" binding:"required"`
	Admin     bool    `json:"admin"`
	Type      *string `json:"type,omitempty"`
}

// RoleGrantRequest grants or revokes a permission for a role.
type RoleGrantRequest struct {
	Object    string `json:"object" binding:"required"`
	Operation string `json:"operation" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Admin     bool   `json:"admin"`
}

// UserGrantRequest grants or revokes a permission for a user directly.
type UserGrantRequest struct {
	Object    string `json:"object" binding:"required"`
	Operation string `json:"operation" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	Admin     bool   `json:"admin"`
}

// SDSetPayload defines a separation of duty set.
type SDSetPayload struct {
	Name        string   `json:"name" binding:"required"`
	Kind        string   `json:"kind" binding:"required,oneof=static dynamic"`
	Members     []string `json:"members" binding:"required"`
	Cardinality int      `json:"cardinality" binding:"required,min=2"`
}

// UserCreateRequest defines the payload for creating a user.
type UserCreateRequest struct {
	UserID     string             `json:"user_id" binding:"required"`
	Password   string             `json:"password"`
	Status     string             `json:"status" binding:"omitempty,oneof=active locked disabled"`
	Props      map[string]string  `json:"props,omitempty"`
	Constraint *ConstraintPayload `json:"constraint,omitempty"`
}

// UserUpdateRequest defines the payload for updating a user.
type UserUpdateRequest struct {
	Password   string             `json:"password"`
	Status     string             `json:"status" binding:"omitempty,oneof=active locked disabled"`
	Props      map[string]string  `json:"props,omitempty"`
	Constraint *ConstraintPayload `json:"constraint,omitempty"`
}

// UserResponse is the API view of a stored user. Credentials never leave the
// service.
type UserResponse struct {
	UserID     string             `json:"user_id"`
	Status     string             `json:"status"`
	Roles      []string           `json:"roles,omitempty"`
	AdminRoles []string           `json:"admin_roles,omitempty"`
	Props      map[string]string  `json:"props,omitempty"`
	Constraint *ConstraintPayload `json:"constraint,omitempty"`
}

func newUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		UserID:     user.ID,
		Status:     string(user.Status),
		Roles:      user.AuthorizedRoles(),
		AdminRoles: user.AuthorizedAdminRoles(),
		Props:      user.Props,
		Constraint: newConstraintPayload(user.Constraint),
	}
}
