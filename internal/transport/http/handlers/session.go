package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/transport/http/middleware"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// SessionHandler exposes the session lifecycle and runtime access decisions.
type SessionHandler struct {
	access *usecase.AccessService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(access *usecase.AccessService) *SessionHandler {
	return &SessionHandler{access: access}
}

// RegisterRoutes binds session routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.CreateSession)
	r.GET("/:session_id", h.GetSession)
	r.DELETE("/:session_id", h.DeleteSession)
	r.POST("/:session_id/roles", h.AddActiveRole)
	r.DELETE("/:session_id/roles/:role", h.DropActiveRole)
	r.POST("/:session_id/access", h.CheckAccess)
	r.GET("/:session_id/permissions", h.SessionPermissions)
}

var sessionErrorCases = []ErrorCase{
	{Err: usecase.ErrContextRequired, Status: http.StatusBadRequest, Message: "context id is required"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrAuthenticationFailed, Status: http.StatusUnauthorized, Message: "authentication failed"},
	{Err: usecase.ErrUserLocked, Status: http.StatusForbidden, Message: "user account is locked"},
	{Err: usecase.ErrUserDisabled, Status: http.StatusForbidden, Message: "user account is disabled"},
	{Err: usecase.ErrRoleNotAuthorized, Status: http.StatusForbidden, Message: "role not authorized for user"},
	{Err: usecase.ErrRoleAlreadyActive, Status: http.StatusConflict, Message: "role already active in session"},
	{Err: usecase.ErrRoleNotActive, Status: http.StatusConflict, Message: "role not active in session"},
	{Err: usecase.ErrSessionClosed, Status: http.StatusGone, Message: "session is closed"},
	{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
}

// CreateSession opens a session for a user, activating the requested roles
// (or every assigned role when none are named).
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	session, err := h.access.CreateSession(c.Request.Context(), usecase.CreateSessionInput{
		ContextID: middleware.ContextID(c),
		UserID:    req.UserID,
		Password:  req.Password,
		Trusted:   req.Trusted,
		Roles:     req.Roles,
		Props:     req.Props,
	}, time.Now().UTC())
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, newSessionResponse(session))
}

// GetSession returns the current session snapshot.
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.access.LoadSession(c.Request.Context(), middleware.ContextID(c), c.Param("session_id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

// DeleteSession closes the session.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.access.LoadSession(ctx, middleware.ContextID(c), c.Param("session_id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	if err := h.access.DeleteSession(ctx, session); err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to close session")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session closed"})
}

// AddActiveRole activates one more authorized role in the session. Any failed
// check rejects the call outright.
func (h *SessionHandler) AddActiveRole(c *gin.Context) {
	var req RoleActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role is required"))
		return
	}

	ctx := c.Request.Context()
	session, err := h.access.LoadSession(ctx, middleware.ContextID(c), c.Param("session_id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	if err := h.access.AddActiveRole(ctx, session, req.Role, time.Now().UTC()); err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to activate role")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

// DropActiveRole deactivates a role in the session.
func (h *SessionHandler) DropActiveRole(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.access.LoadSession(ctx, middleware.ContextID(c), c.Param("session_id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	if err := h.access.DropActiveRole(ctx, session, c.Param("role")); err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to deactivate role")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

// CheckAccess decides whether the session may perform an operation on an object.
func (h *SessionHandler) CheckAccess(c *gin.Context) {
	var req AccessCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object and operation are required"))
		return
	}

	ctx := c.Request.Context()
	session, err := h.access.LoadSession(ctx, middleware.ContextID(c), c.Param("session_id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	granted, err := h.access.CheckAccess(ctx, session, req.Object, req.Operation)
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to check access")
		return
	}

	c.JSON(http.StatusOK, AccessCheckResponse{Granted: granted})
}

// SessionPermissions lists every permission the session can exercise.
func (h *SessionHandler) SessionPermissions(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.access.LoadSession(ctx, middleware.ContextID(c), c.Param("session_id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	perms, err := h.access.SessionPermissions(ctx, session)
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to list session permissions")
		return
	}

	payload := make([]PermissionPayload, 0, len(perms))
	for _, perm := range perms {
		payload = append(payload, newPermissionPayload(perm))
	}

	c.JSON(http.StatusOK, SessionPermissionsResponse{Permissions: payload})
}
