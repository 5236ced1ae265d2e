package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/repository"
	"github.com/arklim/rbac-engine/internal/transport/http/middleware"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// PermissionHandler exposes protected object, permission, and grant endpoints.
type PermissionHandler struct {
	admin *usecase.AdminService
}

// NewPermissionHandler constructs a permission handler.
func NewPermissionHandler(admin *usecase.AdminService) *PermissionHandler {
	return &PermissionHandler{admin: admin}
}

// RegisterObjectRoutes binds protected object routes.
func (h *PermissionHandler) RegisterObjectRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.AddObject)
	r.DELETE("/:object", h.DeleteObject)
	r.POST("/:object/permissions", h.AddPermission)
	r.DELETE("/:object/permissions/:operation", h.DeletePermission)
}

// RegisterGrantRoutes binds grant and revocation routes.
func (h *PermissionHandler) RegisterGrantRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/roles", h.GrantToRole)
	r.DELETE("/roles", h.RevokeFromRole)
	r.POST("/users", h.GrantToUser)
	r.DELETE("/users", h.RevokeFromUser)
}

var permissionErrorCases = []ErrorCase{
	{Err: usecase.ErrContextRequired, Status: http.StatusBadRequest, Message: "context id is required"},
	{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "object not found"},
	{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "already exists"},
	{Err: usecase.ErrAlreadyGranted, Status: http.StatusConflict, Message: "permission already granted"},
	{Err: usecase.ErrNotGranted, Status: http.StatusConflict, Message: "permission not granted"},
}

// AddObject registers a protected object.
func (h *PermissionHandler) AddObject(c *gin.Context) {
	var req PermObjRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object is required"))
		return
	}

	obj := &domain.PermObj{
		ContextID:   middleware.ContextID(c),
		ObjName:     req.Object,
		OrgUnit:     req.OrgUnit,
		Type:        req.Type,
		Description: req.Description,
	}
	if err := h.admin.AddPermObj(c.Request.Context(), obj); err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to create object")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "object created"})
}

// DeleteObject removes a protected object.
func (h *PermissionHandler) DeleteObject(c *gin.Context) {
	err := h.admin.DeletePermObj(c.Request.Context(), middleware.ContextID(c), c.Param("object"))
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to delete object")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "object deleted"})
}

// AddPermission registers an operation on a protected object.
func (h *PermissionHandler) AddPermission(c *gin.Context) {
	var req PermissionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object and operation are required"))
		return
	}

	perm := &domain.Permission{
		ContextID: middleware.ContextID(c),
		ObjName:   c.Param("object"),
		OpName:    req.Operation,
		Admin:     req.Admin,
		Type:      req.Type,
	}
	if err := h.admin.AddPermission(c.Request.Context(), perm); err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to create permission")
		return
	}

	c.JSON(http.StatusCreated, newPermissionPayload(*perm))
}

// DeletePermission removes an operation from a protected object.
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	err := h.admin.DeletePermission(c.Request.Context(), middleware.ContextID(c),
		c.Param("object"), c.Param("operation"), adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to delete permission")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission deleted"})
}

// GrantToRole grants a permission to a role. Granting twice is a conflict,
// not a no-op.
func (h *PermissionHandler) GrantToRole(c *gin.Context) {
	var req RoleGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object, operation, and role are required"))
		return
	}

	err := h.admin.GrantToRole(c.Request.Context(), middleware.ContextID(c),
		req.Object, req.Operation, req.Role, req.Admin)
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to grant permission")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "permission granted"})
}

// RevokeFromRole revokes a role's permission grant, identified by query
// parameters.
func (h *PermissionHandler) RevokeFromRole(c *gin.Context) {
	object, operation, subject := c.Query("object"), c.Query("operation"), c.Query("role")
	if object == "" || operation == "" || subject == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object, operation, and role are required"))
		return
	}

	err := h.admin.RevokeFromRole(c.Request.Context(), middleware.ContextID(c),
		object, operation, subject, adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to revoke permission")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission revoked"})
}

// GrantToUser grants a permission to a user directly.
func (h *PermissionHandler) GrantToUser(c *gin.Context) {
	var req UserGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object, operation, and user_id are required"))
		return
	}

	err := h.admin.GrantToUser(c.Request.Context(), middleware.ContextID(c),
		req.Object, req.Operation, req.UserID, req.Admin)
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to grant permission")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "permission granted"})
}

// RevokeFromUser revokes a user's direct permission grant, identified by
// query parameters.
func (h *PermissionHandler) RevokeFromUser(c *gin.Context) {
	object, operation, subject := c.Query("object"), c.Query("operation"), c.Query("user_id")
	if object == "" || operation == "" || subject == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "object, operation, and user_id are required"))
		return
	}

	err := h.admin.RevokeFromUser(c.Request.Context(), middleware.ContextID(c),
		object, operation, subject, adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to revoke permission")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission revoked"})
}
