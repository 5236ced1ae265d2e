package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/repository"
	"github.com/arklim/rbac-engine/internal/transport/http/middleware"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// RoleHandler exposes role lifecycle, hierarchy, and user assignment endpoints.
type RoleHandler struct {
	admin     *usecase.AdminService
	hierarchy *usecase.HierarchyService
}

// NewRoleHandler constructs a role handler.
func NewRoleHandler(admin *usecase.AdminService, hierarchy *usecase.HierarchyService) *RoleHandler {
	return &RoleHandler{admin: admin, hierarchy: hierarchy}
}

// RegisterRoutes binds role management routes to the provided router group.
func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.AddRole)
	r.GET("/:role", h.GetRole)
	r.PUT("/:role", h.UpdateRole)
	r.DELETE("/:role", h.DeleteRole)
	r.GET("/:role/ascendants", h.Ascendants)
	r.GET("/:role/descendants", h.Descendants)
}

// RegisterRelationshipRoutes binds hierarchy edge routes.
func (h *RoleHandler) RegisterRelationshipRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.AddRelationship)
	r.DELETE("", h.RemoveRelationship)
}

// RegisterAssignmentRoutes binds user-role assignment routes.
func (h *RoleHandler) RegisterAssignmentRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.AssignUser)
	r.DELETE("", h.DeassignUser)
}

var roleErrorCases = []ErrorCase{
	{Err: usecase.ErrContextRequired, Status: http.StatusBadRequest, Message: "context id is required"},
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "role already exists"},
	{Err: usecase.ErrRelationshipExists, Status: http.StatusConflict, Message: "relationship already exists"},
	{Err: usecase.ErrRelationshipNotFound, Status: http.StatusNotFound, Message: "relationship not found"},
	{Err: usecase.ErrHierarchyCycle, Status: http.StatusConflict, Message: "relationship would create a cycle"},
	{Err: usecase.ErrAlreadyAssigned, Status: http.StatusConflict, Message: "role already assigned to user"},
	{Err: usecase.ErrNotAssigned, Status: http.StatusConflict, Message: "role not assigned to user"},
}

// adminFlag reads the optional ?admin query parameter.
func adminFlag(c *gin.Context) bool {
	flag, _ := strconv.ParseBool(c.Query("admin"))
	return flag
}

// AddRole creates a role.
func (h *RoleHandler) AddRole(c *gin.Context) {
	var req RolePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "name is required"))
		return
	}

	role := &domain.Role{
		ContextID:   middleware.ContextID(c),
		Name:        req.Name,
		Admin:       req.Admin,
		Parents:     req.Parents,
		Constraint:  req.Constraint.toDomain(),
		Description: req.Description,
	}

	if err := h.admin.AddRole(c.Request.Context(), role); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, newRolePayload(role))
}

// GetRole returns a role definition.
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.admin.GetRole(c.Request.Context(), middleware.ContextID(c), c.Param("role"), adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to load role")
		return
	}

	c.JSON(http.StatusOK, newRolePayload(role))
}

// UpdateRole replaces a role's constraint and description.
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req RolePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "name is required"))
		return
	}

	role := &domain.Role{
		ContextID:   middleware.ContextID(c),
		Name:        c.Param("role"),
		Admin:       req.Admin,
		Parents:     req.Parents,
		Constraint:  req.Constraint.toDomain(),
		Description: req.Description,
	}

	if err := h.admin.UpdateRole(c.Request.Context(), role); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to update role")
		return
	}

	c.JSON(http.StatusOK, newRolePayload(role))
}

// DeleteRole removes a role, revoking every grant and assignment that
// references it.
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	err := h.admin.DeleteRole(c.Request.Context(), middleware.ContextID(c), c.Param("role"), adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to delete role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role deleted"})
}

// Ascendants lists every role the named role inherits from, transitively.
func (h *RoleHandler) Ascendants(c *gin.Context) {
	role := c.Param("role")
	roles, err := h.hierarchy.Ascendants(c.Request.Context(), middleware.ContextID(c), role, adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to resolve ascendants")
		return
	}

	c.JSON(http.StatusOK, RoleClosureResponse{Role: role, Roles: roles})
}

// Descendants lists every role that inherits from the named role, transitively.
func (h *RoleHandler) Descendants(c *gin.Context) {
	role := c.Param("role")
	roles, err := h.hierarchy.Descendants(c.Request.Context(), middleware.ContextID(c), role, adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to resolve descendants")
		return
	}

	c.JSON(http.StatusOK, RoleClosureResponse{Role: role, Roles: roles})
}

// AddRelationship inserts a hierarchy edge.
func (h *RoleHandler) AddRelationship(c *gin.Context) {
	var req RelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "child and parent are required"))
		return
	}

	rel := domain.Relationship{Child: req.Child, Parent: req.Parent}
	if err := h.hierarchy.AddRelationship(c.Request.Context(), middleware.ContextID(c), rel, req.Admin); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to add relationship")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "relationship added"})
}

// RemoveRelationship deletes a direct hierarchy edge identified by query
// parameters.
func (h *RoleHandler) RemoveRelationship(c *gin.Context) {
	child := c.Query("child")
	parent := c.Query("parent")
	if child == "" || parent == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "child and parent are required"))
		return
	}

	rel := domain.Relationship{Child: child, Parent: parent}
	if err := h.hierarchy.RemoveRelationship(c.Request.Context(), middleware.ContextID(c), rel, adminFlag(c)); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to remove relationship")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "relationship removed"})
}

// AssignUser grants a role to a user, subject to static separation of duty.
func (h *RoleHandler) AssignUser(c *gin.Context) {
	var req AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and role are required"))
		return
	}

	assignment := domain.UserRole{
		UserID:     req.UserID,
		Name:       req.Role,
		Constraint: req.Constraint.toDomain(),
	}
	if err := h.admin.AssignUser(c.Request.Context(), middleware.ContextID(c), assignment, req.Admin); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "role assigned"})
}

// DeassignUser removes a role assignment identified by query parameters.
func (h *RoleHandler) DeassignUser(c *gin.Context) {
	userID := c.Query("user_id")
	role := c.Query("role")
	if userID == "" || role == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and role are required"))
		return
	}

	err := h.admin.DeassignUser(c.Request.Context(), middleware.ContextID(c), userID, role, adminFlag(c))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to deassign role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role deassigned"})
}
