package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/repository"
	"github.com/arklim/rbac-engine/internal/transport/http/middleware"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// UserHandler exposes user lifecycle endpoints.
type UserHandler struct {
	admin *usecase.AdminService
}

// NewUserHandler constructs a user handler.
func NewUserHandler(admin *usecase.AdminService) *UserHandler {
	return &UserHandler{admin: admin}
}

// RegisterRoutes binds user management routes to the provided router group.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.AddUser)
	r.GET("/:user_id", h.GetUser)
	r.PUT("/:user_id", h.UpdateUser)
	r.DELETE("/:user_id", h.RemoveUser)
}

var userErrorCases = []ErrorCase{
	{Err: usecase.ErrContextRequired, Status: http.StatusBadRequest, Message: "context id is required"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "user already exists"},
}

// AddUser creates a user record.
func (h *UserHandler) AddUser(c *gin.Context) {
	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	user := &domain.User{
		ContextID:  middleware.ContextID(c),
		ID:         req.UserID,
		Status:     domain.UserStatus(req.Status),
		Props:      req.Props,
		Constraint: req.Constraint.toDomain(),
	}
	if err := h.admin.AddUser(c.Request.Context(), user, req.Password); err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to create user")
		return
	}

	c.JSON(http.StatusCreated, newUserResponse(user))
}

// GetUser returns a user together with both assignment lists.
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.admin.GetUser(c.Request.Context(), middleware.ContextID(c), c.Param("user_id"))
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

// UpdateUser replaces a user's status, properties, and constraint. The stored
// credential is kept unless a new password is supplied.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	user := &domain.User{
		ContextID:  middleware.ContextID(c),
		ID:         c.Param("user_id"),
		Status:     domain.UserStatus(req.Status),
		Props:      req.Props,
		Constraint: req.Constraint.toDomain(),
	}
	if err := h.admin.UpdateUser(c.Request.Context(), user, req.Password); err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to update user")
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

// RemoveUser deletes a user after revoking every direct permission grant.
func (h *UserHandler) RemoveUser(c *gin.Context) {
	err := h.admin.RemoveUser(c.Request.Context(), middleware.ContextID(c), c.Param("user_id"))
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to remove user")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user removed"})
}
