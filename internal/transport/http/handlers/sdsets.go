package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/repository"
	"github.com/arklim/rbac-engine/internal/transport/http/middleware"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// SDSetHandler exposes separation of duty set endpoints.
type SDSetHandler struct {
	admin *usecase.AdminService
}

// NewSDSetHandler constructs a separation of duty set handler.
func NewSDSetHandler(admin *usecase.AdminService) *SDSetHandler {
	return &SDSetHandler{admin: admin}
}

// RegisterRoutes binds separation set routes to the provided router group.
func (h *SDSetHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.AddSDSet)
	r.PUT("/:name", h.UpdateSDSet)
	r.DELETE("/:name", h.DeleteSDSet)
}

var sdsetErrorCases = []ErrorCase{
	{Err: usecase.ErrContextRequired, Status: http.StatusBadRequest, Message: "context id is required"},
	{Err: usecase.ErrSDSetNotFound, Status: http.StatusNotFound, Message: "separation of duty set not found"},
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "member role not found"},
	{Err: usecase.ErrCardinalityTooLow, Status: http.StatusBadRequest, Message: "cardinality must be at least 2"},
	{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "separation of duty set already exists"},
}

func (h *SDSetHandler) payloadToDomain(c *gin.Context, req SDSetPayload, name string) *domain.SDSet {
	return &domain.SDSet{
		ContextID:   middleware.ContextID(c),
		Name:        name,
		Kind:        domain.SDSetKind(req.Kind),
		Members:     req.Members,
		Cardinality: req.Cardinality,
	}
}

// AddSDSet creates a separation of duty set.
func (h *SDSetHandler) AddSDSet(c *gin.Context) {
	var req SDSetPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "name, kind, members, and cardinality are required"))
		return
	}

	if err := h.admin.AddSDSet(c.Request.Context(), h.payloadToDomain(c, req, req.Name)); err != nil {
		RespondWithMappedError(c, err, sdsetErrorCases, http.StatusInternalServerError, "failed to create separation set")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "separation set created"})
}

// UpdateSDSet replaces a separation of duty set's members and cardinality.
func (h *SDSetHandler) UpdateSDSet(c *gin.Context) {
	var req SDSetPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "name, kind, members, and cardinality are required"))
		return
	}

	if err := h.admin.UpdateSDSet(c.Request.Context(), h.payloadToDomain(c, req, c.Param("name"))); err != nil {
		RespondWithMappedError(c, err, sdsetErrorCases, http.StatusInternalServerError, "failed to update separation set")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "separation set updated"})
}

// DeleteSDSet removes a separation of duty set. Kind comes from the ?kind
// query parameter and defaults to static.
func (h *SDSetHandler) DeleteSDSet(c *gin.Context) {
	kind := domain.SDSetKind(c.DefaultQuery("kind", string(domain.SDStatic)))
	if kind != domain.SDStatic && kind != domain.SDDynamic {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "kind must be static or dynamic"))
		return
	}

	err := h.admin.DeleteSDSet(c.Request.Context(), middleware.ContextID(c), c.Param("name"), kind)
	if err != nil {
		RespondWithMappedError(c, err, sdsetErrorCases, http.StatusInternalServerError, "failed to delete separation set")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "separation set deleted"})
}
