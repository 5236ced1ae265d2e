package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-engine/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Typed violations (separation of duty, temporal constraint) are handled before the sentinel table so
// their details reach the client.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var sdErr *usecase.SDViolationError
	if errors.As(err, &sdErr) {
		c.JSON(http.StatusConflict, NewErrorResponse(c, sdErr.Error()))
		return
	}

	var constraintErr *usecase.ConstraintError
	if errors.As(err, &constraintErr) {
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, constraintErr.Error()))
		return
	}

	var bulkErr *usecase.BulkRevokeError
	if errors.As(err, &bulkErr) {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, bulkErr.Error()))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
