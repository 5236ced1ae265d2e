package middleware

import "github.com/gin-gonic/gin"

// ContextID returns the tenant scope encoded in the route path. Every policy
// and session route lives under /contexts/:context_id.
func ContextID(c *gin.Context) string {
	return c.Param("context_id")
}
