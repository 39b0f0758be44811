package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/homeconf/regbot/internal/auth"
	"github.com/homeconf/regbot/pkg/response"
)

// RequireAdmin allows admin-role tokens whose user is still on the allow-list.
// Removing an id from ADMIN_IDS revokes its outstanding tokens.
func RequireAdmin(isAdmin func(userID int64) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		uid, ok := c.Get(ContextUserID)
		if !ok || role == "" {
			response.Unauthorized(c, "missing user context")
			return
		}
		id, _ := uid.(int64)
		if role != auth.RoleAdmin || !isAdmin(id) {
			response.Forbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}
