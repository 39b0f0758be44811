package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/homeconf/regbot/internal/auth"
	"github.com/homeconf/regbot/pkg/response"
)

const (
	// ContextUserID is the key for the Telegram user id in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for the token role in gin context.
	ContextUserRole = "user_role"
)

// JWT validates a bearer token, or a ?token= query parameter for browser
// websocket clients that cannot set headers, and stores the claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "missing or invalid authorization")
			return
		}
		claims, err := jwtService.Validate(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || scheme != "Bearer" || token == "" {
			return "", false
		}
		return token, true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
