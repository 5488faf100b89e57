package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atlaspay/backend/internal/auth"
	"github.com/atlaspay/backend/pkg/response"
)

const (
	// ContextClientID is the key for the calling client id in gin context.
	ContextClientID = "client_id"
	// ContextScope is the key for the token scope in gin context.
	ContextScope = "scope"
)

// JWT returns a middleware that validates the service token and sets client
// claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextClientID, claims.ClientID)
		c.Set(ContextScope, claims.Scope)
		c.Next()
	}
}
