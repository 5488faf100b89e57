package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/atlaspay/backend/pkg/response"
)

// RequireScope returns a middleware that allows only tokens carrying one of
// the given scopes. Must run after JWT.
func RequireScope(scopes ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		allowed[s] = true
	}
	return func(c *gin.Context) {
		scope, _ := c.Get(ContextScope)
		s, ok := scope.(string)
		if !ok || !allowed[s] {
			response.Forbidden(c, "insufficient scope")
			c.Abort()
			return
		}
		c.Next()
	}
}
