package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/models"
)

// AdminKey guards operational routes. It must run after Actor.
func AdminKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required != "" && c.GetHeader(AdminKeyHeader) != required {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid admin key")
			return
		}
		actor, ok := CurrentActor(c)
		if !ok || actor.Role != models.RoleAdmin {
			abort(c, http.StatusForbidden, "FORBIDDEN", "Admin role required")
			return
		}
		c.Next()
	}
}
