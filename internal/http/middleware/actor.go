package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/models"
)

const (
	ActorRoleHeader  = "X-Actor-Role"
	ActorIDHeader    = "X-Actor-Id"
	ActorAreasHeader = "X-Actor-Areas"
	AdminKeyHeader   = "X-Admin-Key"

	actorKey = "actor"
)

// Actor reads the caller identity from headers. Admin actors must also
// present the admin key when one is configured.
func Actor(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(ActorRoleHeader))))
		id := strings.TrimSpace(c.GetHeader(ActorIDHeader))
		if !role.External() || id == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "X-Actor-Role and X-Actor-Id are required")
			return
		}

		var areas []models.Area
		for _, raw := range strings.Split(c.GetHeader(ActorAreasHeader), ",") {
			a := models.Area(strings.ToLower(strings.TrimSpace(raw)))
			if a == "" {
				continue
			}
			if !a.Valid() {
				abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown area "+string(a))
				return
			}
			areas = append(areas, a)
		}

		if role == models.RoleAdmin && adminKey != "" && c.GetHeader(AdminKeyHeader) != adminKey {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid admin key")
			return
		}

		c.Set(actorKey, models.Actor{Role: role, ID: id, Areas: areas})
		c.Next()
	}
}

func CurrentActor(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
