package mw

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dorm-billing-backend/internal/billing"
)

// actorRoleKey is the gin context key the role middleware stores under.
const actorRoleKey = "actor_role"

// RoleHeader is the request header the authenticating gateway sets after it
// has verified the session. This service trusts it; authentication itself is
// out of scope here.
const RoleHeader = "X-Actor-Role"

// ActorRole reads the acting role from X-Actor-Role into the request context.
// Requests without a recognized role are rejected before any handler runs, so
// downstream code can branch on a validated capability instead of re-checking
// a raw header everywhere.
func ActorRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := billing.Role(c.GetHeader(RoleHeader))
		switch role {
		case billing.RoleStudent, billing.RoleManager:
			c.Set(actorRoleKey, role)
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or unknown actor role"})
			return
		}
		c.Next()
	}
}

// RoleFrom returns the validated role stored by ActorRole.
func RoleFrom(c *gin.Context) billing.Role {
	if v, ok := c.Get(actorRoleKey); ok {
		if role, ok := v.(billing.Role); ok {
			return role
		}
	}
	return billing.Role("")
}

// RequireManager rejects requests whose actor is not a manager.
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if RoleFrom(c) != billing.RoleManager {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "manager role required"})
			return
		}
		c.Next()
	}
}
