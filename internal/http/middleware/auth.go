// README: Firebase ID token auth; exposes the caller's uid, role and tenant to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/infra"
)

const identityKey = "caller_identity"

// Roles carried in the "role" custom claim.
const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleDriver     = "driver"
)

// Auth rejects requests without a valid "Authorization: Bearer <token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(token))
		if err != nil || id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// Anonymous treats every caller as an admin. Only for local runs with auth disabled.
func Anonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, &infra.Identity{UID: "local", Role: RoleAdmin})
		c.Next()
	}
}

// RequireRole lets through callers holding one of roles. Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		if role == RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func Caller(c *gin.Context) *infra.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return &infra.Identity{}
	}
	id, _ := v.(*infra.Identity)
	if id == nil {
		return &infra.Identity{}
	}
	return id
}

func CallerUID(c *gin.Context) string    { return Caller(c).UID }
func CallerRole(c *gin.Context) string   { return Caller(c).Role }
func CallerTenant(c *gin.Context) string { return Caller(c).TenantID }

// CanAccessTenant is true for admins and for callers scoped to tenantID.
func CanAccessTenant(c *gin.Context, tenantID string) bool {
	id := Caller(c)
	if id.Role == RoleAdmin {
		return true
	}
	return tenantID != "" && id.TenantID == tenantID
}
