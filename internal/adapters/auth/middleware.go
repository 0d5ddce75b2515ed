package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	identityKey     = "identity"
	sessionTokenKey = "token"
)

// Middleware resolves the caller's identity. The token comes from the
// Authorization header, the token query parameter (browsers cannot set
// headers on WebSocket upgrades) or the cookie session, in that order.
// Requires the gin-contrib/sessions middleware.
func Middleware(v core.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, fromSession := bearer(c.GetHeader("Authorization")), false
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			if t, ok := s.Get(sessionTokenKey).(string); ok {
				token, fromSession = t, true
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		who, err := v.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("module", "auth").Msg("token rejected")
			if fromSession {
				s.Delete(sessionTokenKey)
				_ = s.Save()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !fromSession {
			s.Set(sessionTokenKey, token)
			_ = s.Save()
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

// RequireRole rejects callers whose account role is not listed.
func RequireRole(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := IdentityFrom(c)
		if !ok || !slices.Contains(roles, who.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	who, ok := v.(domain.Identity)
	return who, ok
}

func bearer(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
