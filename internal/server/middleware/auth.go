package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"naija-nutri-hub/backend/internal/security"
)

const bearerPrefix = "bearer "

// TokenValidator validates access tokens. *security.TokenProvider implements it.
type TokenValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// BearerAuth validates the Bearer access token and stores the caller's
// identity in the request context. Requests without a valid token get 401.
func BearerAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		claims, err := tokens.ValidateAccess(token)
		if err != nil || claims.Subject == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.Subject, claims.Username))
		c.Next()
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
