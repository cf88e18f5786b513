// Package httpapi exposes the authentication, permission, catalog, and
// reporting endpoints and the guards protecting them.
package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/caronline/vehiclesvc/internal/security"
)

// Context keys set by the access guard.
const (
	ctxClaims = "sessionClaims"
)

// CurrentClaims returns the verified claims attached by the access guard.
func CurrentClaims(c *gin.Context) (*security.SessionClaims, bool) {
	value, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*security.SessionClaims)
	return claims, ok
}

// clientIP prefers the first X-Forwarded-For hop so logs and rate limiting
// see the caller, not the proxy.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		if ip := strings.TrimSpace(forwarded); ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}

// bearerToken extracts the bearer token from the Authorization header.
// Returns empty when the header is absent or not a bearer scheme.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}
