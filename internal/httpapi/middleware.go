package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/permissions"
	"github.com/caronline/vehiclesvc/internal/security"
)

// AuthGuard verifies the bearer token and the completed-MFA claim before a
// request reaches protected logic. Failure reasons are reported distinctly
// so clients can refresh an expired token instead of re-authenticating.
func AuthGuard(tokens *security.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  autherr.ReasonNoToken,
			})
			return
		}

		claims, errVerify := tokens.Verify(token)
		if errVerify != nil {
			code := autherr.ReasonInvalid
			if errors.Is(errVerify, autherr.ErrTokenExpired) {
				code = autherr.ReasonExpired
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
				"code":  code,
			})
			return
		}

		if !claims.MFACompleted() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "multi-factor authentication required",
				"code":  autherr.ReasonMFARequired,
			})
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequirePermission composes after AuthGuard and denies callers whose role
// lacks the permission, echoing both for diagnosability.
func RequirePermission(resolver *permissions.Resolver, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  autherr.ReasonNoToken,
			})
			return
		}
		if !resolver.HasPermission(c.Request.Context(), claims.Role, permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": permission,
				"role":     claims.Role,
			})
			return
		}
		c.Next()
	}
}

// RequireAnyPermission passes when the role grants at least one of the
// permissions.
func RequireAnyPermission(resolver *permissions.Resolver, perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  autherr.ReasonNoToken,
			})
			return
		}
		for _, permission := range perms {
			if resolver.HasPermission(c.Request.Context(), claims.Role, permission) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":    "insufficient permissions",
			"required": perms,
			"role":     claims.Role,
		})
	}
}

// RequireAdmin restricts a route to the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  autherr.ReasonNoToken,
			})
			return
		}
		if claims.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin access required",
				"role":  claims.Role,
			})
			return
		}
		c.Next()
	}
}

// EndpointLogger records every request to the endpoint log. Writes are
// best-effort; a failed insert never affects the response.
func EndpointLogger(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		c.Next()

		bodySize := c.Writer.Size()
		if bodySize < 0 {
			bodySize = 0
		}
		entry := models.EndpointLog{
			RequestID:  requestID,
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			URL:        c.Request.URL.String(),
			IPAddress:  clientIP(c),
			UserAgent:  c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			LatencyMs:  time.Since(start).Milliseconds(),
			BodySize:   bodySize,
			IsError:    c.Writer.Status() >= http.StatusBadRequest,
		}
		if claims, ok := CurrentClaims(c); ok {
			entry.UserID = claims.UserID
			entry.Username = claims.Username
			entry.Role = claims.Role
			entry.AuthProvider = claims.AuthProvider
		}
		if errCreate := db.WithContext(c.Request.Context()).Create(&entry).Error; errCreate != nil {
			log.WithError(errCreate).Warn("endpoint log: write failed")
		}
	}
}
