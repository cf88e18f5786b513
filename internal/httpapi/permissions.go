package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/caronline/vehiclesvc/internal/permissions"
)

// PermissionsHandler answers capability queries and the admin role surface.
type PermissionsHandler struct {
	resolver *permissions.Resolver
}

// NewPermissionsHandler constructs the permissions handler.
func NewPermissionsHandler(resolver *permissions.Resolver) *PermissionsHandler {
	return &PermissionsHandler{resolver: resolver}
}

// Mine returns the caller's capability set.
func (h *PermissionsHandler) Mine(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, h.resolver.GetUserPermissions(c.Request.Context(), claims.Role))
}

// ByRole returns the capability set for any role name. Unknown roles come
// back with the empty set rather than an error.
func (h *PermissionsHandler) ByRole(c *gin.Context) {
	role := strings.TrimSpace(c.Param("role"))
	if role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	c.JSON(http.StatusOK, h.resolver.GetUserPermissions(c.Request.Context(), role))
}

// Check reports whether the caller's role grants a single permission.
func (h *PermissionsHandler) Check(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	perm := strings.TrimSpace(c.Param("permission"))
	if perm == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "permission is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"role":       claims.Role,
		"permission": perm,
		"granted":    h.resolver.HasPermission(c.Request.Context(), claims.Role, perm),
	})
}

// ListRoles returns every configured role and its permission strings.
func (h *PermissionsHandler) ListRoles(c *gin.Context) {
	roles, errList := h.resolver.ListRoles(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Error("permissions: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list roles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

type upsertRoleRequest struct {
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// UpsertRole replaces a role's permission set.
func (h *PermissionsHandler) UpsertRole(c *gin.Context) {
	role := strings.TrimSpace(c.Param("role"))
	if role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	var req upsertRoleRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errUpsert := h.resolver.UpsertRole(c.Request.Context(), role, req.Description, req.Permissions); errUpsert != nil {
		log.WithError(errUpsert).Error("permissions: upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update role"})
		return
	}
	c.JSON(http.StatusOK, h.resolver.GetUserPermissions(c.Request.Context(), role))
}
