// Package permissions resolves a role name to its capability set.
// Absence of a grant means no permission; lookup failures degrade to the
// empty set rather than propagating.
package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/models"
)

// Permission-string vocabulary for the vehicle catalog.
const (
	PermCreateVehicle  = "create:vehicle"
	PermReadVehicle    = "read:vehicle"
	PermUpdateVehicle  = "update:vehicle"
	PermDeleteVehicle  = "delete:vehicle"
	PermPublishVehicle = "publish:vehicle"
	PermReadLogs       = "read:logs"
	PermAdminLogs      = "admin:logs"
)

// UserPermissions is a role's capability set with convenience projections
// over the vehicle vocabulary.
type UserPermissions struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	CanCreate   bool     `json:"canCreate"`
	CanRead     bool     `json:"canRead"`
	CanUpdate   bool     `json:"canUpdate"`
	CanDelete   bool     `json:"canDelete"`
	CanPublish  bool     `json:"canPublish"`
}

// Resolver answers role-to-permission lookups against the role table.
type Resolver struct {
	db *gorm.DB
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// GetPermissionsByRole returns the role's permission strings. An unknown
// role or an unreadable row yields the empty set.
func (r *Resolver) GetPermissionsByRole(ctx context.Context, role string) []string {
	var row models.RolePermission
	errFind := r.db.WithContext(ctx).Where("role = ?", role).Take(&row).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).WithField("role", role).Warn("permissions: role lookup failed")
		}
		return []string{}
	}

	var perms []string
	if errUnmarshal := json.Unmarshal(row.Permissions, &perms); errUnmarshal != nil {
		log.WithError(errUnmarshal).WithField("role", role).Warn("permissions: malformed permission set")
		return []string{}
	}
	if perms == nil {
		perms = []string{}
	}
	return perms
}

// HasPermission reports whether the role grants the permission.
func (r *Resolver) HasPermission(ctx context.Context, role, permission string) bool {
	for _, granted := range r.GetPermissionsByRole(ctx, role) {
		if granted == permission {
			return true
		}
	}
	return false
}

// GetUserPermissions returns the role's set with the vehicle projections.
func (r *Resolver) GetUserPermissions(ctx context.Context, role string) UserPermissions {
	perms := r.GetPermissionsByRole(ctx, role)
	granted := make(map[string]bool, len(perms))
	for _, p := range perms {
		granted[p] = true
	}
	return UserPermissions{
		Role:        role,
		Permissions: perms,
		CanCreate:   granted[PermCreateVehicle],
		CanRead:     granted[PermReadVehicle],
		CanUpdate:   granted[PermUpdateVehicle],
		CanDelete:   granted[PermDeleteVehicle],
		CanPublish:  granted[PermPublishVehicle],
	}
}

// ListRoles returns every configured role with its permission set.
func (r *Resolver) ListRoles(ctx context.Context) ([]models.RolePermission, error) {
	var rows []models.RolePermission
	if errFind := r.db.WithContext(ctx).Order("role").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("permissions: list roles: %w", errFind)
	}
	return rows, nil
}

// UpsertRole replaces a role's permission set.
func (r *Resolver) UpsertRole(ctx context.Context, role, description string, perms []string) error {
	if perms == nil {
		perms = []string{}
	}
	payload, errMarshal := json.Marshal(perms)
	if errMarshal != nil {
		return fmt.Errorf("permissions: encode set: %w", errMarshal)
	}

	var existing models.RolePermission
	errFind := r.db.WithContext(ctx).Where("role = ?", role).Take(&existing).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("permissions: load role: %w", errFind)
		}
		row := models.RolePermission{
			Role:        role,
			Description: description,
			Permissions: datatypes.JSON(payload),
		}
		if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
			return fmt.Errorf("permissions: create role: %w", errCreate)
		}
		return nil
	}

	updates := map[string]any{"permissions": datatypes.JSON(payload)}
	if description != "" {
		updates["description"] = description
	}
	if errUpdate := r.db.WithContext(ctx).
		Model(&models.RolePermission{}).
		Where("role = ?", role).
		Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("permissions: update role: %w", errUpdate)
	}
	return nil
}
