package models

import (
	"time"

	"gorm.io/datatypes"
)

// RolePermission maps a role name to its permission strings.
type RolePermission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Role        string `gorm:"type:text;not null;uniqueIndex"` // Role name.
	Description string `gorm:"type:text"`                      // Operator-facing description.

	Permissions datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // JSON array of permission strings.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
