package models

import "time"

// VehicleStatusDeleted marks a soft-deleted listing.
const VehicleStatusDeleted = "DELETED"

// Vehicle is a catalog listing.
type Vehicle struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Brand     string `gorm:"type:text;not null;index"` // Manufacturer.
	Model     string `gorm:"type:text;not null"`       // Model name.
	Year      string `gorm:"type:text"`                // Model year.
	Price     string `gorm:"type:text"`                // Listed price.
	Condition string `gorm:"type:text"`                // New / used condition.
	Mileage   string `gorm:"type:text"`                // Odometer reading.
	Color     string `gorm:"type:text"`                // Exterior color.
	Image     string `gorm:"type:text"`                // Listing image URL.

	Status string `gorm:"type:text;index"` // Empty for live listings, DELETED when removed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
