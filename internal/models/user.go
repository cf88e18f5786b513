package models

import "time"

// Roles assignable to a user account.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Auth provider tags recorded on users and session logs.
const (
	ProviderLocal = "local"
	// ProviderLocalDuo marks tokens minted after a completed Duo challenge.
	ProviderLocalDuo = "local+duo"
	ProviderGoogle   = "google"
)

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique email address.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role   string `gorm:"type:text;not null;default:user"` // Coarse role (admin | user).
	Active bool   `gorm:"not null;default:true"`           // Whether the user can sign in.

	AuthProvider string  `gorm:"type:text;not null;default:local"` // Identity origin (local | google).
	GoogleID     *string `gorm:"type:text;uniqueIndex"`            // External identity linkage.
	GoogleName   string  `gorm:"type:text"`                        // Display name from the provider.
	GoogleAvatar string  `gorm:"type:text"`                        // Avatar URL from the provider.
	GoogleLocale string  `gorm:"type:text"`                        // Locale reported by the provider.

	TOTPSecret string `gorm:"type:text"` // Optional enrolled TOTP secret.

	LastLogin *time.Time ``                                 // Last successful login.
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`   // Creation timestamp.
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime"`   // Last update timestamp.
}

// Sanitized returns a copy safe to serialize to clients.
func (u User) Sanitized() User {
	u.Password = ""
	u.TOTPSecret = ""
	return u
}
