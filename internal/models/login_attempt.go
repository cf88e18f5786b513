package models

import "time"

// Identifier types tracked by the rate limiter.
const (
	AttemptTypeIP       = "ip"
	AttemptTypeEmail    = "email"
	AttemptTypeCombined = "combined"
)

// LoginAttempt tracks throttling state for one identifier.
type LoginAttempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Identifier string `gorm:"type:text;not null;uniqueIndex:idx_login_attempts_identifier_type"` // IP, email, or composite.
	Type       string `gorm:"type:text;not null;uniqueIndex:idx_login_attempts_identifier_type"` // ip | email | combined.

	Count        int        `gorm:"not null;default:0"`     // Cumulative attempt count since last reset.
	FirstAttempt time.Time  `gorm:"not null"`               // First attempt in the current streak.
	LastAttempt  time.Time  `gorm:"not null;index"`         // Most recent attempt.
	Blocked      bool       `gorm:"not null;default:false"` // Lockout flag.
	BlockUntil   *time.Time ``                              // Lockout expiry when blocked.

	SuccessCount int        `gorm:"not null;default:0"` // Successful logins recorded for the identifier.
	LastSuccess  *time.Time ``                          // Most recent successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
