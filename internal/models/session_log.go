package models

import "time"

// Session log outcomes.
const (
	SessionLogSuccess = "success"
	SessionLogFailed  = "failed"
)

// ActorUnknown is recorded when a login attempt matched no user.
const ActorUnknown = "unknown"

// SessionLog is an immutable record of one login attempt.
type SessionLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:text;not null;index"` // Matched user ID, or "unknown".
	Username string `gorm:"type:text;not null"`       // Username or email presented.
	Email    string `gorm:"type:text;not null"`       // Email presented.
	Role     string `gorm:"type:text;not null"`       // Role of the matched user, or "unknown".

	Status  string `gorm:"type:text;not null;index"` // success | failed.
	Message string `gorm:"type:text"`                // Human-readable reason.

	IPAddress    string `gorm:"type:text;index"`                  // Source IP.
	UserAgent    string `gorm:"type:text"`                        // Client user agent.
	AuthProvider string `gorm:"type:text;not null;default:local"` // local | local+duo | google.
	LatencyMs    int64  `gorm:"not null;default:0"`               // Validation latency in milliseconds.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Attempt timestamp.
}
