package models

import "time"

// EndpointLog records one handled HTTP request.
type EndpointLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequestID string `gorm:"type:text"`                // Correlation ID assigned per request.
	Method    string `gorm:"type:text;not null"`       // HTTP method.
	Path      string `gorm:"type:text;not null;index"` // Route pattern without parameters.
	URL       string `gorm:"type:text;not null"`       // Full request URL.

	UserID       string `gorm:"type:text;index"` // Authenticated user ID, empty if anonymous.
	Username     string `gorm:"type:text"`       // Authenticated username.
	Role         string `gorm:"type:text"`       // Authenticated role.
	AuthProvider string `gorm:"type:text"`       // Auth provider of the presented token.

	IPAddress string `gorm:"type:text"` // Client IP.
	UserAgent string `gorm:"type:text"` // Client user agent.

	StatusCode int   `gorm:"not null;index"`     // Response status.
	LatencyMs  int64 `gorm:"not null;default:0"` // Handling time in milliseconds.
	BodySize   int   `gorm:"not null;default:0"` // Request body size in bytes.

	IsError bool `gorm:"not null;default:false"` // True for 4xx/5xx responses.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Request timestamp.
}
