package identity

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/models"
)

// sessionLogDedupWindow suppresses duplicate entries for the same
// actor+outcome recorded within this window, absorbing doubled requests.
const sessionLogDedupWindow = 5 * time.Second

// Recorder appends session log entries. Writes are best-effort: a failed
// write is logged operationally and never fails the caller.
type Recorder struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewRecorder constructs a session log Recorder.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, nowFn: time.Now}
}

// Record writes one session log entry unless an equivalent entry exists
// within the dedup window.
func (r *Recorder) Record(ctx context.Context, entry models.SessionLog) {
	if r == nil || r.db == nil {
		return
	}
	now := r.nowFn().UTC()

	var recent int64
	errCount := r.db.WithContext(ctx).
		Model(&models.SessionLog{}).
		Where("user_id = ? AND email = ? AND status = ? AND created_at >= ?",
			entry.UserID, entry.Email, entry.Status, now.Add(-sessionLogDedupWindow)).
		Count(&recent).Error
	if errCount == nil && recent > 0 {
		return
	}

	entry.CreatedAt = now
	if errCreate := r.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).WithField("user_id", entry.UserID).Warn("session log: write failed")
	}
}
