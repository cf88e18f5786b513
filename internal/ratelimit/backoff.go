// Package ratelimit throttles login attempts per identifier. A
// deterministic exponential-backoff policy is the primary gate; an
// external anomaly scorer augments it as an advisory, fail-open check.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caronline/vehiclesvc/internal/db"
	"github.com/caronline/vehiclesvc/internal/models"
)

const (
	baseDelay      = time.Second
	blockThreshold = 5
)

// Decision reports whether an attempt may proceed.
type Decision struct {
	Allowed bool          `json:"allowed"`
	Wait    time.Duration `json:"-"`
	Blocked bool          `json:"blocked"`

	// Anomaly scorer output, when consulted.
	Scored bool    `json:"scored"`
	Score  float64 `json:"score"`
}

// WaitSeconds rounds the remaining wait up to whole seconds for clients.
func (d Decision) WaitSeconds() int64 {
	if d.Wait <= 0 {
		return 0
	}
	return int64((d.Wait + time.Second - 1) / time.Second)
}

// Backoff applies the deterministic exponential-backoff policy.
// Per-identifier updates run inside a locking transaction so concurrent
// attempts cannot both observe the same count.
type Backoff struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewBackoff constructs the backoff limiter.
func NewBackoff(db *gorm.DB) *Backoff {
	return &Backoff{db: db, nowFn: time.Now}
}

// lockForUpdate adds a row lock on dialects that support one. SQLite has a
// single writer, so the transaction alone serializes there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if db.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// requiredWait doubles per recorded attempt: 1s, 2s, 4s, ...
func requiredWait(count int) time.Duration {
	if count < 1 {
		return 0
	}
	if count > 30 {
		count = 30
	}
	return baseDelay * time.Duration(1<<uint(count-1))
}

// Check registers one attempt for the identifier and decides whether it
// may proceed. The attempt that crosses the block threshold is still
// allowed; the lockout applies from the next attempt on.
func (b *Backoff) Check(ctx context.Context, identifier, attemptType string) (Decision, error) {
	now := b.nowFn().UTC()
	decision := Decision{Allowed: true}

	errTx := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt models.LoginAttempt
		errFind := lockForUpdate(tx).
			Where("identifier = ? AND type = ?", identifier, attemptType).
			Take(&attempt).Error
		if errFind != nil {
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return fmt.Errorf("ratelimit: load attempt: %w", errFind)
			}
			attempt = models.LoginAttempt{
				Identifier:   identifier,
				Type:         attemptType,
				Count:        1,
				FirstAttempt: now,
				LastAttempt:  now,
			}
			if errCreate := tx.Create(&attempt).Error; errCreate != nil {
				return fmt.Errorf("ratelimit: create attempt: %w", errCreate)
			}
			return nil
		}

		if attempt.Blocked && attempt.BlockUntil != nil && now.Before(*attempt.BlockUntil) {
			decision = Decision{Allowed: false, Blocked: true, Wait: attempt.BlockUntil.Sub(now)}
			return nil
		}

		wait := requiredWait(attempt.Count)
		if elapsed := now.Sub(attempt.LastAttempt); elapsed < wait {
			decision = Decision{Allowed: false, Wait: wait - elapsed}
			return nil
		}

		attempt.Count++
		attempt.LastAttempt = now
		if attempt.Count >= blockThreshold {
			blockUntil := now.Add(requiredWait(attempt.Count))
			attempt.Blocked = true
			attempt.BlockUntil = &blockUntil
			decision.Blocked = true
		} else {
			attempt.Blocked = false
			attempt.BlockUntil = nil
		}
		if errSave := tx.Save(&attempt).Error; errSave != nil {
			return fmt.Errorf("ratelimit: save attempt: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return Decision{}, errTx
	}
	return decision, nil
}

// BlockFor forces a lockout on the identifier for the given duration.
// Used by the anomaly policy's cool-down.
func (b *Backoff) BlockFor(ctx context.Context, identifier, attemptType string, d time.Duration) error {
	now := b.nowFn().UTC()
	blockUntil := now.Add(d)

	errTx := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt models.LoginAttempt
		errFind := lockForUpdate(tx).
			Where("identifier = ? AND type = ?", identifier, attemptType).
			Take(&attempt).Error
		if errFind != nil {
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errFind
			}
			attempt = models.LoginAttempt{
				Identifier:   identifier,
				Type:         attemptType,
				Count:        1,
				FirstAttempt: now,
				LastAttempt:  now,
				Blocked:      true,
				BlockUntil:   &blockUntil,
			}
			return tx.Create(&attempt).Error
		}
		attempt.Blocked = true
		attempt.BlockUntil = &blockUntil
		attempt.LastAttempt = now
		return tx.Save(&attempt).Error
	})
	if errTx != nil {
		return fmt.Errorf("ratelimit: block: %w", errTx)
	}
	return nil
}

// ResetAttempts clears the identifier's streak after a verified login and
// records the success.
func (b *Backoff) ResetAttempts(ctx context.Context, identifier, attemptType string) error {
	now := b.nowFn().UTC()
	errUpdate := b.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("identifier = ? AND type = ?", identifier, attemptType).
		Updates(map[string]any{
			"count":         0,
			"blocked":       false,
			"block_until":   nil,
			"success_count": gorm.Expr("success_count + 1"),
			"last_success":  now,
		}).Error
	if errUpdate != nil {
		return fmt.Errorf("ratelimit: reset: %w", errUpdate)
	}
	return nil
}

// CleanupOldAttempts purges records untouched for daysOld days that saw at
// least one success. Zero-success records are persistent abuse sources and
// are kept. Returns the number of rows removed.
func (b *Backoff) CleanupOldAttempts(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 1 {
		daysOld = 1
	}
	cutoff := b.nowFn().UTC().AddDate(0, 0, -daysOld)
	result := b.db.WithContext(ctx).
		Where("last_attempt < ? AND success_count > 0", cutoff).
		Delete(&models.LoginAttempt{})
	if result.Error != nil {
		return 0, fmt.Errorf("ratelimit: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
