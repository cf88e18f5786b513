package ratelimit

import (
	"context"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/models"
)

// Limiter gates login attempts. The deterministic backoff policy decides;
// when an anomaly scorer is configured it runs afterwards as an advisory
// second opinion that can extend the lockout.
type Limiter struct {
	backoff *Backoff
	scorer  *AnomalyScorer
}

// NewLimiter wires the backoff policy and the optional anomaly scorer.
func NewLimiter(db *gorm.DB, scorerCfg config.ScorerConfig) *Limiter {
	return &Limiter{
		backoff: NewBackoff(db),
		scorer:  NewAnomalyScorer(db, scorerCfg),
	}
}

// Check registers an attempt for the identifier and decides admission.
func (l *Limiter) Check(ctx context.Context, identifier, attemptType string) (Decision, error) {
	decision, errCheck := l.backoff.Check(ctx, identifier, attemptType)
	if errCheck != nil {
		return Decision{}, errCheck
	}
	if !decision.Allowed {
		return decision, nil
	}

	if l.scorer.Enabled() && attemptType == models.AttemptTypeIP {
		features, errFeatures := l.scorer.CollectFeatures(ctx, identifier)
		if errFeatures != nil {
			// Feature aggregation failure is treated like scorer failure.
			log.WithError(errFeatures).Warn("anomaly scorer: feature collection failed, failing open")
			return decision, nil
		}
		anomalous, score := l.scorer.Score(ctx, identifier, features)
		decision.Scored = true
		decision.Score = score
		if anomalous {
			if errBlock := l.backoff.BlockFor(ctx, identifier, attemptType, anomalyCooldown); errBlock != nil {
				log.WithError(errBlock).Warn("anomaly scorer: cooldown write failed")
			}
			decision.Allowed = false
			decision.Blocked = true
			decision.Wait = anomalyCooldown
		}
	}
	return decision, nil
}

// ResetAttempts clears the identifier's streak after a verified login.
func (l *Limiter) ResetAttempts(ctx context.Context, identifier, attemptType string) error {
	return l.backoff.ResetAttempts(ctx, identifier, attemptType)
}

// CleanupOldAttempts purges stale, previously-successful records.
func (l *Limiter) CleanupOldAttempts(ctx context.Context, daysOld int) (int64, error) {
	return l.backoff.CleanupOldAttempts(ctx, daysOld)
}
