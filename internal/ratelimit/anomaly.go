package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/models"
)

const (
	featureWindow   = time.Minute
	anomalyCooldown = 5 * time.Minute
)

// Features summarizes an identifier's recent login behavior for the scorer.
type Features struct {
	RequestsPerMinute int     `json:"requests_per_minute"`
	FailureRatio      float64 `json:"failure_ratio"`
	DistinctUsernames int     `json:"distinct_usernames"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
}

// scoreResponse is the scorer's verdict.
type scoreResponse struct {
	Anomaly bool    `json:"anomaly"`
	Score   float64 `json:"score"`
}

// AnomalyScorer submits behavioral features to an external classifier.
// The scorer is advisory: any transport or decode failure allows the
// attempt (fail open), since login availability outranks this control.
type AnomalyScorer struct {
	db     *gorm.DB
	cfg    config.ScorerConfig
	client *http.Client
	nowFn  func() time.Time
}

// NewAnomalyScorer constructs the scorer client. A zero URL disables it.
func NewAnomalyScorer(db *gorm.DB, cfg config.ScorerConfig) *AnomalyScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AnomalyScorer{
		db:     db,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		nowFn:  time.Now,
	}
}

// Enabled reports whether a scorer endpoint is configured.
func (s *AnomalyScorer) Enabled() bool {
	return s != nil && s.cfg.URL != ""
}

// CollectFeatures aggregates the IP's session log entries over the trailing
// one-minute window.
func (s *AnomalyScorer) CollectFeatures(ctx context.Context, ip string) (Features, error) {
	since := s.nowFn().UTC().Add(-featureWindow)

	var rows []models.SessionLog
	errFind := s.db.WithContext(ctx).
		Where("ip_address = ? AND created_at >= ?", ip, since).
		Find(&rows).Error
	if errFind != nil {
		return Features{}, fmt.Errorf("ratelimit: collect features: %w", errFind)
	}

	features := Features{RequestsPerMinute: len(rows)}
	if len(rows) == 0 {
		return features, nil
	}

	failed := 0
	var totalLatency int64
	usernames := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.Status == models.SessionLogFailed {
			failed++
		}
		totalLatency += row.LatencyMs
		usernames[row.Username] = struct{}{}
	}
	features.FailureRatio = float64(failed) / float64(len(rows))
	features.DistinctUsernames = len(usernames)
	features.AvgLatencyMs = float64(totalLatency) / float64(len(rows))
	return features, nil
}

// Score submits the features and returns the verdict. The boolean result
// is false (not anomalous) on any upstream failure.
func (s *AnomalyScorer) Score(ctx context.Context, ip string, features Features) (bool, float64) {
	payload, errMarshal := json.Marshal(map[string]any{
		"identifier": ip,
		"features":   features,
	})
	if errMarshal != nil {
		return false, 0
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if errReq != nil {
		log.WithError(errReq).Warn("anomaly scorer: request build failed")
		return false, 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := s.client.Do(req)
	if errDo != nil {
		log.WithError(errDo).Warn("anomaly scorer: unreachable, failing open")
		return false, 0
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Warn("anomaly scorer: unexpected status, failing open")
		return false, 0
	}

	var verdict scoreResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&verdict); errDecode != nil {
		log.WithError(errDecode).Warn("anomaly scorer: decode failed, failing open")
		return false, 0
	}
	return verdict.Anomaly, verdict.Score
}
