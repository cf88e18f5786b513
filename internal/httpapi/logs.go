package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/ratelimit"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

// LogsHandler serves the session and endpoint log reporting surface.
type LogsHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
}

// NewLogsHandler constructs the logs handler.
func NewLogsHandler(conn *gorm.DB, limiter *ratelimit.Limiter) *LogsHandler {
	return &LogsHandler{db: conn, limiter: limiter}
}

// ListSessions returns recent session log entries, newest first.
// Filters: ?status=success|failed, ?user=, ?limit=.
func (h *LogsHandler) ListSessions(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.SessionLog{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if user := c.Query("user"); user != "" {
		query = query.Where("user_id = ? OR username = ?", user, user)
	}

	var entries []models.SessionLog
	if errFind := query.Order("id DESC").Limit(pageSize(c)).Find(&entries).Error; errFind != nil {
		log.WithError(errFind).Error("logs: session list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list session logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// SessionStats aggregates login outcomes over a trailing window (default
// 24 hours, ?hours= to change).
func (h *LogsHandler) SessionStats(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
		hours = parsed
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	ctx := c.Request.Context()

	var total, failed, distinctIPs int64
	if errCount := h.db.WithContext(ctx).Model(&models.SessionLog{}).
		Where("created_at >= ?", since).Count(&total).Error; errCount != nil {
		log.WithError(errCount).Error("logs: stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not compute stats"})
		return
	}
	if errCount := h.db.WithContext(ctx).Model(&models.SessionLog{}).
		Where("created_at >= ? AND status = ?", since, models.SessionLogFailed).
		Count(&failed).Error; errCount != nil {
		log.WithError(errCount).Error("logs: stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not compute stats"})
		return
	}
	if errCount := h.db.WithContext(ctx).Model(&models.SessionLog{}).
		Where("created_at >= ?", since).
		Distinct("ip_address").Count(&distinctIPs).Error; errCount != nil {
		log.WithError(errCount).Error("logs: stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not compute stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"windowHours": hours,
		"total":       total,
		"failed":      failed,
		"succeeded":   total - failed,
		"distinctIps": distinctIPs,
	})
}

// ListEndpoints returns recent endpoint log entries, newest first.
func (h *LogsHandler) ListEndpoints(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.EndpointLog{})

	if c.Query("errors") == "true" {
		query = query.Where("is_error = ?", true)
	}
	if user := c.Query("user"); user != "" {
		query = query.Where("user_id = ?", user)
	}

	var entries []models.EndpointLog
	if errFind := query.Order("id DESC").Limit(pageSize(c)).Find(&entries).Error; errFind != nil {
		log.WithError(errFind).Error("logs: endpoint list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list endpoint logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// Clean removes session and endpoint log entries older than ?days=
// (default 90) and sweeps stale rate-limit records on the same cutoff.
func (h *LogsHandler) Clean(c *gin.Context) {
	days := 90
	if raw := c.Query("days"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	ctx := c.Request.Context()

	sessions := h.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SessionLog{})
	if sessions.Error != nil {
		log.WithError(sessions.Error).Error("logs: session clean failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	endpoints := h.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.EndpointLog{})
	if endpoints.Error != nil {
		log.WithError(endpoints.Error).Error("logs: endpoint clean failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	attempts, errAttempts := h.limiter.CleanupOldAttempts(ctx, days)
	if errAttempts != nil {
		log.WithError(errAttempts).Error("logs: attempt clean failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionLogsRemoved":  sessions.RowsAffected,
		"endpointLogsRemoved": endpoints.RowsAffected,
		"attemptsRemoved":     attempts,
	})
}

func pageSize(c *gin.Context) int {
	size := defaultLogPageSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 {
			size = parsed
		}
	}
	if size > maxLogPageSize {
		size = maxLogPageSize
	}
	return size
}
