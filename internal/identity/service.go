// Package identity validates credentials, creates accounts, and links
// external identities against the credential store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/security"
)

// Service owns user lookup, credential validation, and account creation.
type Service struct {
	db       *gorm.DB
	recorder *Recorder
	nowFn    func() time.Time
}

// NewService constructs an identity Service.
func NewService(db *gorm.DB, recorder *Recorder) *Service {
	return &Service{db: db, recorder: recorder, nowFn: time.Now}
}

// ExternalProfile is a verified identity returned by an external provider.
type ExternalProfile struct {
	ProviderID string
	Email      string
	Name       string
	Avatar     string
	Locale     string
}

// ValidateCredentials looks up an active user by username or email and
// checks the password. Every attempt is recorded to the session log; log
// failures never abort validation. The returned user is sanitized.
func (s *Service) ValidateCredentials(ctx context.Context, usernameOrEmail, password, ip, userAgent string) (*models.User, error) {
	start := s.nowFn()
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)

	var user models.User
	errFind := s.db.WithContext(ctx).
		Where("(username = ? OR email = ?) AND active = ?", usernameOrEmail, usernameOrEmail, true).
		Take(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("identity: lookup: %w", errFind)
		}
		s.recordAttempt(ctx, models.SessionLog{
			UserID:       models.ActorUnknown,
			Username:     usernameOrEmail,
			Email:        usernameOrEmail,
			Role:         models.ActorUnknown,
			Status:       models.SessionLogFailed,
			Message:      "user not found or inactive",
			IPAddress:    ip,
			UserAgent:    userAgent,
			AuthProvider: models.ProviderLocal,
		}, start)
		return nil, autherr.ErrNotFound
	}

	if !security.VerifyPassword(password, user.Password) {
		s.recordAttempt(ctx, models.SessionLog{
			UserID:       strconv.FormatUint(user.ID, 10),
			Username:     user.Username,
			Email:        user.Email,
			Role:         user.Role,
			Status:       models.SessionLogFailed,
			Message:      "wrong password",
			IPAddress:    ip,
			UserAgent:    userAgent,
			AuthProvider: models.ProviderLocal,
		}, start)
		return nil, autherr.ErrBadCredentials
	}

	now := s.nowFn().UTC()
	if errUpdate := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("last_login", now).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("identity: last login update failed")
	}
	user.LastLogin = &now

	s.recordAttempt(ctx, models.SessionLog{
		UserID:       strconv.FormatUint(user.ID, 10),
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		Status:       models.SessionLogSuccess,
		Message:      "login ok",
		IPAddress:    ip,
		UserAgent:    userAgent,
		AuthProvider: models.ProviderLocal,
	}, start)

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// CreateUser registers a local account. Fails with autherr.ErrConflict when
// the username or email is taken.
func (s *Service) CreateUser(ctx context.Context, username, email, password, role string, active bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if role != models.RoleAdmin {
		role = models.RoleUser
	}

	var count int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; errCount != nil {
		return nil, fmt.Errorf("identity: conflict check: %w", errCount)
	}
	if count > 0 {
		return nil, autherr.ErrConflict
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, fmt.Errorf("identity: %w", errHash)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		Password:     hash,
		Role:         role,
		Active:       active,
		AuthProvider: models.ProviderLocal,
	}
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		// Unique index races surface here; report them as conflicts.
		return nil, autherr.ErrConflict
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}

// GetUserByID returns the sanitized user or autherr.ErrNotFound.
func (s *Service) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Take(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, autherr.ErrNotFound
		}
		return nil, fmt.Errorf("identity: lookup: %w", errFind)
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}

// UserExists reports whether a user matches the username or email.
func (s *Service) UserExists(ctx context.Context, usernameOrEmail string) (bool, error) {
	var count int64
	errCount := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ? OR email = ?", usernameOrEmail, usernameOrEmail).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("identity: exists check: %w", errCount)
	}
	return count > 0, nil
}

// LinkOrCreateFromExternalProfile resolves a verified external profile to a
// local account, creating one when none matches. New usernames are derived
// from the email local-part with numeric suffixes until unique.
func (s *Service) LinkOrCreateFromExternalProfile(ctx context.Context, profile ExternalProfile, ip, userAgent string) (*models.User, bool, error) {
	start := s.nowFn()

	var user models.User
	errFind := s.db.WithContext(ctx).
		Where("google_id = ? OR email = ?", profile.ProviderID, profile.Email).
		Take(&user).Error

	isNew := false
	switch {
	case errFind == nil:
		if user.GoogleID == nil {
			providerID := profile.ProviderID
			updates := map[string]any{
				"google_id":     providerID,
				"auth_provider": models.ProviderGoogle,
				"google_name":   profile.Name,
				"google_avatar": profile.Avatar,
				"google_locale": profile.Locale,
			}
			if errLink := s.db.WithContext(ctx).
				Model(&models.User{}).
				Where("id = ?", user.ID).
				Updates(updates).Error; errLink != nil {
				return nil, false, fmt.Errorf("identity: link external profile: %w", errLink)
			}
			user.GoogleID = &providerID
			user.AuthProvider = models.ProviderGoogle
			user.GoogleName = profile.Name
			user.GoogleAvatar = profile.Avatar
			user.GoogleLocale = profile.Locale
		}
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		isNew = true
		username, errName := s.uniqueUsernameFromEmail(ctx, profile.Email)
		if errName != nil {
			return nil, false, errName
		}
		placeholder, errPwd := security.RandomPlaceholderPassword()
		if errPwd != nil {
			return nil, false, fmt.Errorf("identity: %w", errPwd)
		}
		providerID := profile.ProviderID
		user = models.User{
			Username:     username,
			Email:        profile.Email,
			Password:     placeholder,
			Role:         models.RoleUser,
			Active:       true,
			AuthProvider: models.ProviderGoogle,
			GoogleID:     &providerID,
			GoogleName:   profile.Name,
			GoogleAvatar: profile.Avatar,
			GoogleLocale: profile.Locale,
		}
		if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
			return nil, false, fmt.Errorf("identity: create external user: %w", errCreate)
		}
	default:
		return nil, false, fmt.Errorf("identity: external lookup: %w", errFind)
	}

	now := s.nowFn().UTC()
	if errUpdate := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("last_login", now).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("identity: last login update failed")
	}
	user.LastLogin = &now

	s.recordAttempt(ctx, models.SessionLog{
		UserID:       strconv.FormatUint(user.ID, 10),
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		Status:       models.SessionLogSuccess,
		Message:      "google login ok",
		IPAddress:    ip,
		UserAgent:    userAgent,
		AuthProvider: models.ProviderGoogle,
	}, start)

	sanitized := user.Sanitized()
	return &sanitized, isNew, nil
}

// RecordFailure appends a failed-attempt session log entry on behalf of a
// collaborating flow (MFA, external auth).
func (s *Service) RecordFailure(ctx context.Context, usernameOrEmail, message, provider, ip, userAgent string) {
	s.recordAttempt(ctx, models.SessionLog{
		UserID:       models.ActorUnknown,
		Username:     usernameOrEmail,
		Email:        usernameOrEmail,
		Role:         models.ActorUnknown,
		Status:       models.SessionLogFailed,
		Message:      message,
		IPAddress:    ip,
		UserAgent:    userAgent,
		AuthProvider: provider,
	}, s.nowFn())
}

func (s *Service) uniqueUsernameFromEmail(ctx context.Context, email string) (string, error) {
	base := email
	if at := strings.Index(email, "@"); at > 0 {
		base = email[:at]
	}
	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if errCount := s.db.WithContext(ctx).
			Model(&models.User{}).
			Where("username = ?", candidate).
			Count(&count).Error; errCount != nil {
			return "", fmt.Errorf("identity: username probe: %w", errCount)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, suffix)
	}
}

func (s *Service) recordAttempt(ctx context.Context, entry models.SessionLog, start time.Time) {
	entry.LatencyMs = s.nowFn().Sub(start).Milliseconds()
	if entry.LatencyMs < 0 {
		entry.LatencyMs = 0
	}
	s.recorder.Record(ctx, entry)
}
