package mfa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/models"
)

const totpIssuer = "CarOnline"

// TOTPService manages enrolled authenticator-app secrets as an alternative
// second factor for operators who cannot use the redirect flow.
type TOTPService struct {
	db *gorm.DB
}

// NewTOTPService constructs a TOTPService.
func NewTOTPService(db *gorm.DB) *TOTPService {
	return &TOTPService{db: db}
}

// Prepare generates a fresh secret and provisioning URI for enrollment.
// The secret is not persisted until Confirm proves the authenticator works.
func (s *TOTPService) Prepare(email string) (secret, provisionURI string, err error) {
	key, errGen := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: email,
	})
	if errGen != nil {
		return "", "", fmt.Errorf("mfa: generate totp secret: %w", errGen)
	}
	return key.Secret(), key.URL(), nil
}

// Confirm validates the first code against the candidate secret and, on
// success, persists the secret on the account.
func (s *TOTPService) Confirm(ctx context.Context, userID uint64, secret, code string) error {
	if !totp.Validate(strings.TrimSpace(code), secret) {
		return autherr.ErrBadCredentials
	}
	errUpdate := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("totp_secret", secret).Error
	if errUpdate != nil {
		return fmt.Errorf("mfa: persist totp secret: %w", errUpdate)
	}
	return nil
}

// Disable removes the enrolled secret.
func (s *TOTPService) Disable(ctx context.Context, userID uint64) error {
	errUpdate := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("totp_secret", "").Error
	if errUpdate != nil {
		return fmt.Errorf("mfa: disable totp: %w", errUpdate)
	}
	return nil
}

// VerifyLogin checks a login-time code for an enrolled user. Users without
// an enrolled secret fail as ErrMFARequired so callers can route them to
// the redirect flow instead.
func (s *TOTPService) VerifyLogin(ctx context.Context, userID uint64, code string) error {
	var user models.User
	if errFind := s.db.WithContext(ctx).Take(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return autherr.ErrNotFound
		}
		return fmt.Errorf("mfa: load user: %w", errFind)
	}
	if user.TOTPSecret == "" {
		return autherr.ErrMFARequired
	}
	if !totp.Validate(strings.TrimSpace(code), user.TOTPSecret) {
		return autherr.ErrBadCredentials
	}
	return nil
}
