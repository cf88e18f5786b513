package mfa

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/models"
)

func newTOTPTestService(t *testing.T) (*TOTPService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewTOTPService(db), db
}

func TestTOTPEnrollAndVerify(t *testing.T) {
	svc, db := newTOTPTestService(t)
	user := models.User{Username: "carol", Email: "carol@example.com", Password: "x", Role: models.RoleUser, Active: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	secret, uri, err := svc.Prepare("carol@example.com")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if secret == "" || !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("Prepare = %q/%q", secret, uri)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := svc.Confirm(context.Background(), user.ID, secret, code); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	code, err = totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := svc.VerifyLogin(context.Background(), user.ID, code); err != nil {
		t.Fatalf("VerifyLogin: %v", err)
	}

	if err := svc.VerifyLogin(context.Background(), user.ID, "000000"); !errors.Is(err, autherr.ErrBadCredentials) {
		t.Errorf("bad code err = %v, want ErrBadCredentials", err)
	}

	if err := svc.Disable(context.Background(), user.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := svc.VerifyLogin(context.Background(), user.ID, code); !errors.Is(err, autherr.ErrMFARequired) {
		t.Errorf("unenrolled err = %v, want ErrMFARequired", err)
	}
}

func TestTOTPConfirmRejectsWrongCode(t *testing.T) {
	svc, db := newTOTPTestService(t)
	user := models.User{Username: "dan", Email: "dan@example.com", Password: "x", Role: models.RoleUser, Active: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	secret, _, err := svc.Prepare("dan@example.com")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := svc.Confirm(context.Background(), user.ID, secret, "123456"); !errors.Is(err, autherr.ErrBadCredentials) {
		t.Fatalf("Confirm err = %v, want ErrBadCredentials", err)
	}

	var stored models.User
	if err := db.Take(&stored, user.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.TOTPSecret != "" {
		t.Error("secret persisted despite failed confirmation")
	}
}
