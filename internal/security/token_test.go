package security

import (
	"errors"
	"testing"
	"time"

	"github.com/caronline/vehiclesvc/internal/autherr"
)

func newTestService(t *testing.T, expiry time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", expiry)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t, time.Hour)

	issued := SessionClaims{
		UserID:       "42",
		Username:     "alice",
		Email:        "alice@x.com",
		Role:         "user",
		AuthProvider: "local",
		MFA:          true,
	}
	token, err := svc.Issue(issued)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "42" || claims.Username != "alice" || claims.Email != "alice@x.com" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.Role != "user" || claims.AuthProvider != "local" {
		t.Fatalf("unexpected role/provider claims: %+v", claims)
	}
	if !claims.MFACompleted() {
		t.Fatalf("expected completed MFA claim")
	}
}

func TestVerifyExpiredDistinctFromInvalid(t *testing.T) {
	svc := newTestService(t, time.Minute)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.nowFn = func() time.Time { return issuedAt }
	token, err := svc.Issue(SessionClaims{UserID: "1", Username: "bob"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.nowFn = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := svc.Verify(token); !errors.Is(err, autherr.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	svc.nowFn = func() time.Time { return issuedAt }
	if _, err := svc.Verify(token + "tampered"); !errors.Is(err, autherr.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyWrongSecretIsInvalid(t *testing.T) {
	issuer := newTestService(t, time.Hour)
	verifier := newTestService(t, time.Hour)
	verifier.secret = []byte("other-secret")

	token, err := issuer.Issue(SessionClaims{UserID: "1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, autherr.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestMFACompletedLegacyString(t *testing.T) {
	claims := &SessionClaims{MFA: "true"}
	if !claims.MFACompleted() {
		t.Fatalf("expected legacy string claim to count as completed")
	}
	claims = &SessionClaims{MFA: "false"}
	if claims.MFACompleted() {
		t.Fatalf("expected string false to be incomplete")
	}
	claims = &SessionClaims{}
	if claims.MFACompleted() {
		t.Fatalf("expected missing claim to be incomplete")
	}
}

func TestDecodeUnverified(t *testing.T) {
	svc := newTestService(t, time.Hour)
	token, err := svc.Issue(SessionClaims{UserID: "9", Username: "carol"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims := svc.DecodeUnverified(token)
	if claims == nil || claims.Username != "carol" {
		t.Fatalf("expected decoded claims, got %+v", claims)
	}
	if svc.DecodeUnverified("not-a-token") != nil {
		t.Fatalf("expected nil for malformed token")
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "secret1" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !VerifyPassword("secret1", hash) {
		t.Fatalf("expected correct password to verify")
	}
	if VerifyPassword("secret2", hash) {
		t.Fatalf("expected wrong password to fail")
	}
	if VerifyPassword("secret1", "") {
		t.Fatalf("expected empty stored hash to fail")
	}
}
