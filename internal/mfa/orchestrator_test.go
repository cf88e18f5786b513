package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/security"
)

type fakeUsers struct {
	user *models.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uint64) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, autherr.ErrNotFound
	}
	return f.user, nil
}

// fakeDuoServer answers the token endpoint with a signed id_token carrying
// the given verdict.
func fakeDuoServer(t *testing.T, secret, email, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/oauth/v1/token") {
			http.NotFound(w, r)
			return
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"preferred_username": email,
			"auth_result":        map[string]any{"status": status},
			"exp":                time.Now().Add(time.Minute).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Errorf("sign id token: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": signed})
	}))
}

func newOrchestrator(t *testing.T, duoURL string) (*Orchestrator, *security.TokenService) {
	t.Helper()
	tokens, err := security.NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	duo := NewDuoClient(config.DuoConfig{
		ClientID:     "client-id",
		ClientSecret: "duo-secret",
		APIHost:      duoURL,
		RedirectURL:  "http://localhost/auth/mfa/callback",
	})
	users := &fakeUsers{user: &models.User{
		ID: 42, Username: "alice", Email: "alice@example.com", Role: models.RoleUser,
	}}
	return NewOrchestrator(NewMemoryStore(), duo, tokens, users), tokens
}

func TestResolveChallengeAllow(t *testing.T) {
	server := fakeDuoServer(t, "duo-secret", "alice@example.com", "allow")
	defer server.Close()

	o, tokens := newOrchestrator(t, server.URL)

	redirectURL, err := o.BeginChallenge(context.Background(), 42, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
	state := stateFromRedirect(t, redirectURL)

	outcome, token, err := o.ResolveChallenge(context.Background(), state, "provider-code")
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	if outcome != OutcomeAllowed || token == "" {
		t.Fatalf("outcome = %v token=%q, want allowed with token", outcome, token)
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if !claims.MFACompleted() {
		t.Error("issued token missing completed-MFA claim")
	}
	if claims.AuthProvider != models.ProviderLocalDuo {
		t.Errorf("auth provider = %q, want %q", claims.AuthProvider, models.ProviderLocalDuo)
	}
}

func TestResolveChallengeAtMostOnce(t *testing.T) {
	server := fakeDuoServer(t, "duo-secret", "alice@example.com", "allow")
	defer server.Close()

	o, _ := newOrchestrator(t, server.URL)

	redirectURL, err := o.BeginChallenge(context.Background(), 42, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
	state := stateFromRedirect(t, redirectURL)

	if outcome, _, err := o.ResolveChallenge(context.Background(), state, "code"); err != nil || outcome != OutcomeAllowed {
		t.Fatalf("first resolve = %v/%v, want allowed", outcome, err)
	}
	outcome, _, err := o.ResolveChallenge(context.Background(), state, "code")
	if !errors.Is(err, autherr.ErrChallengeInvalid) {
		t.Fatalf("replay err = %v, want ErrChallengeInvalid", err)
	}
	if outcome != OutcomeDenied {
		t.Errorf("replay outcome = %v, want denied", outcome)
	}
}

func TestResolveChallengeDenied(t *testing.T) {
	server := fakeDuoServer(t, "duo-secret", "alice@example.com", "deny")
	defer server.Close()

	o, _ := newOrchestrator(t, server.URL)

	redirectURL, err := o.BeginChallenge(context.Background(), 42, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
	outcome, token, err := o.ResolveChallenge(context.Background(), stateFromRedirect(t, redirectURL), "code")
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	if outcome != OutcomeDenied || token != "" {
		t.Errorf("outcome = %v token=%q, want denied without token", outcome, token)
	}
}

func TestResolveChallengeProviderFailure(t *testing.T) {
	o, _ := newOrchestrator(t, "http://127.0.0.1:1")

	redirectURL, err := o.BeginChallenge(context.Background(), 42, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
	outcome, token, err := o.ResolveChallenge(context.Background(), stateFromRedirect(t, redirectURL), "code")
	if !errors.Is(err, autherr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if outcome != OutcomeError || token != "" {
		t.Errorf("outcome = %v token=%q, want error without token", outcome, token)
	}
}

func stateFromRedirect(t *testing.T, redirectURL string) string {
	t.Helper()
	idx := strings.Index(redirectURL, "state=")
	if idx < 0 {
		t.Fatalf("redirect %q has no state parameter", redirectURL)
	}
	state := redirectURL[idx+len("state="):]
	if amp := strings.Index(state, "&"); amp >= 0 {
		state = state[:amp]
	}
	return state
}
