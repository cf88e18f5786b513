package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/mfa"
	"github.com/caronline/vehiclesvc/internal/models"
)

func TestRegisterThenLoginAndReadPermissions(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/auth/register", map[string]any{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "secret1",
	}, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email":    "alice@x.com",
		"password": "secret1",
	}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login response missing token")
	}

	claims, err := env.tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Role != models.RoleUser || !claims.MFACompleted() {
		t.Errorf("claims = role %q mfa %v, want user/true", claims.Role, claims.MFACompleted())
	}

	resp = env.do(t, http.MethodGet, "/permissions/user", nil, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("permissions status = %d body=%s", resp.Code, resp.Body.String())
	}
	perms := decodeBody(t, resp)
	if canRead, _ := perms["canRead"].(bool); !canRead {
		t.Errorf("user role canRead = %v, want true: %s", perms["canRead"], resp.Body.String())
	}
	if canDelete, _ := perms["canDelete"].(bool); canDelete {
		t.Error("user role canDelete = true, want false")
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing fields", map[string]any{"username": "x"}},
		{"bad email", map[string]any{"username": "x", "email": "not-an-email", "password": "secret1"}},
		{"short password", map[string]any{"username": "x", "email": "x@example.com", "password": "abc"}},
	}
	for _, tc := range cases {
		resp := env.do(t, http.MethodPost, "/auth/register", tc.body, nil)
		if resp.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.Code)
		}
	}

	ok := map[string]any{"username": "bob", "email": "bob@example.com", "password": "secret1"}
	if resp := env.do(t, http.MethodPost, "/auth/register", ok, nil); resp.Code != http.StatusCreated {
		t.Fatalf("register status = %d", resp.Code)
	}
	if resp := env.do(t, http.MethodPost, "/auth/register", ok, nil); resp.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.Code)
	}
}

func TestLoginGenericFailureMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAdmin(t)

	// Unknown user and wrong password must be indistinguishable. Different
	// source IPs keep the requests clear of each other's backoff window.
	unknown := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "ghost@example.com", "password": "whatever",
	}, map[string]string{"X-Forwarded-For": "203.0.113.1"})
	wrongPassword := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "root@example.com", "password": "wrong",
	}, map[string]string{"X-Forwarded-For": "203.0.113.2"})

	if unknown.Code != http.StatusUnauthorized || wrongPassword.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d/%d, want 401/401", unknown.Code, wrongPassword.Code)
	}
	if unknown.Body.String() != wrongPassword.Body.String() {
		t.Errorf("failure bodies differ: %s vs %s", unknown.Body.String(), wrongPassword.Body.String())
	}
}

func TestLoginRateLimitedThenRecovers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAdmin(t)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.77"}

	first := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "root@example.com", "password": "wrong",
	}, headers)
	if first.Code != http.StatusUnauthorized {
		t.Fatalf("first attempt status = %d, want 401", first.Code)
	}

	// Immediate retry is inside the 1s backoff window.
	second := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "root@example.com", "password": "wrong",
	}, headers)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt status = %d, want 429", second.Code)
	}
	body := decodeBody(t, second)
	if wait, _ := body["waitTime"].(float64); wait <= 0 {
		t.Errorf("waitTime = %v, want > 0", body["waitTime"])
	}

	// After the window a correct-credential attempt succeeds and resets
	// the identifier.
	time.Sleep(1100 * time.Millisecond)
	third := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "root@example.com", "password": "admin-secret",
	}, headers)
	if third.Code != http.StatusOK {
		t.Fatalf("recovery attempt status = %d body=%s", third.Code, third.Body.String())
	}

	var attempt models.LoginAttempt
	if err := env.db.Where("identifier = ?", "203.0.113.77").Take(&attempt).Error; err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if attempt.Count != 0 || attempt.SuccessCount != 1 {
		t.Errorf("attempt after success = count %d successes %d, want 0/1", attempt.Count, attempt.SuccessCount)
	}
}

func TestLoginSimulatedMFAWhenUnconfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAdmin(t)

	resp := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "root@example.com", "password": "admin-secret", "mfa": true,
	}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	if body["mfa"] != "simulated" {
		t.Errorf("mfa = %v, want simulated marker", body["mfa"])
	}
	if body["token"] == "" || body["token"] == nil {
		t.Error("simulated MFA login missing token")
	}
}

func TestLoginMFARedirectWhenConfigured(t *testing.T) {
	duoCfg := config.DuoConfig{
		ClientID:     "client-id",
		ClientSecret: "duo-secret",
		APIHost:      "api-xyz.duosecurity.com",
		RedirectURL:  "http://localhost:8080/auth/mfa/callback",
	}
	env := newTestEnv(t, func(s *Services) {
		s.DuoCfg = duoCfg
		s.MFA = mfa.NewOrchestrator(mfa.NewMemoryStore(), mfa.NewDuoClient(duoCfg), s.Tokens, s.Users)
	})
	env.seedAdmin(t)

	resp := env.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email": "root@example.com", "password": "admin-secret", "mfa": true,
	}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	if required, _ := body["mfaRequired"].(bool); !required {
		t.Fatalf("mfaRequired = %v, want true", body["mfaRequired"])
	}
	redirectURL, _ := body["redirectUrl"].(string)
	if !strings.Contains(redirectURL, "api-xyz.duosecurity.com/oauth/v1/authorize") {
		t.Errorf("redirectUrl = %q, want provider authorize URL", redirectURL)
	}
	if body["token"] != nil {
		t.Error("challenge response leaked a token")
	}
}

func TestDuoCallbackRedirects(t *testing.T) {
	env := newTestEnv(t, nil)

	// Bad state resolves to a denied redirect.
	resp := env.do(t, http.MethodGet, "/auth/mfa/callback?state=bogus&duo_code=abc", nil, nil)
	if resp.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want 302", resp.Code)
	}
	location := resp.Header().Get("Location")
	if !strings.HasPrefix(location, "http://localhost:5173/auth/callback?") || !strings.Contains(location, "mfa=denied") {
		t.Errorf("location = %q, want front-end redirect with mfa=denied", location)
	}

	// Missing parameters resolve to an error redirect.
	resp = env.do(t, http.MethodGet, "/auth/mfa/callback", nil, nil)
	if location := resp.Header().Get("Location"); !strings.Contains(location, "mfa=error") {
		t.Errorf("location = %q, want mfa=error", location)
	}
}

func TestAuthGuardReasonCodes(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedAdmin(t)

	// No token.
	resp := env.do(t, http.MethodGet, "/permissions/me", nil, nil)
	if resp.Code != http.StatusUnauthorized || decodeBody(t, resp)["code"] != "no_token" {
		t.Errorf("no token = %d %s, want 401 no_token", resp.Code, resp.Body.String())
	}

	// Garbage token.
	resp = env.do(t, http.MethodGet, "/permissions/me", nil, bearer("not.a.jwt"))
	if resp.Code != http.StatusUnauthorized || decodeBody(t, resp)["code"] != "jwt_invalid" {
		t.Errorf("invalid token = %d %s, want 401 jwt_invalid", resp.Code, resp.Body.String())
	}

	// Expired token, signed with the right secret.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "1", "role": models.RoleUser, "mfa": true,
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	resp = env.do(t, http.MethodGet, "/permissions/me", nil, bearer(expiredToken))
	if resp.Code != http.StatusUnauthorized || decodeBody(t, resp)["code"] != "jwt_expired" {
		t.Errorf("expired token = %d %s, want 401 jwt_expired", resp.Code, resp.Body.String())
	}

	// Valid token without a completed-MFA claim.
	resp = env.do(t, http.MethodGet, "/permissions/me", nil, bearer(env.mintToken(t, admin, false)))
	if resp.Code != http.StatusForbidden || decodeBody(t, resp)["code"] != "mfa_required" {
		t.Errorf("mfa missing = %d %s, want 403 mfa_required", resp.Code, resp.Body.String())
	}

	// Legacy string-encoded claim still passes.
	resp = env.do(t, http.MethodGet, "/permissions/me", nil, bearer(env.mintToken(t, admin, "true")))
	if resp.Code != http.StatusOK {
		t.Errorf("legacy claim = %d, want 200", resp.Code)
	}
}

func TestCheckUsernameAndGetUser(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedAdmin(t)
	token := env.mintToken(t, admin, true)

	resp := env.do(t, http.MethodGet, "/auth/check/root", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("check status = %d", resp.Code)
	}
	if exists, _ := decodeBody(t, resp)["exists"].(bool); !exists {
		t.Error("existing username reported absent")
	}

	resp = env.do(t, http.MethodGet, "/auth/check/nobody", nil, nil)
	if exists, _ := decodeBody(t, resp)["exists"].(bool); exists {
		t.Error("unknown username reported present")
	}

	resp = env.do(t, http.MethodGet, "/auth/user/"+strconv.FormatUint(admin.ID, 10), nil, bearer(token))
	if resp.Code != http.StatusOK {
		t.Fatalf("get user status = %d body=%s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	user, _ := body["user"].(map[string]any)
	if user["Password"] != "" && user["Password"] != nil {
		t.Error("user payload leaked password hash")
	}

	resp = env.do(t, http.MethodGet, "/auth/user/999999", nil, bearer(token))
	if resp.Code != http.StatusNotFound {
		t.Errorf("missing user status = %d, want 404", resp.Code)
	}
}
