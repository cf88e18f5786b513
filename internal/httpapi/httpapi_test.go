package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/db"
	"github.com/caronline/vehiclesvc/internal/googleauth"
	"github.com/caronline/vehiclesvc/internal/identity"
	"github.com/caronline/vehiclesvc/internal/mfa"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/permissions"
	"github.com/caronline/vehiclesvc/internal/ratelimit"
	"github.com/caronline/vehiclesvc/internal/security"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *security.TokenService
	users  *identity.Service
}

func newTestEnv(t *testing.T, mutate func(*Services)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "vehiclesvc-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	tokens, err := security.NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	users := identity.NewService(conn, identity.NewRecorder(conn))
	limiter := ratelimit.NewLimiter(conn, config.ScorerConfig{})
	totp := mfa.NewTOTPService(conn)
	resolver := permissions.NewResolver(conn)
	duoCfg := config.DuoConfig{}
	orchestrator := mfa.NewOrchestrator(mfa.NewMemoryStore(), mfa.NewDuoClient(duoCfg), tokens, users)
	google := googleauth.NewService(
		googleauth.NewTokenInfoVerifier(config.GoogleConfig{ClientID: "client-123"}), users)

	services := Services{
		DB:          conn,
		Users:       users,
		Tokens:      tokens,
		Limiter:     limiter,
		MFA:         orchestrator,
		TOTP:        totp,
		Google:      google,
		Permissions: resolver,
		DuoCfg:      duoCfg,
		Frontend:    config.FrontendConfig{CallbackURL: "http://localhost:5173/auth/callback"},
	}
	if mutate != nil {
		mutate(&services)
	}

	router := gin.New()
	RegisterRoutes(router, services)
	return &testEnv{router: router, db: conn, tokens: tokens, users: users}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func (e *testEnv) mintToken(t *testing.T, user *models.User, mfaClaim any) string {
	t.Helper()
	token, err := e.tokens.Issue(security.SessionClaims{
		UserID:       strconv.FormatUint(user.ID, 10),
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		AuthProvider: models.ProviderLocal,
		MFA:          mfaClaim,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (e *testEnv) seedAdmin(t *testing.T) *models.User {
	t.Helper()
	hash, err := securityHash(t, "admin-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin := models.User{
		Username: "root", Email: "root@example.com", Password: hash,
		Role: models.RoleAdmin, Active: true, AuthProvider: models.ProviderLocal,
	}
	if errCreate := e.db.Create(&admin).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}
	return &admin
}

func securityHash(t *testing.T, plain string) (string, error) {
	t.Helper()
	return security.HashPassword(plain)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
