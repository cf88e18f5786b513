// Package app boots the service: configuration, database, services, and
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/db"
	"github.com/caronline/vehiclesvc/internal/googleauth"
	"github.com/caronline/vehiclesvc/internal/httpapi"
	"github.com/caronline/vehiclesvc/internal/identity"
	"github.com/caronline/vehiclesvc/internal/mfa"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/permissions"
	"github.com/caronline/vehiclesvc/internal/ratelimit"
	"github.com/caronline/vehiclesvc/internal/security"
)

const shutdownGrace = 10 * time.Second

// RunServer boots the authentication and catalog server.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	tokens, errTokens := security.NewTokenService(jwtCfg.Secret, jwtCfg.Expiry)
	if errTokens != nil {
		return errTokens
	}

	duoCfg, _ := config.LoadDuoConfig(configPath)
	scorerCfg, _ := config.LoadScorerConfig(configPath)
	redisCfg, _ := config.LoadRedisConfig(configPath)
	googleCfg, _ := config.LoadGoogleConfig(configPath)
	frontendCfg, _ := config.LoadFrontendConfig(configPath)

	if !duoCfg.Configured() {
		log.Warn("mfa provider not configured, second factor will be simulated")
	}

	users := identity.NewService(conn, identity.NewRecorder(conn))
	limiter := ratelimit.NewLimiter(conn, scorerCfg)
	orchestrator := mfa.NewOrchestrator(challengeStore(redisCfg), mfa.NewDuoClient(duoCfg), tokens, users)
	google := googleauth.NewService(googleauth.NewTokenInfoVerifier(googleCfg), users)

	engine := gin.New()
	engine.Use(gin.Recovery())
	httpapi.RegisterRoutes(engine, httpapi.Services{
		DB:          conn,
		Users:       users,
		Tokens:      tokens,
		Limiter:     limiter,
		MFA:         orchestrator,
		TOTP:        mfa.NewTOTPService(conn),
		Google:      google,
		Permissions: permissions.NewResolver(conn),
		DuoCfg:      duoCfg,
		Frontend:    frontendCfg,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// challengeStore picks Redis when configured so MFA callbacks survive
// restarts, falling back to the in-process map.
func challengeStore(cfg config.RedisConfig) mfa.ChallengeStore {
	if cfg.Addr == "" {
		return mfa.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return mfa.NewRedisStore(client, cfg.Prefix)
}

// CreateAdminUser seeds an admin account, used by the bootstrap flag.
func CreateAdminUser(conn *gorm.DB, username, email, password string) error {
	users := identity.NewService(conn, identity.NewRecorder(conn))
	_, errCreate := users.CreateUser(context.Background(), username, email, password, models.RoleAdmin, true)
	return errCreate
}

// Migrate opens the database and runs migrations without serving.
func Migrate(cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}
