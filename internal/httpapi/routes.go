package httpapi

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/googleauth"
	"github.com/caronline/vehiclesvc/internal/identity"
	"github.com/caronline/vehiclesvc/internal/mfa"
	"github.com/caronline/vehiclesvc/internal/permissions"
	"github.com/caronline/vehiclesvc/internal/ratelimit"
	"github.com/caronline/vehiclesvc/internal/security"
)

// Services bundles the constructed services the routes depend on.
type Services struct {
	DB          *gorm.DB
	Users       *identity.Service
	Tokens      *security.TokenService
	Limiter     *ratelimit.Limiter
	MFA         *mfa.Orchestrator
	TOTP        *mfa.TOTPService
	Google      *googleauth.Service
	Permissions *permissions.Resolver
	DuoCfg      config.DuoConfig
	Frontend    config.FrontendConfig
}

// RegisterRoutes registers routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, s Services) {
	if r == nil || s.DB == nil {
		return
	}

	r.Use(EndpointLogger(s.DB))

	healthHandler := NewHealthHandler(s.DB)
	r.GET("/health", healthHandler.Health)

	authHandler := NewAuthHandler(s.Users, s.Tokens, s.Limiter, s.MFA, s.TOTP, s.Google, s.DuoCfg, s.Frontend)
	authGroup := r.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/login/totp", authHandler.LoginTOTP)
	authGroup.POST("/register", authHandler.Register)
	authGroup.GET("/check/:username", authHandler.CheckUsername)
	authGroup.GET("/mfa/callback", authHandler.DuoCallback)
	authGroup.POST("/google", authHandler.GoogleLogin)

	authedAuth := authGroup.Group("")
	authedAuth.Use(AuthGuard(s.Tokens))
	authedAuth.GET("/user/:id", authHandler.GetUser)
	authedAuth.POST("/mfa/totp/prepare", authHandler.PrepareTOTP)
	authedAuth.POST("/mfa/totp/confirm", authHandler.ConfirmTOTP)
	authedAuth.POST("/mfa/totp/disable", authHandler.DisableTOTP)

	permissionsHandler := NewPermissionsHandler(s.Permissions)
	permissionsGroup := r.Group("/permissions")
	permissionsGroup.Use(AuthGuard(s.Tokens))
	permissionsGroup.GET("/me", permissionsHandler.Mine)
	permissionsGroup.GET("/check/:permission", permissionsHandler.Check)
	permissionsGroup.GET("/:role", permissionsHandler.ByRole)

	rolesGroup := r.Group("/roles")
	rolesGroup.Use(AuthGuard(s.Tokens), RequireAdmin())
	rolesGroup.GET("", permissionsHandler.ListRoles)
	rolesGroup.PUT("/:role", permissionsHandler.UpsertRole)

	vehicleHandler := NewVehicleHandler(s.DB)
	vehiclesGroup := r.Group("/vehicles")
	vehiclesGroup.Use(AuthGuard(s.Tokens))
	vehiclesGroup.GET("", RequirePermission(s.Permissions, permissions.PermReadVehicle), vehicleHandler.List)
	vehiclesGroup.GET("/:id", RequirePermission(s.Permissions, permissions.PermReadVehicle), vehicleHandler.Get)
	vehiclesGroup.POST("", RequirePermission(s.Permissions, permissions.PermCreateVehicle), vehicleHandler.Create)
	vehiclesGroup.PUT("/:id", RequirePermission(s.Permissions, permissions.PermUpdateVehicle), vehicleHandler.Update)
	vehiclesGroup.DELETE("/:id", RequirePermission(s.Permissions, permissions.PermDeleteVehicle), vehicleHandler.Delete)
	vehiclesGroup.POST("/:id/publish", RequirePermission(s.Permissions, permissions.PermPublishVehicle), vehicleHandler.Publish)

	logsHandler := NewLogsHandler(s.DB, s.Limiter)
	logsGroup := r.Group("/logs")
	logsGroup.Use(AuthGuard(s.Tokens))
	logsGroup.GET("/sessions",
		RequireAnyPermission(s.Permissions, permissions.PermReadLogs, permissions.PermAdminLogs),
		logsHandler.ListSessions)
	logsGroup.GET("/sessions/stats",
		RequireAnyPermission(s.Permissions, permissions.PermReadLogs, permissions.PermAdminLogs),
		logsHandler.SessionStats)
	logsGroup.GET("/endpoints",
		RequireAnyPermission(s.Permissions, permissions.PermReadLogs, permissions.PermAdminLogs),
		logsHandler.ListEndpoints)
	logsGroup.DELETE("/clean",
		RequirePermission(s.Permissions, permissions.PermAdminLogs),
		logsHandler.Clean)
}
