package db

import (
	"encoding/json"
	"fmt"

	"github.com/caronline/vehiclesvc/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&models.User{},
		&models.SessionLog{},
		&models.LoginAttempt{},
		&models.RolePermission{},
		&models.EndpointLog{},
		&models.Vehicle{},
	)
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := SeedRolePermissions(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_session_logs_user_status_created",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_session_logs_user_status_created
				ON session_logs (user_id, status, created_at DESC)
			`,
		},
		{
			name: "idx_session_logs_ip_created",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_session_logs_ip_created
				ON session_logs (ip_address, created_at DESC)
			`,
		},
		{
			name: "idx_endpoint_logs_user_created",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_endpoint_logs_user_created
				ON endpoint_logs (user_id, created_at DESC)
			`,
		},
		{
			name: "idx_login_attempts_cleanup",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_login_attempts_cleanup
				ON login_attempts (last_attempt, success_count)
			`,
		},
		{
			name: "idx_vehicles_brand_status",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_vehicles_brand_status
				ON vehicles (brand, status)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}
	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := SeedRolePermissions(conn); errSeed != nil {
		return errSeed
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_session_logs_user_status_created
			ON session_logs (user_id, status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_session_logs_ip_created
			ON session_logs (ip_address, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoint_logs_user_created
			ON endpoint_logs (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_cleanup
			ON login_attempts (last_attempt, success_count)`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_brand_status
			ON vehicles (brand, status)`,
	}
	for _, stmt := range indexes {
		if errIdx := conn.Exec(stmt).Error; errIdx != nil {
			return fmt.Errorf("db: create index: %w", errIdx)
		}
	}
	return nil
}

// defaultRolePermissions seeds the role vocabulary on first boot.
var defaultRolePermissions = map[string]struct {
	description string
	permissions []string
}{
	models.RoleAdmin: {
		description: "Full catalog and log management",
		permissions: []string{
			"create:vehicle", "read:vehicle", "update:vehicle", "delete:vehicle", "publish:vehicle",
			"read:logs", "admin:logs",
		},
	},
	models.RoleUser: {
		description: "Read-only catalog access",
		permissions: []string{"read:vehicle"},
	},
}

// SeedRolePermissions inserts the default role permission sets when absent.
// Existing rows are left untouched so operator edits survive restarts.
func SeedRolePermissions(conn *gorm.DB) error {
	for role, entry := range defaultRolePermissions {
		var count int64
		if errCount := conn.Model(&models.RolePermission{}).
			Where("role = ?", role).
			Count(&count).Error; errCount != nil {
			return fmt.Errorf("db: count role %s: %w", role, errCount)
		}
		if count > 0 {
			continue
		}
		payload, errMarshal := json.Marshal(entry.permissions)
		if errMarshal != nil {
			return fmt.Errorf("db: marshal permissions for %s: %w", role, errMarshal)
		}
		row := models.RolePermission{
			Role:        role,
			Description: entry.description,
			Permissions: payload,
		}
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: seed role %s: %w", role, errCreate)
		}
	}
	return nil
}
