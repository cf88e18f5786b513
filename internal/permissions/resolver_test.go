package permissions

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caronline/vehiclesvc/internal/models"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.RolePermission{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewResolver(db)
}

func TestGetUserPermissionsProjections(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	if err := r.UpsertRole(ctx, "admin", "full access", []string{
		PermCreateVehicle, PermReadVehicle, PermUpdateVehicle, PermDeleteVehicle, PermPublishVehicle, PermReadLogs,
	}); err != nil {
		t.Fatalf("UpsertRole: %v", err)
	}
	if err := r.UpsertRole(ctx, "user", "", []string{PermReadVehicle}); err != nil {
		t.Fatalf("UpsertRole: %v", err)
	}

	admin := r.GetUserPermissions(ctx, "admin")
	if !admin.CanCreate || !admin.CanRead || !admin.CanUpdate || !admin.CanDelete || !admin.CanPublish {
		t.Errorf("admin projections = %+v, want all true", admin)
	}

	user := r.GetUserPermissions(ctx, "user")
	if !user.CanRead || user.CanCreate || user.CanUpdate || user.CanDelete || user.CanPublish {
		t.Errorf("user projections = %+v, want read only", user)
	}

	guest := r.GetUserPermissions(ctx, "guest")
	if guest.CanCreate || guest.CanRead || guest.CanUpdate || guest.CanDelete || guest.CanPublish {
		t.Errorf("guest projections = %+v, want all false", guest)
	}
	if guest.Permissions == nil || len(guest.Permissions) != 0 {
		t.Errorf("guest permissions = %v, want empty set", guest.Permissions)
	}
}

func TestHasPermissionDenyByDefault(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	if err := r.UpsertRole(ctx, "user", "", []string{PermReadVehicle}); err != nil {
		t.Fatalf("UpsertRole: %v", err)
	}

	if !r.HasPermission(ctx, "user", PermReadVehicle) {
		t.Error("granted permission denied")
	}
	if r.HasPermission(ctx, "user", PermDeleteVehicle) {
		t.Error("ungranted permission allowed")
	}
	if r.HasPermission(ctx, "nosuchrole", PermReadVehicle) {
		t.Error("unknown role allowed")
	}
}

func TestUpsertRoleReplacesSet(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	if err := r.UpsertRole(ctx, "editor", "catalog editor", []string{PermReadVehicle}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.UpsertRole(ctx, "editor", "", []string{PermReadVehicle, PermUpdateVehicle}); err != nil {
		t.Fatalf("update: %v", err)
	}

	perms := r.GetPermissionsByRole(ctx, "editor")
	if len(perms) != 2 {
		t.Fatalf("permissions = %v, want 2 entries", perms)
	}

	roles, err := r.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].Description != "catalog editor" {
		t.Errorf("roles = %+v, want one editor keeping its description", roles)
	}
}
