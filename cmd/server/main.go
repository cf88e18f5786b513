package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caronline/vehiclesvc/internal/app"
	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/db"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	if errRun := run(context.Background(), os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the server or a maintenance task.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vehiclesvc", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8318, "server port")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	adminSpec := fs.String("create-admin", "", "seed an admin account as username:email:password and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	if *migrateOnly {
		return app.Migrate(appCfg)
	}
	if strings.TrimSpace(*adminSpec) != "" {
		return createAdmin(appCfg, *adminSpec)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.RunServer(ctx, appCfg, *port)
}

// createAdmin seeds an admin account from a username:email:password spec.
func createAdmin(cfg config.AppConfig, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("invalid -create-admin value, expected username:email:password")
	}

	dsn, errDSN := config.LoadDatabaseDSN(config.ResolveConfigPath(cfg.ConfigPath))
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

	if errCreate := app.CreateAdminUser(conn, parts[0], parts[1], parts[2]); errCreate != nil {
		return errCreate
	}
	log.WithField("username", parts[0]).Info("admin account created")
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
