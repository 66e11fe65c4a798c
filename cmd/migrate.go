package cmd

import (
	"flag"
	"fmt"
	"log/slog"

	"github.com/opendiscourse/opendiscourse/db"
)

// runMigrate applies pending database migrations and exits.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	databaseURL := fs.String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*databaseURL)
	if err != nil {
		return err
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("database schema is up to date")
	return nil
}
