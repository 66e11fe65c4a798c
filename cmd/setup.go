package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/opendiscourse/opendiscourse/db"
	"github.com/opendiscourse/opendiscourse/internal/config"
	"github.com/opendiscourse/opendiscourse/internal/database"
)

// loadConfig loads configuration and applies the shared CLI overrides. A
// flag always wins over an environment variable.
func loadConfig(databaseURL string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if databaseURL != "" {
		if err := cfg.SetDatabaseURL(databaseURL); err != nil {
			return nil, fmt.Errorf("parsing --database-url: %w", err)
		}
	}
	return cfg, nil
}

// openSink applies pending migrations and opens the database sink.
func openSink(ctx context.Context, cfg *config.Config) (*database.Sink, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	sink, err := database.Open(ctx, cfg.PostgresConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return sink, nil
}

// httpTimeout converts the configured timeout to a duration.
func httpTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
}
