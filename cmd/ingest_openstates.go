package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opendiscourse/opendiscourse/internal/ingest"
	"github.com/opendiscourse/opendiscourse/internal/openstates"
)

func runIngestOpenStates(args []string) error {
	fs := flag.NewFlagSet("ingest-openstates", flag.ContinueOnError)
	jurisdiction := fs.String("jurisdiction", "", "Jurisdiction abbreviation (e.g. ca, ny, tx), required")
	session := fs.String("session", "", "Legislative session filter")
	chamber := fs.String("chamber", "", "Chamber filter (upper, lower)")
	updatedSince := fs.String("updated-since", "", "Only bills updated since date (YYYY-MM-DD)")
	apiKey := fs.String("api-key", "", "OpenStates API key (overrides OPENSTATES_API_KEY)")
	databaseURL := fs.String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jurisdiction == "" {
		return fmt.Errorf("--jurisdiction is required")
	}
	if *chamber != "" && *chamber != "upper" && *chamber != "lower" {
		return fmt.Errorf("--chamber must be upper or lower")
	}

	cfg, err := loadConfig(*databaseURL)
	if err != nil {
		return err
	}
	if *apiKey != "" {
		cfg.OpenStatesAPIKey = *apiKey
	}
	if err := cfg.RequireKey("openstates"); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	client := openstates.New(cfg.OpenStatesAPIKey, slog.Default(),
		openstates.WithHTTPOptions(httpTimeout(cfg), cfg.MaxRetries))

	ing := ingest.NewOpenStates(client, sink, slog.Default(), os.Stdout)
	if err := ing.Run().AcquireLock(); err != nil {
		return err
	}
	defer ing.Run().ReleaseLock()

	slog.Info("starting bill ingestion", "jurisdiction", *jurisdiction)
	billCount, err := ing.IngestBills(ctx, *jurisdiction, *session, *chamber, *updatedSince)
	if err != nil {
		return fmt.Errorf("ingesting bills: %w", err)
	}

	if err := ing.Finish(ctx); err != nil {
		return err
	}

	slog.Info("ingestion complete", "bills", billCount)
	return nil
}
