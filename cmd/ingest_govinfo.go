package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opendiscourse/opendiscourse/internal/govinfo"
	"github.com/opendiscourse/opendiscourse/internal/ingest"
)

func runIngestGovInfo(args []string) error {
	fs := flag.NewFlagSet("ingest-govinfo", flag.ContinueOnError)
	startDate := fs.String("start-date", "", "Start date (YYYY-MM-DD), required")
	endDate := fs.String("end-date", "", "End date (YYYY-MM-DD), defaults to start date")
	skipGranules := fs.Bool("skip-granules", false, "Skip granule ingestion")
	apiKey := fs.String("api-key", "", "GovInfo API key (overrides GOVINFO_API_KEY)")
	databaseURL := fs.String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *startDate == "" {
		return fmt.Errorf("--start-date is required")
	}
	if *endDate == "" {
		*endDate = *startDate
	}

	cfg, err := loadConfig(*databaseURL)
	if err != nil {
		return err
	}
	if *apiKey != "" {
		cfg.GovInfoAPIKey = *apiKey
	}
	if err := cfg.RequireKey("govinfo"); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	client := govinfo.New(cfg.GovInfoAPIKey, slog.Default(),
		govinfo.WithHTTPOptions(httpTimeout(cfg), cfg.MaxRetries))

	ing := ingest.NewGovInfo(client, sink, slog.Default(), os.Stdout)
	if err := ing.Run().AcquireLock(); err != nil {
		return err
	}
	defer ing.Run().ReleaseLock()

	slog.Info("starting package ingestion",
		"start_date", *startDate, "end_date", *endDate)
	packageCount, err := ing.IngestPackages(ctx, *startDate, *endDate)
	if err != nil {
		return fmt.Errorf("ingesting packages: %w", err)
	}

	var granuleCount int64
	if *skipGranules {
		slog.Info("skipping granule ingestion")
	} else {
		slog.Info("starting granule ingestion")
		granuleCount, err = ing.IngestGranules(ctx)
		if err != nil {
			return fmt.Errorf("ingesting granules: %w", err)
		}
	}

	if err := ing.Finish(ctx); err != nil {
		return err
	}

	slog.Info("ingestion complete", "packages", packageCount, "granules", granuleCount)
	return nil
}
