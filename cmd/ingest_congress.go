package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opendiscourse/opendiscourse/internal/congress"
	"github.com/opendiscourse/opendiscourse/internal/ingest"
)

func runIngestCongress(args []string) error {
	fs := flag.NewFlagSet("ingest-congress", flag.ContinueOnError)
	congressNum := fs.Int("congress", 0, "Congress number (e.g. 118), required")
	billType := fs.String("bill-type", "", "Bill type filter (hr, s, hjres, sjres, hconres, sconres, hres, sres)")
	skipDetails := fs.Bool("skip-details", false, "Skip fetching bill details (actions, cosponsors)")
	apiKey := fs.String("api-key", "", "Congress API key (overrides CONGRESS_API_KEY)")
	databaseURL := fs.String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *congressNum <= 0 {
		return fmt.Errorf("--congress is required")
	}

	cfg, err := loadConfig(*databaseURL)
	if err != nil {
		return err
	}
	if *apiKey != "" {
		cfg.CongressAPIKey = *apiKey
	}
	if err := cfg.RequireKey("congress"); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	client := congress.New(cfg.CongressAPIKey, slog.Default(),
		congress.WithHTTPOptions(httpTimeout(cfg), cfg.MaxRetries))

	ing := ingest.NewCongress(client, sink, slog.Default(), os.Stdout)
	if err := ing.Run().AcquireLock(); err != nil {
		return err
	}
	defer ing.Run().ReleaseLock()

	slog.Info("starting bill ingestion", "congress", *congressNum)
	billCount, err := ing.IngestBills(ctx, *congressNum, *billType)
	if err != nil {
		return fmt.Errorf("ingesting bills: %w", err)
	}

	var details ingest.DetailCounts
	if *skipDetails {
		slog.Info("skipping detail ingestion")
	} else {
		slog.Info("starting detail ingestion")
		details, err = ing.IngestDetails(ctx, *congressNum)
		if err != nil {
			return fmt.Errorf("ingesting details: %w", err)
		}
	}

	if err := ing.Finish(ctx); err != nil {
		return err
	}

	slog.Info("ingestion complete",
		"bills", billCount, "actions", details.Actions, "cosponsors", details.Cosponsors)
	return nil
}
