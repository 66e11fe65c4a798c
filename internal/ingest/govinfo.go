package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
)

// GovInfoClient is the slice of the GovInfo client the ingester uses.
type GovInfoClient interface {
	CongressionalRecord(ctx context.Context, startDate, endDate string, pageSize int) ([]apiclient.Item, error)
	PackageGranules(ctx context.Context, packageID string, pageSize int) ([]apiclient.Item, error)
	GranuleSummary(ctx context.Context, packageID, granuleID string) (apiclient.Item, error)
}

var (
	govinfoPackageColumns = []string{
		"package_id", "title", "date_issued", "last_modified",
		"package_link", "granules_link", "congress", "session",
	}
	govinfoGranuleColumns = []string{
		"granule_id", "package_id", "title", "granule_class",
		"granule_date", "pdf_link", "htm_link", "xml_link",
	}
)

// GovInfoIngester pulls Congressional Record packages and granules from
// GovInfo.gov into the govinfo_crec_* tables.
type GovInfoIngester struct {
	client GovInfoClient
	db     Sink
	run    *Run
	logger *slog.Logger
}

// NewGovInfo creates the ingester and its run. out receives the final
// summary.
func NewGovInfo(client GovInfoClient, db Sink, logger *slog.Logger, out io.Writer) *GovInfoIngester {
	if logger == nil {
		logger = slog.Default()
	}
	reporter := NewReporter(logger, out)
	return &GovInfoIngester{
		client: client,
		db:     db,
		run:    NewRun("govinfo", reporter, logger),
		logger: logger,
	}
}

// Run returns the underlying ingestion run.
func (g *GovInfoIngester) Run() *Run { return g.run }

// IngestPackages fetches Congressional Record packages for a date range
// (YYYY-MM-DD, inclusive) and upserts them. Returns rows written.
func (g *GovInfoIngester) IngestPackages(ctx context.Context, startDate, endDate string) (int64, error) {
	if err := g.run.transition(StateFetchingList); err != nil {
		return 0, err
	}

	g.logger.Info("fetching congressional record packages",
		"start_date", startDate, "end_date", endDate)

	// The collections endpoint takes full ISO timestamps.
	startISO := startDate + "T00:00:00Z"
	endISO := endDate + "T23:59:59Z"

	packages, err := g.client.CongressionalRecord(ctx, startISO, endISO, 0)
	if err != nil {
		return 0, fmt.Errorf("fetching congressional record packages: %w", err)
	}
	g.logger.Info("found packages", "count", len(packages))

	if len(packages) == 0 {
		return 0, nil
	}

	reporter := g.run.Reporter()
	reporter.SetTotal(len(packages))

	rows := make([][]any, 0, len(packages))
	for _, pkg := range packages {
		packageID, err := requireStr(pkg, "packageId")
		if err != nil {
			reporter.RecordFailure()
			reporter.RecordError(fmt.Sprintf("Package %v: %v", pkg["packageId"], err))
			continue
		}
		rows = append(rows, []any{
			packageID,
			strField(pkg, "title"),
			dateField(pkg, "dateIssued"),
			timestampField(pkg, "lastModified"),
			strField(pkg, "packageLink"),
			strField(pkg, "granulesLink"),
			intField(pkg, "congress"),
			intField(pkg, "session"),
		})
		reporter.RecordSuccess()
	}

	if err := g.run.transition(StatePersisting); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	count, err := g.db.Upsert(ctx, "govinfo_crec_packages", govinfoPackageColumns, rows, []string{"package_id"}, nil)
	if err != nil {
		return 0, fmt.Errorf("upserting packages: %w", err)
	}
	g.logger.Info("ingested packages", "count", count)
	return count, nil
}

// IngestGranules fetches granules for stored packages that have none yet,
// newest first, bounded to one detail batch per call. A failing package is
// counted and the pass continues.
func (g *GovInfoIngester) IngestGranules(ctx context.Context) (int64, error) {
	if err := g.run.transition(StateFetchingDetails); err != nil {
		return 0, err
	}

	q := fmt.Sprintf(`SELECT package_id
		FROM govinfo_crec_packages
		WHERE package_id NOT IN (
			SELECT DISTINCT package_id
			FROM govinfo_crec_granules
			WHERE package_id IS NOT NULL
		)
		ORDER BY date_issued DESC
		LIMIT %d`, detailBatchLimit)

	packages, err := g.db.Query(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("selecting packages for granule ingestion: %w", err)
	}
	if len(packages) == 0 {
		g.logger.Info("no packages need granule ingestion")
		return 0, nil
	}
	g.logger.Info("fetching granules", "packages", len(packages))

	reporter := g.run.Reporter()
	var total int64
	for _, pkg := range packages {
		packageID, _ := pkg["package_id"].(string)

		count, err := g.ingestPackageGranules(ctx, packageID)
		if err != nil {
			reporter.RecordFailure()
			reporter.RecordError(fmt.Sprintf("Package %s: %v", packageID, err))
			continue
		}
		if count < 0 {
			reporter.RecordSkip()
			continue
		}
		total += count
		reporter.RecordSuccess()
	}

	g.logger.Info("ingested granules", "count", total)
	return total, nil
}

// ingestPackageGranules returns -1 when the package has no granules, which
// the caller counts as a skip.
func (g *GovInfoIngester) ingestPackageGranules(ctx context.Context, packageID string) (int64, error) {
	granules, err := g.client.PackageGranules(ctx, packageID, 0)
	if err != nil {
		return 0, fmt.Errorf("fetching granules: %w", err)
	}
	if len(granules) == 0 {
		return -1, nil
	}

	rows := make([][]any, 0, len(granules))
	for _, granule := range granules {
		granuleID, err := requireStr(granule, "granuleId")
		if err != nil {
			return 0, err
		}

		// Download links live on the granule summary; a failed summary
		// lookup degrades to null links rather than failing the package.
		var download map[string]any
		summary, err := g.client.GranuleSummary(ctx, packageID, granuleID)
		if err != nil {
			g.logger.Warn("failed to get granule summary",
				"granule_id", granuleID, "error", err)
		} else {
			download = mapField(summary, "download")
		}

		rows = append(rows, []any{
			granuleID,
			packageID,
			strField(granule, "title"),
			strField(granule, "granuleClass"),
			dateField(granule, "granuleDate"),
			strField(download, "pdfLink"),
			strField(download, "htmLink"),
			strField(download, "xmlLink"),
		})
	}

	count, err := g.db.Upsert(ctx, "govinfo_crec_granules", govinfoGranuleColumns, rows, []string{"granule_id"}, nil)
	if err != nil {
		return 0, fmt.Errorf("upserting granules: %w", err)
	}
	return count, nil
}

// Finish prints the summary, closes the run and records its stats. A failed
// stats write is logged, not fatal; the ingested data is already committed.
func (g *GovInfoIngester) Finish(ctx context.Context) error {
	if err := g.run.Finish(); err != nil {
		return err
	}
	if err := g.run.persistStats(ctx, g.db); err != nil {
		g.logger.Warn("failed to record run stats", "error", err)
	}
	return nil
}
