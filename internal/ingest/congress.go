package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
)

// detailBatchLimit bounds how many bills one details pass enriches.
const detailBatchLimit = 100

// CongressClient is the slice of the Congress.gov client the ingester uses.
type CongressClient interface {
	ListBills(ctx context.Context, congress int, billType string, pageSize, maxPages int) ([]apiclient.Item, error)
	BillActions(ctx context.Context, congress int, billType string, number int) ([]apiclient.Item, error)
	BillCosponsors(ctx context.Context, congress int, billType string, number int) ([]apiclient.Item, error)
}

var congressBillColumns = []string{
	"bill_id", "congress", "bill_type", "bill_number", "title",
	"origin_chamber", "origin_chamber_code", "update_date",
	"update_date_including_text", "introduced_date", "policy_area",
	"latest_action_text", "latest_action_date", "sponsor_bioguide_id",
	"sponsor_name", "sponsor_party", "sponsor_state", "url",
}

// CongressIngester pulls federal bills from Congress.gov into the
// congress_* tables.
type CongressIngester struct {
	client CongressClient
	db     Sink
	run    *Run
	logger *slog.Logger
}

// NewCongress creates the ingester and its run. out receives the final
// summary.
func NewCongress(client CongressClient, db Sink, logger *slog.Logger, out io.Writer) *CongressIngester {
	if logger == nil {
		logger = slog.Default()
	}
	reporter := NewReporter(logger, out)
	return &CongressIngester{
		client: client,
		db:     db,
		run:    NewRun("congress", reporter, logger),
		logger: logger,
	}
}

// Run returns the underlying ingestion run.
func (g *CongressIngester) Run() *Run { return g.run }

// IngestBills fetches the bill listing for a congress (optionally one bill
// type) and upserts it. Returns the number of rows written.
func (g *CongressIngester) IngestBills(ctx context.Context, congress int, billType string) (int64, error) {
	if err := g.run.transition(StateFetchingList); err != nil {
		return 0, err
	}

	g.logger.Info("fetching bills", "congress", congress, "bill_type", billType)
	bills, err := g.client.ListBills(ctx, congress, billType, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("listing bills for congress %d: %w", congress, err)
	}
	g.logger.Info("found bills", "count", len(bills))

	if len(bills) == 0 {
		return 0, nil
	}

	reporter := g.run.Reporter()
	reporter.SetTotal(len(bills))

	rows := make([][]any, 0, len(bills))
	for _, bill := range bills {
		row, err := congressBillRow(congress, bill)
		if err != nil {
			reporter.RecordFailure()
			reporter.RecordError(fmt.Sprintf("Bill %v: %v", bill["number"], err))
			continue
		}
		rows = append(rows, row)
		reporter.RecordSuccess()
	}

	if err := g.run.transition(StatePersisting); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	count, err := g.db.Upsert(ctx, "congress_bills", congressBillColumns, rows, []string{"bill_id"}, nil)
	if err != nil {
		return 0, fmt.Errorf("upserting bills: %w", err)
	}
	g.logger.Info("ingested bills", "count", count)
	return count, nil
}

// DetailCounts reports what the details pass wrote.
type DetailCounts struct {
	Actions    int64
	Cosponsors int64
}

// IngestDetails enriches the most recently introduced bills of a congress
// with their actions and cosponsors. A failing bill is counted and the pass
// continues with the next one.
func (g *CongressIngester) IngestDetails(ctx context.Context, congress int) (DetailCounts, error) {
	var counts DetailCounts
	if err := g.run.transition(StateFetchingDetails); err != nil {
		return counts, err
	}

	q := fmt.Sprintf(`SELECT bill_id, bill_type, bill_number
		FROM congress_bills
		WHERE congress = $1
		ORDER BY introduced_date DESC
		LIMIT %d`, detailBatchLimit)
	bills, err := g.db.Query(ctx, q, congress)
	if err != nil {
		return counts, fmt.Errorf("selecting bills for detail ingestion: %w", err)
	}
	if len(bills) == 0 {
		g.logger.Info("no bills need detail ingestion")
		return counts, nil
	}
	g.logger.Info("fetching bill details", "count", len(bills))

	reporter := g.run.Reporter()
	for _, bill := range bills {
		billID, _ := bill["bill_id"].(string)
		billType, _ := bill["bill_type"].(string)
		number := asInt(bill["bill_number"])

		actions, cosponsors, err := g.ingestBillDetail(ctx, congress, billID, billType, number)
		if err != nil {
			reporter.RecordFailure()
			reporter.RecordError(fmt.Sprintf("Bill %s: %v", billID, err))
			continue
		}
		counts.Actions += actions
		counts.Cosponsors += cosponsors
		reporter.RecordSuccess()
	}

	g.logger.Info("ingested bill details",
		"actions", counts.Actions, "cosponsors", counts.Cosponsors)
	return counts, nil
}

func (g *CongressIngester) ingestBillDetail(ctx context.Context, congress int, billID, billType string, number int) (int64, int64, error) {
	actions, err := g.client.BillActions(ctx, congress, billType, number)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching actions: %w", err)
	}

	var actionCount int64
	if len(actions) > 0 {
		rows := make([][]any, 0, len(actions))
		for _, action := range actions {
			rows = append(rows, []any{
				billID,
				dateField(action, "actionDate"),
				strField(action, "actionCode"),
				strField(action, "type"),
				strField(action, "text"),
				strField(mapField(action, "sourceSystem"), "name"),
			})
		}
		columns := []string{"bill_id", "action_date", "action_code", "action_type", "text", "source_system"}
		actionCount, err = g.db.BulkInsert(ctx, "congress_bill_actions", columns, rows, "ON CONFLICT DO NOTHING")
		if err != nil {
			return 0, 0, fmt.Errorf("inserting actions: %w", err)
		}
	}

	cosponsors, err := g.client.BillCosponsors(ctx, congress, billType, number)
	if err != nil {
		return actionCount, 0, fmt.Errorf("fetching cosponsors: %w", err)
	}

	var cosponsorCount int64
	if len(cosponsors) > 0 {
		rows := make([][]any, 0, len(cosponsors))
		for _, cs := range cosponsors {
			rows = append(rows, []any{
				billID,
				strField(cs, "bioguideId"),
				strField(cs, "fullName"),
				strField(cs, "party"),
				strField(cs, "state"),
				intField(cs, "district"),
				dateField(cs, "sponsorshipDate"),
				boolField(cs, "isOriginalCosponsor"),
			})
		}
		columns := []string{"bill_id", "bioguide_id", "name", "party", "state", "district", "sponsored_date", "is_original_cosponsor"}
		cosponsorCount, err = g.db.BulkInsert(ctx, "congress_bill_cosponsors", columns, rows, "ON CONFLICT DO NOTHING")
		if err != nil {
			return actionCount, 0, fmt.Errorf("inserting cosponsors: %w", err)
		}
	}

	return actionCount, cosponsorCount, nil
}

// Finish prints the summary, closes the run and records its stats. A failed
// stats write is logged, not fatal; the ingested data is already committed.
func (g *CongressIngester) Finish(ctx context.Context) error {
	if err := g.run.Finish(); err != nil {
		return err
	}
	if err := g.run.persistStats(ctx, g.db); err != nil {
		g.logger.Warn("failed to record run stats", "error", err)
	}
	return nil
}

// congressBillRow maps one listing item to a congress_bills row. The type
// and number form the natural key; without them the item cannot be stored.
func congressBillRow(congress int, bill apiclient.Item) ([]any, error) {
	billType, err := requireStr(bill, "type")
	if err != nil {
		return nil, err
	}
	number, err := requireInt(bill, "number")
	if err != nil {
		return nil, err
	}

	billID := fmt.Sprintf("%d-%s-%d", congress, billType, number)

	// First listed sponsor wins, matching the upstream ordering.
	var sponsor map[string]any
	if sponsors := listField(bill, "sponsors"); len(sponsors) > 0 {
		sponsor = sponsors[0]
	}
	latestAction := mapField(bill, "latestAction")

	return []any{
		billID,
		intField(bill, "congress"),
		billType,
		number,
		strField(bill, "title"),
		strField(bill, "originChamber"),
		strField(bill, "originChamberCode"),
		timestampField(bill, "updateDate"),
		timestampField(bill, "updateDateIncludingText"),
		dateField(bill, "introducedDate"),
		strField(mapField(bill, "policyArea"), "name"),
		strField(latestAction, "text"),
		dateField(latestAction, "actionDate"),
		strField(sponsor, "bioguideId"),
		strField(sponsor, "fullName"),
		strField(sponsor, "party"),
		strField(sponsor, "state"),
		strField(bill, "url"),
	}, nil
}

// asInt converts the numeric types pgx hands back for integer columns.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		trimmed := strings.TrimSpace(n)
		var out int
		_, _ = fmt.Sscanf(trimmed, "%d", &out)
		return out
	default:
		return 0
	}
}
