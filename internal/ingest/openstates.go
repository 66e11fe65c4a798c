package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
	"github.com/opendiscourse/opendiscourse/internal/openstates"
)

// OpenStatesClient is the slice of the OpenStates client the ingester uses.
type OpenStatesClient interface {
	SearchBills(ctx context.Context, filter openstates.BillSearch, pageSize, maxPages int) ([]apiclient.Item, error)
}

var (
	openstatesBillColumns = []string{
		"id", "identifier", "title", "classification", "subject",
		"jurisdiction_id", "jurisdiction_name", "session",
		"from_organization_id", "from_organization_name", "from_organization_classification",
		"first_action_date", "latest_action_date", "latest_action_description",
		"created_at_source", "updated_at_source", "openstates_url",
	}
	openstatesSponsorColumns = []string{
		"bill_id", "person_id", "person_name", "classification", "primary_sponsor",
	}
	openstatesActionColumns = []string{
		"bill_id", "organization_id", "organization_name", "description",
		"action_date", "classification", "order_number",
	}
	openstatesVoteColumns = []string{
		"id", "bill_id", "motion_text", "motion_classification", "start_date",
		"result", "organization_id", "organization_name",
		"yes_count", "no_count", "other_count",
	}
)

// OpenStatesIngester pulls state legislature bills from OpenStates.org into
// the openstates_* tables, including the embedded sponsorships, actions and
// votes.
type OpenStatesIngester struct {
	client OpenStatesClient
	db     Sink
	run    *Run
	logger *slog.Logger
}

// NewOpenStates creates the ingester and its run. out receives the final
// summary.
func NewOpenStates(client OpenStatesClient, db Sink, logger *slog.Logger, out io.Writer) *OpenStatesIngester {
	if logger == nil {
		logger = slog.Default()
	}
	reporter := NewReporter(logger, out)
	return &OpenStatesIngester{
		client: client,
		db:     db,
		run:    NewRun("openstates", reporter, logger),
		logger: logger,
	}
}

// Run returns the underlying ingestion run.
func (g *OpenStatesIngester) Run() *Run { return g.run }

// IngestBills fetches bills for a jurisdiction, with the embedded child
// objects, and persists them. Returns the number of bill rows written.
func (g *OpenStatesIngester) IngestBills(ctx context.Context, jurisdiction, session, chamber, updatedSince string) (int64, error) {
	if err := g.run.transition(StateFetchingList); err != nil {
		return 0, err
	}

	g.logger.Info("fetching bills",
		"jurisdiction", jurisdiction, "session", session,
		"chamber", chamber, "updated_since", updatedSince)

	bills, err := g.client.SearchBills(ctx, openstates.BillSearch{
		Jurisdiction: jurisdiction,
		Session:      session,
		Chamber:      chamber,
		UpdatedSince: updatedSince,
		Include:      []string{"sponsorships", "actions", "votes"},
	}, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("searching bills for %s: %w", jurisdiction, err)
	}
	g.logger.Info("found bills", "count", len(bills))

	if len(bills) == 0 {
		return 0, nil
	}

	reporter := g.run.Reporter()
	reporter.SetTotal(len(bills))

	var (
		billRows    [][]any
		sponsorRows [][]any
		actionRows  [][]any
		voteRows    [][]any
	)

	for _, bill := range bills {
		billID, err := requireStr(bill, "id")
		if err != nil {
			reporter.RecordFailure()
			reporter.RecordError(fmt.Sprintf("Bill %v: %v", bill["identifier"], err))
			continue
		}

		fromOrg := mapField(bill, "from_organization")
		jurisdictionData := mapField(bill, "jurisdiction")

		billRows = append(billRows, []any{
			billID,
			strField(bill, "identifier"),
			strField(bill, "title"),
			firstStrField(bill, "classification"),
			strListField(bill, "subject"),
			strField(jurisdictionData, "id"),
			strField(jurisdictionData, "name"),
			strField(bill, "session"),
			strField(fromOrg, "id"),
			strField(fromOrg, "name"),
			strField(fromOrg, "classification"),
			dateField(bill, "first_action_date"),
			dateField(bill, "latest_action_date"),
			strField(bill, "latest_action_description"),
			timestampField(bill, "created_at"),
			timestampField(bill, "updated_at"),
			strField(bill, "openstates_url"),
		})

		for _, sponsor := range listField(bill, "sponsorships") {
			person := mapField(sponsor, "person")
			sponsorRows = append(sponsorRows, []any{
				billID,
				strField(person, "id"),
				strField(person, "name"),
				strField(sponsor, "classification"),
				boolField(sponsor, "primary"),
			})
		}

		for i, action := range listField(bill, "actions") {
			org := mapField(action, "organization")
			actionRows = append(actionRows, []any{
				billID,
				strField(org, "id"),
				strField(org, "name"),
				strField(action, "description"),
				dateField(action, "date"),
				strListField(action, "classification"),
				i,
			})
		}

		for _, vote := range listField(bill, "votes") {
			org := mapField(vote, "organization")
			yes, no, other := tallyVoteCounts(listField(vote, "counts"))
			voteRows = append(voteRows, []any{
				strField(vote, "id"),
				billID,
				strField(vote, "motion_text"),
				strListField(vote, "motion_classification"),
				timestampField(vote, "start_date"),
				strField(vote, "result"),
				strField(org, "id"),
				strField(org, "name"),
				yes, no, other,
			})
		}

		reporter.RecordSuccess()
	}

	if err := g.run.transition(StatePersisting); err != nil {
		return 0, err
	}
	if len(billRows) == 0 {
		return 0, nil
	}

	billCount, err := g.db.Upsert(ctx, "openstates_bills", openstatesBillColumns, billRows, []string{"id"}, nil)
	if err != nil {
		return 0, fmt.Errorf("upserting bills: %w", err)
	}

	if len(sponsorRows) > 0 {
		if _, err := g.db.BulkInsert(ctx, "openstates_bill_sponsors", openstatesSponsorColumns, sponsorRows, "ON CONFLICT DO NOTHING"); err != nil {
			return billCount, fmt.Errorf("inserting sponsors: %w", err)
		}
	}
	if len(actionRows) > 0 {
		if _, err := g.db.BulkInsert(ctx, "openstates_bill_actions", openstatesActionColumns, actionRows, "ON CONFLICT DO NOTHING"); err != nil {
			return billCount, fmt.Errorf("inserting actions: %w", err)
		}
	}
	if len(voteRows) > 0 {
		if _, err := g.db.Upsert(ctx, "openstates_bill_votes", openstatesVoteColumns, voteRows, []string{"id"}, nil); err != nil {
			return billCount, fmt.Errorf("upserting votes: %w", err)
		}
	}

	g.logger.Info("ingested bills", "count", billCount,
		"sponsors", len(sponsorRows), "actions", len(actionRows), "votes", len(voteRows))
	return billCount, nil
}

// Finish prints the summary, closes the run and records its stats. A failed
// stats write is logged, not fatal; the ingested data is already committed.
func (g *OpenStatesIngester) Finish(ctx context.Context) error {
	if err := g.run.Finish(); err != nil {
		return err
	}
	if err := g.run.persistStats(ctx, g.db); err != nil {
		g.logger.Warn("failed to record run stats", "error", err)
	}
	return nil
}

// tallyVoteCounts folds the per-option counts into yes/no/other totals.
func tallyVoteCounts(counts []map[string]any) (yes, no, other int) {
	for _, c := range counts {
		option, _ := c["option"].(string)
		n := 0
		if v := intField(c, "count"); v != nil {
			n = v.(int)
		}
		switch option {
		case "yes":
			yes = n
		case "no":
			no = n
		default:
			other += n
		}
	}
	return yes, no, other
}
