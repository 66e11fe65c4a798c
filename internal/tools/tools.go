// Package tools exposes read-only query operations over the ingested
// legislative data. The MCP server registers each of these as a tool.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Tables the query tools may touch. Everything else is rejected.
var knownTables = []string{
	"congress_bills",
	"congress_bill_actions",
	"congress_bill_cosponsors",
	"govinfo_crec_packages",
	"govinfo_crec_granules",
	"openstates_bills",
	"openstates_bill_sponsors",
	"openstates_bill_actions",
	"openstates_bill_votes",
	"ingestion_runs",
}

// ErrUnknownTable is returned for table names outside the ingested schema.
var ErrUnknownTable = errors.New("tools: unknown table")

const (
	defaultQueryLimit = 20
	maxQueryLimit     = 200
)

// Querier is the read surface the tools need. *database.Sink satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	CountRecords(ctx context.Context, table string) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
}

// Kit bundles the query tools over one database connection.
type Kit struct {
	db     Querier
	logger *slog.Logger
}

// NewKit creates a Kit. logger may be nil.
func NewKit(db Querier, logger *slog.Logger) (*Kit, error) {
	if db == nil {
		return nil, errors.New("tools: querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kit{db: db, logger: logger}, nil
}

// DatasetCountsInput selects which tables to count. Empty means all.
type DatasetCountsInput struct {
	Table string `json:"table,omitempty" jsonschema:"Optional table name to count; all ingested tables when omitted"`
}

// TableCount is the row count of one table.
type TableCount struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
	Rows   int64  `json:"rows"`
}

// DatasetCounts reports row counts for the ingested tables.
func (k *Kit) DatasetCounts(ctx context.Context, in DatasetCountsInput) ([]TableCount, error) {
	tables := knownTables
	if in.Table != "" {
		if !isKnownTable(in.Table) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTable, in.Table)
		}
		tables = []string{in.Table}
	}

	counts := make([]TableCount, 0, len(tables))
	for _, table := range tables {
		exists, err := k.db.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		tc := TableCount{Table: table, Exists: exists}
		if exists {
			rows, err := k.db.CountRecords(ctx, table)
			if err != nil {
				return nil, err
			}
			tc.Rows = rows
		}
		counts = append(counts, tc)
	}

	k.logger.Debug("dataset counts", "tables", len(counts))
	return counts, nil
}

// RecentBillsInput filters the recent federal bills query.
type RecentBillsInput struct {
	Congress int `json:"congress,omitempty" jsonschema:"Optional congress number filter (e.g. 118)"`
	Limit    int `json:"limit,omitempty" jsonschema:"Maximum rows to return, default 20, capped at 200"`
}

// RecentBills returns the most recently introduced federal bills.
func (k *Kit) RecentBills(ctx context.Context, in RecentBillsInput) ([]map[string]any, error) {
	limit := clampLimit(in.Limit)

	if in.Congress > 0 {
		return k.db.Query(ctx, `SELECT bill_id, congress, bill_type, bill_number, title,
				introduced_date, latest_action_text, latest_action_date, sponsor_name
			FROM congress_bills
			WHERE congress = $1
			ORDER BY introduced_date DESC NULLS LAST
			LIMIT $2`, in.Congress, limit)
	}
	return k.db.Query(ctx, `SELECT bill_id, congress, bill_type, bill_number, title,
			introduced_date, latest_action_text, latest_action_date, sponsor_name
		FROM congress_bills
		ORDER BY introduced_date DESC NULLS LAST
		LIMIT $1`, limit)
}

// StateBillsInput filters the state bills query.
type StateBillsInput struct {
	Jurisdiction string `json:"jurisdiction,omitempty" jsonschema:"Optional jurisdiction name filter (e.g. California)"`
	Session      string `json:"session,omitempty" jsonschema:"Optional legislative session filter"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum rows to return, default 20, capped at 200"`
}

// StateBills returns state legislature bills by latest action.
func (k *Kit) StateBills(ctx context.Context, in StateBillsInput) ([]map[string]any, error) {
	limit := clampLimit(in.Limit)

	query := `SELECT id, identifier, title, classification, jurisdiction_name,
			session, latest_action_date, latest_action_description
		FROM openstates_bills`
	args := []any{}
	n := 1
	where := ""
	if in.Jurisdiction != "" {
		where = fmt.Sprintf(" WHERE jurisdiction_name = $%d", n)
		args = append(args, in.Jurisdiction)
		n++
	}
	if in.Session != "" {
		if where == "" {
			where = fmt.Sprintf(" WHERE session = $%d", n)
		} else {
			where += fmt.Sprintf(" AND session = $%d", n)
		}
		args = append(args, in.Session)
		n++
	}
	query += where + fmt.Sprintf(" ORDER BY latest_action_date DESC NULLS LAST LIMIT $%d", n)
	args = append(args, limit)

	return k.db.Query(ctx, query, args...)
}

// RecordPackagesInput filters the Congressional Record packages query.
type RecordPackagesInput struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"Optional inclusive start date (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"Optional inclusive end date (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum rows to return, default 20, capped at 200"`
}

// RecordPackages returns stored Congressional Record packages, newest first.
func (k *Kit) RecordPackages(ctx context.Context, in RecordPackagesInput) ([]map[string]any, error) {
	limit := clampLimit(in.Limit)

	query := `SELECT package_id, title, date_issued, congress, session, package_link
		FROM govinfo_crec_packages`
	args := []any{}
	n := 1
	where := ""
	if in.StartDate != "" {
		where = fmt.Sprintf(" WHERE date_issued >= $%d", n)
		args = append(args, in.StartDate)
		n++
	}
	if in.EndDate != "" {
		if where == "" {
			where = fmt.Sprintf(" WHERE date_issued <= $%d", n)
		} else {
			where += fmt.Sprintf(" AND date_issued <= $%d", n)
		}
		args = append(args, in.EndDate)
		n++
	}
	query += where + fmt.Sprintf(" ORDER BY date_issued DESC LIMIT $%d", n)
	args = append(args, limit)

	return k.db.Query(ctx, query, args...)
}

// RunStatsInput filters the past ingestion runs query.
type RunStatsInput struct {
	Dataset string `json:"dataset,omitempty" jsonschema:"Optional dataset filter (congress, govinfo, openstates)"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum rows to return, default 20, capped at 200"`
}

// RunStats returns recorded ingestion runs, newest first.
func (k *Kit) RunStats(ctx context.Context, in RunStatsInput) ([]map[string]any, error) {
	limit := clampLimit(in.Limit)

	if in.Dataset != "" {
		return k.db.Query(ctx, `SELECT run_id, dataset, started_at, completed_at,
				total, processed, succeeded, failed, skipped, error_count
			FROM ingestion_runs
			WHERE dataset = $1
			ORDER BY started_at DESC
			LIMIT $2`, in.Dataset, limit)
	}
	return k.db.Query(ctx, `SELECT run_id, dataset, started_at, completed_at,
			total, processed, succeeded, failed, skipped, error_count
		FROM ingestion_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
}

func isKnownTable(name string) bool {
	for _, t := range knownTables {
		if t == name {
			return true
		}
	}
	return false
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultQueryLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}
