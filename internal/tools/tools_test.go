package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opendiscourse/opendiscourse/internal/log"
)

type fakeQuerier struct {
	lastQuery string
	lastArgs  []any
	rows      []map[string]any

	counts  map[string]int64
	missing map[string]bool
}

func (f *fakeQuerier) Query(_ context.Context, query string, args ...any) ([]map[string]any, error) {
	f.lastQuery = query
	f.lastArgs = args
	return f.rows, nil
}

func (f *fakeQuerier) CountRecords(_ context.Context, table string) (int64, error) {
	return f.counts[table], nil
}

func (f *fakeQuerier) TableExists(_ context.Context, table string) (bool, error) {
	return !f.missing[table], nil
}

func newTestKit(t *testing.T, q Querier) *Kit {
	t.Helper()
	kit, err := NewKit(q, log.NewNop())
	if err != nil {
		t.Fatalf("NewKit: %v", err)
	}
	return kit
}

func TestNewKitRequiresQuerier(t *testing.T) {
	if _, err := NewKit(nil, log.NewNop()); err == nil {
		t.Fatal("NewKit(nil) should fail")
	}
}

func TestDatasetCountsAllTables(t *testing.T) {
	q := &fakeQuerier{
		counts:  map[string]int64{"congress_bills": 1200, "openstates_bills": 300},
		missing: map[string]bool{"govinfo_crec_granules": true},
	}
	kit := newTestKit(t, q)

	counts, err := kit.DatasetCounts(context.Background(), DatasetCountsInput{})
	if err != nil {
		t.Fatalf("DatasetCounts: %v", err)
	}
	if len(counts) != len(knownTables) {
		t.Fatalf("counts = %d tables, want %d", len(counts), len(knownTables))
	}

	byTable := make(map[string]TableCount, len(counts))
	for _, c := range counts {
		byTable[c.Table] = c
	}
	if got := byTable["congress_bills"]; !got.Exists || got.Rows != 1200 {
		t.Errorf("congress_bills = %+v", got)
	}
	if got := byTable["govinfo_crec_granules"]; got.Exists || got.Rows != 0 {
		t.Errorf("missing table = %+v, want exists=false rows=0", got)
	}
}

func TestDatasetCountsRejectsUnknownTable(t *testing.T) {
	kit := newTestKit(t, &fakeQuerier{})

	_, err := kit.DatasetCounts(context.Background(), DatasetCountsInput{Table: "pg_authid"})
	if !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("err = %v, want ErrUnknownTable", err)
	}
}

func TestRecentBillsCongressFilter(t *testing.T) {
	q := &fakeQuerier{}
	kit := newTestKit(t, q)

	if _, err := kit.RecentBills(context.Background(), RecentBillsInput{Congress: 118, Limit: 5}); err != nil {
		t.Fatalf("RecentBills: %v", err)
	}
	if !strings.Contains(q.lastQuery, "WHERE congress = $1") {
		t.Errorf("query missing congress filter: %s", q.lastQuery)
	}
	if len(q.lastArgs) != 2 || q.lastArgs[0] != 118 || q.lastArgs[1] != 5 {
		t.Errorf("args = %v", q.lastArgs)
	}

	if _, err := kit.RecentBills(context.Background(), RecentBillsInput{}); err != nil {
		t.Fatalf("RecentBills: %v", err)
	}
	if strings.Contains(q.lastQuery, "WHERE") {
		t.Errorf("unfiltered query has a WHERE clause: %s", q.lastQuery)
	}
	if len(q.lastArgs) != 1 || q.lastArgs[0] != defaultQueryLimit {
		t.Errorf("args = %v, want default limit", q.lastArgs)
	}
}

func TestStateBillsCombinedFilters(t *testing.T) {
	q := &fakeQuerier{}
	kit := newTestKit(t, q)

	_, err := kit.StateBills(context.Background(), StateBillsInput{
		Jurisdiction: "California",
		Session:      "20232024",
	})
	if err != nil {
		t.Fatalf("StateBills: %v", err)
	}
	if !strings.Contains(q.lastQuery, "WHERE jurisdiction_name = $1 AND session = $2") {
		t.Errorf("query = %s", q.lastQuery)
	}
	if !strings.Contains(q.lastQuery, "LIMIT $3") {
		t.Errorf("limit placeholder wrong: %s", q.lastQuery)
	}
	if len(q.lastArgs) != 3 || q.lastArgs[0] != "California" || q.lastArgs[1] != "20232024" {
		t.Errorf("args = %v", q.lastArgs)
	}
}

func TestStateBillsSessionOnly(t *testing.T) {
	q := &fakeQuerier{}
	kit := newTestKit(t, q)

	if _, err := kit.StateBills(context.Background(), StateBillsInput{Session: "2024"}); err != nil {
		t.Fatalf("StateBills: %v", err)
	}
	if !strings.Contains(q.lastQuery, "WHERE session = $1") {
		t.Errorf("query = %s", q.lastQuery)
	}
}

func TestRecordPackagesDateRange(t *testing.T) {
	q := &fakeQuerier{}
	kit := newTestKit(t, q)

	_, err := kit.RecordPackages(context.Background(), RecordPackagesInput{
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
	})
	if err != nil {
		t.Fatalf("RecordPackages: %v", err)
	}
	if !strings.Contains(q.lastQuery, "WHERE date_issued >= $1 AND date_issued <= $2") {
		t.Errorf("query = %s", q.lastQuery)
	}
	if len(q.lastArgs) != 3 || q.lastArgs[2] != defaultQueryLimit {
		t.Errorf("args = %v", q.lastArgs)
	}
}

func TestRunStatsDatasetFilter(t *testing.T) {
	q := &fakeQuerier{}
	kit := newTestKit(t, q)

	if _, err := kit.RunStats(context.Background(), RunStatsInput{Dataset: "congress", Limit: 3}); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if !strings.Contains(q.lastQuery, "WHERE dataset = $1") {
		t.Errorf("query = %s", q.lastQuery)
	}
	if len(q.lastArgs) != 2 || q.lastArgs[0] != "congress" || q.lastArgs[1] != 3 {
		t.Errorf("args = %v", q.lastArgs)
	}

	if _, err := kit.RunStats(context.Background(), RunStatsInput{}); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if strings.Contains(q.lastQuery, "WHERE") {
		t.Errorf("unfiltered query has a WHERE clause: %s", q.lastQuery)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, defaultQueryLimit},
		{-5, defaultQueryLimit},
		{1, 1},
		{200, 200},
		{201, maxQueryLimit},
		{10000, maxQueryLimit},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.in); got != tc.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
