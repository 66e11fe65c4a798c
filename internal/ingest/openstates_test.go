package ingest

import (
	"context"
	"testing"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
	"github.com/opendiscourse/opendiscourse/internal/log"
	"github.com/opendiscourse/opendiscourse/internal/openstates"
)

type fakeOpenStatesClient struct {
	bills  []apiclient.Item
	filter openstates.BillSearch
}

func (f *fakeOpenStatesClient) SearchBills(_ context.Context, filter openstates.BillSearch, _, _ int) ([]apiclient.Item, error) {
	f.filter = filter
	return f.bills, nil
}

func stateBill() apiclient.Item {
	return apiclient.Item{
		"id":             "ocd-bill/0001",
		"identifier":     "AB 100",
		"title":          "An act relating to water",
		"classification": []any{"bill"},
		"subject":        []any{"WATER", "ENVIRONMENT"},
		"session":        "20232024",
		"jurisdiction": map[string]any{
			"id":   "ocd-jurisdiction/country:us/state:ca/government",
			"name": "California",
		},
		"from_organization": map[string]any{
			"id":             "ocd-organization/asm",
			"name":           "Assembly",
			"classification": "lower",
		},
		"first_action_date":         "2023-02-01",
		"latest_action_date":        "2023-06-15",
		"latest_action_description": "Referred to Com. on W., P.",
		"created_at":                "2023-02-01T10:00:00+00:00",
		"updated_at":                "2023-06-15T08:30:00+00:00",
		"openstates_url":            "https://openstates.org/ca/bills/20232024/AB100/",
		"sponsorships": []any{
			map[string]any{
				"person":         map[string]any{"id": "ocd-person/1", "name": "Asm. Rivers"},
				"classification": "primary",
				"primary":        true,
			},
			map[string]any{
				"person":         map[string]any{"id": "ocd-person/2", "name": "Asm. Brooks"},
				"classification": "cosponsor",
				"primary":        false,
			},
		},
		"actions": []any{
			map[string]any{
				"organization":   map[string]any{"id": "ocd-organization/asm", "name": "Assembly"},
				"description":    "Introduced",
				"date":           "2023-02-01",
				"classification": []any{"introduction"},
			},
			map[string]any{
				"organization":   map[string]any{"id": "ocd-organization/asm", "name": "Assembly"},
				"description":    "Referred to committee",
				"date":           "2023-02-10",
				"classification": []any{"referral-committee"},
			},
		},
		"votes": []any{
			map[string]any{
				"id":                    "ocd-vote/1",
				"motion_text":           "Do pass",
				"motion_classification": []any{"passage"},
				"start_date":            "2023-06-15T00:00:00+00:00",
				"result":                "pass",
				"organization":          map[string]any{"id": "ocd-organization/asm", "name": "Assembly"},
				"counts": []any{
					map[string]any{"option": "yes", "count": float64(52)},
					map[string]any{"option": "no", "count": float64(18)},
					map[string]any{"option": "abstain", "count": float64(3)},
					map[string]any{"option": "absent", "count": float64(7)},
				},
			},
		},
	}
}

func TestOpenStatesIngestBillsWithChildren(t *testing.T) {
	client := &fakeOpenStatesClient{bills: []apiclient.Item{stateBill()}}
	sink := &fakeSink{}
	ing := NewOpenStates(client, sink, log.NewNop(), nil)

	count, err := ing.IngestBills(context.Background(), "ca", "20232024", "lower", "2023-01-01")
	if err != nil {
		t.Fatalf("IngestBills: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// The embedded children travel with the listing request.
	f := client.filter
	if f.Jurisdiction != "ca" || f.Session != "20232024" || f.Chamber != "lower" || f.UpdatedSince != "2023-01-01" {
		t.Errorf("filter = %+v", f)
	}
	if len(f.Include) != 3 || f.Include[0] != "sponsorships" || f.Include[1] != "actions" || f.Include[2] != "votes" {
		t.Errorf("Include = %v", f.Include)
	}

	billCalls := sink.callsTo("openstates_bills")
	if len(billCalls) != 1 || billCalls[0].method != "upsert" {
		t.Fatalf("bill calls = %+v", billCalls)
	}
	if got := billCalls[0].conflict; len(got) != 1 || got[0] != "id" {
		t.Errorf("conflict columns = %v, want [id]", got)
	}
	billRow := billCalls[0].rows[0]
	// classification arrives as a list; the scalar column keeps the first entry.
	if billRow[3] != "bill" {
		t.Errorf("classification = %v, want bill", billRow[3])
	}
	if subjects, ok := billRow[4].([]string); !ok || len(subjects) != 2 || subjects[0] != "WATER" {
		t.Errorf("subject = %v", billRow[4])
	}

	sponsorCalls := sink.callsTo("openstates_bill_sponsors")
	if len(sponsorCalls) != 1 || sponsorCalls[0].onConflict != "ON CONFLICT DO NOTHING" {
		t.Fatalf("sponsor calls = %+v", sponsorCalls)
	}
	if len(sponsorCalls[0].rows) != 2 {
		t.Errorf("sponsor rows = %d, want 2", len(sponsorCalls[0].rows))
	}
	primary := sponsorCalls[0].rows[0]
	if primary[0] != "ocd-bill/0001" || primary[2] != "Asm. Rivers" || primary[4] != true {
		t.Errorf("primary sponsor row = %v", primary)
	}

	actionCalls := sink.callsTo("openstates_bill_actions")
	if len(actionCalls) != 1 {
		t.Fatalf("action calls = %d, want 1", len(actionCalls))
	}
	rows := actionCalls[0].rows
	if len(rows) != 2 {
		t.Fatalf("action rows = %d, want 2", len(rows))
	}
	// order_number preserves the upstream action ordering.
	if rows[0][6] != 0 || rows[1][6] != 1 {
		t.Errorf("order numbers = %v, %v", rows[0][6], rows[1][6])
	}

	voteCalls := sink.callsTo("openstates_bill_votes")
	if len(voteCalls) != 1 || voteCalls[0].method != "upsert" {
		t.Fatalf("vote calls = %+v", voteCalls)
	}
	vote := voteCalls[0].rows[0]
	if vote[0] != "ocd-vote/1" || vote[1] != "ocd-bill/0001" {
		t.Errorf("vote keys = %v, %v", vote[0], vote[1])
	}
	if vote[8] != 52 || vote[9] != 18 || vote[10] != 10 {
		t.Errorf("vote counts = yes %v / no %v / other %v, want 52/18/10", vote[8], vote[9], vote[10])
	}
}

func TestOpenStatesIngestBillsMissingIDFails(t *testing.T) {
	bill := stateBill()
	delete(bill, "id")
	client := &fakeOpenStatesClient{bills: []apiclient.Item{bill}}
	sink := &fakeSink{}
	ing := NewOpenStates(client, sink, log.NewNop(), nil)

	count, err := ing.IngestBills(context.Background(), "ca", "", "", "")
	if err != nil {
		t.Fatalf("IngestBills: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if s := ing.Run().Reporter().Stats(); s.Failed != 1 || s.ErrorCount != 1 {
		t.Errorf("stats = %+v", s)
	}
	if len(sink.calls) != 0 {
		t.Errorf("sink calls = %v, want none for an empty batch", sink.calls)
	}
}

func TestTallyVoteCounts(t *testing.T) {
	yes, no, other := tallyVoteCounts([]map[string]any{
		{"option": "yes", "count": float64(30)},
		{"option": "no", "count": float64(10)},
		{"option": "abstain", "count": float64(2)},
		{"option": "absent", "count": float64(3)},
	})
	if yes != 30 || no != 10 || other != 5 {
		t.Errorf("tally = %d/%d/%d, want 30/10/5", yes, no, other)
	}

	yes, no, other = tallyVoteCounts(nil)
	if yes != 0 || no != 0 || other != 0 {
		t.Errorf("empty tally = %d/%d/%d", yes, no, other)
	}
}
