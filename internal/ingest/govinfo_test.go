package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opendiscourse/opendiscourse/internal/apiclient"
	"github.com/opendiscourse/opendiscourse/internal/log"
)

type fakeGovInfoClient struct {
	packages []apiclient.Item
	listErr  error

	granules   map[string][]apiclient.Item
	summaryErr error

	recordedStart string
	recordedEnd   string
}

func (f *fakeGovInfoClient) CongressionalRecord(_ context.Context, startDate, endDate string, _ int) ([]apiclient.Item, error) {
	f.recordedStart = startDate
	f.recordedEnd = endDate
	return f.packages, f.listErr
}

func (f *fakeGovInfoClient) PackageGranules(_ context.Context, packageID string, _ int) ([]apiclient.Item, error) {
	return f.granules[packageID], nil
}

func (f *fakeGovInfoClient) GranuleSummary(_ context.Context, _, granuleID string) (apiclient.Item, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return apiclient.Item{
		"download": map[string]any{
			"pdfLink": "https://example.gov/" + granuleID + ".pdf",
			"htmLink": "https://example.gov/" + granuleID + ".htm",
			"xmlLink": "https://example.gov/" + granuleID + ".xml",
		},
	}, nil
}

func TestGovInfoIngestPackagesWrapsDates(t *testing.T) {
	client := &fakeGovInfoClient{
		packages: []apiclient.Item{
			{
				"packageId":  "CREC-2024-01-05",
				"title":      "Congressional Record Volume 170, Issue 3",
				"dateIssued": "2024-01-05",
				"congress":   float64(118),
			},
		},
	}
	sink := &fakeSink{}
	ing := NewGovInfo(client, sink, log.NewNop(), nil)

	count, err := ing.IngestPackages(context.Background(), "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("IngestPackages: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// Date-only bounds expand to the full days, inclusive.
	if client.recordedStart != "2024-01-01T00:00:00Z" {
		t.Errorf("start = %q", client.recordedStart)
	}
	if client.recordedEnd != "2024-01-31T23:59:59Z" {
		t.Errorf("end = %q", client.recordedEnd)
	}

	upserts := sink.callsTo("govinfo_crec_packages")
	if len(upserts) != 1 {
		t.Fatalf("upsert calls = %d, want 1", len(upserts))
	}
	if got := upserts[0].conflict; len(got) != 1 || got[0] != "package_id" {
		t.Errorf("conflict columns = %v, want [package_id]", got)
	}
}

func TestGovInfoIngestPackagesMissingIDFails(t *testing.T) {
	client := &fakeGovInfoClient{
		packages: []apiclient.Item{
			{"packageId": "CREC-2024-01-05", "dateIssued": "2024-01-05"},
			{"dateIssued": "2024-01-06"},
		},
	}
	sink := &fakeSink{}
	ing := NewGovInfo(client, sink, log.NewNop(), nil)

	if _, err := ing.IngestPackages(context.Background(), "2024-01-05", "2024-01-06"); err != nil {
		t.Fatalf("IngestPackages: %v", err)
	}

	s := ing.Run().Reporter().Stats()
	if s.Succeeded != 1 || s.Failed != 1 || s.ErrorCount != 1 {
		t.Errorf("stats = %+v", s)
	}
	if len(sink.callsTo("govinfo_crec_packages")[0].rows) != 1 {
		t.Error("the package without an ID must be dropped from the batch")
	}
}

// granuleReadyIngester returns an ingester whose run already passed the
// listing phase, so the granule pass may start.
func granuleReadyIngester(t *testing.T, client *fakeGovInfoClient, sink *fakeSink) *GovInfoIngester {
	t.Helper()
	ing := NewGovInfo(client, sink, log.NewNop(), nil)
	saved := client.packages
	client.packages = nil
	if _, err := ing.IngestPackages(context.Background(), "2024-01-01", "2024-01-01"); err != nil {
		t.Fatalf("IngestPackages: %v", err)
	}
	client.packages = saved
	return ing
}

func TestGovInfoIngestGranulesSkipsEmptyPackages(t *testing.T) {
	client := &fakeGovInfoClient{
		granules: map[string][]apiclient.Item{
			"CREC-2024-01-05": {
				{"granuleId": "CREC-2024-01-05-pt1-PgS1", "title": "Senate", "granuleClass": "SENATE", "granuleDate": "2024-01-05"},
				{"granuleId": "CREC-2024-01-05-pt1-PgH1", "title": "House", "granuleClass": "HOUSE", "granuleDate": "2024-01-05"},
			},
			// CREC-2024-01-06 has none.
		},
	}
	sink := &fakeSink{
		queryResult: []map[string]any{
			{"package_id": "CREC-2024-01-05"},
			{"package_id": "CREC-2024-01-06"},
		},
	}
	ing := granuleReadyIngester(t, client, sink)

	count, err := ing.IngestGranules(context.Background())
	if err != nil {
		t.Fatalf("IngestGranules: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	s := ing.Run().Reporter().Stats()
	if s.Succeeded != 1 || s.Skipped != 1 || s.Failed != 0 {
		t.Errorf("stats = %+v, want empty package skipped", s)
	}

	upserts := sink.callsTo("govinfo_crec_granules")
	if len(upserts) != 1 {
		t.Fatalf("upsert calls = %d, want 1", len(upserts))
	}
	call := upserts[0]
	if got := call.conflict; len(got) != 1 || got[0] != "granule_id" {
		t.Errorf("conflict columns = %v, want [granule_id]", got)
	}
	if got := call.rows[0][5]; got != "https://example.gov/CREC-2024-01-05-pt1-PgS1.pdf" {
		t.Errorf("pdf_link = %v", got)
	}
}

func TestGovInfoGranuleSummaryFailureDegradesToNullLinks(t *testing.T) {
	client := &fakeGovInfoClient{
		granules: map[string][]apiclient.Item{
			"CREC-2024-01-05": {
				{"granuleId": "CREC-2024-01-05-pt1-PgS1", "granuleDate": "2024-01-05"},
			},
		},
		summaryErr: errors.New("summary endpoint 503"),
	}
	sink := &fakeSink{
		queryResult: []map[string]any{{"package_id": "CREC-2024-01-05"}},
	}
	ing := granuleReadyIngester(t, client, sink)

	count, err := ing.IngestGranules(context.Background())
	if err != nil {
		t.Fatalf("IngestGranules: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want the granule stored despite the summary failure", count)
	}

	row := sink.callsTo("govinfo_crec_granules")[0].rows[0]
	// pdf_link, htm_link, xml_link all NULL.
	for _, idx := range []int{5, 6, 7} {
		if row[idx] != nil {
			t.Errorf("row[%d] = %v, want nil", idx, row[idx])
		}
	}
	if s := ing.Run().Reporter().Stats(); s.Failed != 0 {
		t.Errorf("stats = %+v, summary failure must not fail the package", s)
	}
}

func TestGovInfoQueryErrorAborts(t *testing.T) {
	client := &fakeGovInfoClient{}
	sink := &fakeSink{queryErr: errors.New("relation does not exist")}
	ing := granuleReadyIngester(t, client, sink)

	_, err := ing.IngestGranules(context.Background())
	if err == nil || !strings.Contains(err.Error(), "selecting packages") {
		t.Fatalf("err = %v, want query failure surfaced", err)
	}
}
