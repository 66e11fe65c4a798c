package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/opendiscourse/opendiscourse/internal/log"
)

func TestReporterCounters(t *testing.T) {
	r := NewReporter(log.NewNop(), nil)
	r.SetTotal(6)
	for range 3 {
		r.RecordSuccess()
	}
	r.RecordFailure()
	r.RecordFailure()
	r.RecordSkip()

	s := r.Stats()
	if s.Total != 6 || s.Processed != 6 || s.Succeeded != 3 || s.Failed != 2 || s.Skipped != 1 {
		t.Errorf("stats = %+v", s)
	}
	if got := s.SuccessRate(); got != 50 {
		t.Errorf("SuccessRate = %v, want 50", got)
	}
}

func TestSuccessRateNothingProcessed(t *testing.T) {
	r := NewReporter(log.NewNop(), nil)
	if got := r.Stats().SuccessRate(); got != 0 {
		t.Errorf("SuccessRate = %v, want 0", got)
	}
}

func TestRecordErrorCapsDetailKeepsCount(t *testing.T) {
	r := NewReporter(log.NewNop(), nil)
	for i := range 15 {
		r.RecordError(fmt.Sprintf("error %d", i))
	}

	s := r.Stats()
	if s.ErrorCount != 15 {
		t.Errorf("ErrorCount = %d, want 15", s.ErrorCount)
	}
	if len(s.Errors) != maxErrorDetail {
		t.Fatalf("len(Errors) = %d, want %d", len(s.Errors), maxErrorDetail)
	}
	if s.Errors[0] != "error 0" || s.Errors[9] != "error 9" {
		t.Errorf("Errors = %v, want first ten in order", s.Errors)
	}
}

func TestStatsSnapshotIsIndependent(t *testing.T) {
	r := NewReporter(log.NewNop(), nil)
	r.RecordError("first")

	s := r.Stats()
	s.Errors[0] = "mutated"

	if got := r.Stats().Errors[0]; got != "first" {
		t.Errorf("Errors[0] = %q, snapshot mutation leaked", got)
	}
}

func TestPrintSummaryShowsFirstFiveErrors(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(log.NewNop(), &out)
	r.SetTotal(7)
	for i := range 7 {
		r.RecordFailure()
		r.RecordError(fmt.Sprintf("item %d broke", i))
	}
	r.MarkComplete()
	r.PrintSummary()

	text := out.String()
	for _, want := range []string{
		"INGESTION SUMMARY",
		"Run ID: " + r.Stats().RunID.String(),
		"Total Items: 7",
		"Failed: 7",
		"Success Rate: 0.00%",
		"Errors encountered: 7",
		"First few errors:",
		"1. item 0 broke",
		"5. item 4 broke",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "6. item 5 broke") {
		t.Errorf("summary shows more than %d errors:\n%s", summaryErrors, text)
	}
}

func TestPrintSummaryOmitsErrorSectionWhenClean(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(log.NewNop(), &out)
	r.RecordSuccess()
	r.MarkComplete()
	r.PrintSummary()

	if strings.Contains(out.String(), "Errors encountered") {
		t.Errorf("clean run should not print the error section:\n%s", out.String())
	}
}
