package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/opendiscourse/opendiscourse/internal/log"
)

// fakeSink records every persistence call so tests can assert on the exact
// tables, columns and conflict clauses the ingesters emit.
type sinkCall struct {
	method     string
	table      string
	columns    []string
	rows       [][]any
	onConflict string
	conflict   []string
}

type fakeSink struct {
	calls       []sinkCall
	queryResult []map[string]any
	queryErr    error
	upsertErr   error
}

func (f *fakeSink) BulkInsert(_ context.Context, table string, columns []string, rows [][]any, onConflict string) (int64, error) {
	f.calls = append(f.calls, sinkCall{
		method: "bulk_insert", table: table, columns: columns,
		rows: rows, onConflict: onConflict,
	})
	return int64(len(rows)), nil
}

func (f *fakeSink) Upsert(_ context.Context, table string, columns []string, rows [][]any, conflictColumns, _ []string) (int64, error) {
	f.calls = append(f.calls, sinkCall{
		method: "upsert", table: table, columns: columns,
		rows: rows, conflict: conflictColumns,
	})
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return int64(len(rows)), nil
}

func (f *fakeSink) Query(_ context.Context, _ string, _ ...any) ([]map[string]any, error) {
	return f.queryResult, f.queryErr
}

func (f *fakeSink) callsTo(table string) []sinkCall {
	var out []sinkCall
	for _, c := range f.calls {
		if c.table == table {
			out = append(out, c)
		}
	}
	return out
}

func newTestRun(t *testing.T, dataset string) *Run {
	t.Helper()
	return NewRun(dataset, NewReporter(log.NewNop(), nil), log.NewNop())
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNotStarted:      "not_started",
		StateFetchingList:    "fetching_list",
		StatePersisting:      "persisting",
		StateFetchingDetails: "fetching_details",
		StateSummarizing:     "summarizing",
		StateDone:            "done",
		State(42):            "State(42)",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  State
		to    State
		valid bool
	}{
		{"start fetching", StateNotStarted, StateFetchingList, true},
		{"fetch to persist", StateFetchingList, StatePersisting, true},
		{"empty listing to details", StateFetchingList, StateFetchingDetails, true},
		{"empty listing to summary", StateFetchingList, StateSummarizing, true},
		{"persist to details", StatePersisting, StateFetchingDetails, true},
		{"persist skips details", StatePersisting, StateSummarizing, true},
		{"details to summary", StateFetchingDetails, StateSummarizing, true},
		{"summary to done", StateSummarizing, StateDone, true},
		{"cannot skip fetching", StateNotStarted, StatePersisting, false},
		{"cannot rewind", StatePersisting, StateFetchingList, false},
		{"done is terminal", StateDone, StateFetchingList, false},
		{"details cannot restart", StateFetchingDetails, StateFetchingList, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := newTestRun(t, "congress")
			run.state = tc.from

			err := run.transition(tc.to)
			if tc.valid {
				if err != nil {
					t.Fatalf("transition(%s -> %s) = %v, want nil", tc.from, tc.to, err)
				}
				if run.State() != tc.to {
					t.Errorf("state = %s, want %s", run.State(), tc.to)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("transition(%s -> %s) = %v, want ErrInvalidTransition", tc.from, tc.to, err)
			}
			if run.State() != tc.from {
				t.Errorf("state moved to %s on rejected transition", run.State())
			}
		})
	}
}

func TestFinishRequiresStartedRun(t *testing.T) {
	run := newTestRun(t, "congress")
	if err := run.Finish(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Finish on fresh run = %v, want ErrInvalidTransition", err)
	}
}

func TestFinishFreezesStatsAndReachesDone(t *testing.T) {
	run := newTestRun(t, "congress")
	run.state = StatePersisting
	run.Reporter().RecordSuccess()

	if err := run.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if run.State() != StateDone {
		t.Errorf("state = %s, want done", run.State())
	}
	if run.Reporter().Stats().EndTime.IsZero() {
		t.Error("EndTime not set by Finish")
	}
}

func TestRunLockIsExclusivePerDataset(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	first := newTestRun(t, "congress")
	if err := first.AcquireLock(); err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer first.ReleaseLock()

	second := newTestRun(t, "congress")
	if err := second.AcquireLock(); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second AcquireLock = %v, want ErrRunInProgress", err)
	}

	// A different dataset is not blocked.
	other := newTestRun(t, "govinfo")
	if err := other.AcquireLock(); err != nil {
		t.Fatalf("other dataset AcquireLock: %v", err)
	}
	other.ReleaseLock()

	// Releasing frees the dataset for the next run.
	first.ReleaseLock()
	if err := second.AcquireLock(); err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	second.ReleaseLock()
}
