// Package ingest implements the ingestion runs that pull records from the
// upstream government APIs and persist them into PostgreSQL.
//
// A run moves through a fixed set of states (fetch listing, persist, fetch
// details, summarize) and isolates per-item failures: one malformed record is
// counted and reported, never fatal to the batch it arrived in.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/opendiscourse/opendiscourse/internal/config"
)

// Sentinel errors for run control.
var (
	ErrRunInProgress     = errors.New("ingest: another run for this dataset is in progress")
	ErrInvalidTransition = errors.New("ingest: invalid state transition")
)

// State is the phase an ingestion run is in.
type State int

const (
	StateNotStarted State = iota
	StateFetchingList
	StatePersisting
	StateFetchingDetails
	StateSummarizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateFetchingList:
		return "fetching_list"
	case StatePersisting:
		return "persisting"
	case StateFetchingDetails:
		return "fetching_details"
	case StateSummarizing:
		return "summarizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// validNext encodes the allowed transitions. The details phase is optional;
// an empty listing may jump straight to the details pass (which reads
// previously stored rows) or to summarizing.
var validNext = map[State][]State{
	StateNotStarted:      {StateFetchingList},
	StateFetchingList:    {StatePersisting, StateFetchingDetails, StateSummarizing},
	StatePersisting:      {StateFetchingDetails, StateSummarizing},
	StateFetchingDetails: {StateSummarizing},
	StateSummarizing:     {StateDone},
}

// Sink is the persistence surface the ingesters need. *database.Sink
// satisfies it.
type Sink interface {
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any, onConflict string) (int64, error)
	Upsert(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error)
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// Run tracks the lifecycle of one ingestion run for a dataset.
type Run struct {
	ID      uuid.UUID
	Dataset string

	state    State
	reporter *Reporter
	logger   *slog.Logger
	lock     *flock.Flock
}

// NewRun creates a run in the not-started state and registers its reporter.
func NewRun(dataset string, reporter *Reporter, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	return &Run{
		ID:       reporter.Stats().RunID,
		Dataset:  dataset,
		state:    StateNotStarted,
		reporter: reporter,
		logger:   logger.With("dataset", dataset),
	}
}

// State returns the current phase.
func (r *Run) State() State { return r.state }

// Reporter returns the run's progress reporter.
func (r *Run) Reporter() *Reporter { return r.reporter }

// transition moves the run to the next phase, rejecting jumps the lifecycle
// does not allow.
func (r *Run) transition(to State) error {
	for _, allowed := range validNext[r.state] {
		if to == allowed {
			r.logger.Info("run state change", "from", r.state.String(), "to", to.String())
			r.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, to)
}

// AcquireLock takes the per-dataset run lock so two runs for the same
// dataset cannot interleave writes. Non-blocking: a held lock fails fast.
func (r *Run) AcquireLock() error {
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("resolving lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, r.Dataset+".lock"))

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring run lock for %s: %w", r.Dataset, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrRunInProgress, r.Dataset)
	}
	r.lock = lock
	return nil
}

// ReleaseLock releases the run lock if held.
func (r *Run) ReleaseLock() {
	if r.lock == nil {
		return
	}
	if err := r.lock.Unlock(); err != nil {
		r.logger.Warn("failed to release run lock", "error", err)
	}
	r.lock = nil
}

// Finish transitions through summarizing to done, freezes the stats and
// prints the summary.
func (r *Run) Finish() error {
	if err := r.transition(StateSummarizing); err != nil {
		return err
	}
	r.reporter.MarkComplete()
	r.reporter.PrintSummary()
	r.logger.Info("run complete", "stats", r.reporter.Stats())
	return r.transition(StateDone)
}

var runColumns = []string{
	"run_id", "dataset", "started_at", "completed_at",
	"total", "processed", "succeeded", "failed", "skipped", "error_count",
}

// persistStats records the run outcome in ingestion_runs so past runs stay
// queryable after the process exits. Call after Finish.
func (r *Run) persistStats(ctx context.Context, db Sink) error {
	s := r.reporter.Stats()
	row := []any{
		s.RunID, r.Dataset, s.StartTime, s.EndTime,
		s.Total, s.Processed, s.Succeeded, s.Failed, s.Skipped, s.ErrorCount,
	}
	_, err := db.BulkInsert(ctx, "ingestion_runs", runColumns, [][]any{row},
		"ON CONFLICT (run_id) DO NOTHING")
	return err
}
