package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxErrorDetail bounds how many error messages are kept (and logged) in
// full; beyond that only the count grows.
const maxErrorDetail = 10

// summaryErrors is how many error messages the printed summary shows.
const summaryErrors = 5

// Stats tracks the counters of one ingestion run.
type Stats struct {
	RunID     uuid.UUID
	StartTime time.Time
	EndTime   time.Time

	Total     int
	Processed int
	Succeeded int
	Failed    int
	Skipped   int

	// ErrorCount counts every recorded error; Errors holds at most
	// maxErrorDetail of them.
	ErrorCount int
	Errors     []string
}

// Duration is the elapsed run time; while the run is live it measures
// against the current time.
func (s Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// SuccessRate is the percentage of processed items that succeeded.
func (s Stats) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Processed) * 100
}

// LogValue renders the counters as one structured group.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID.String()),
		slog.Float64("duration_seconds", s.Duration().Seconds()),
		slog.Int("total", s.Total),
		slog.Int("processed", s.Processed),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Float64("success_rate", s.SuccessRate()),
		slog.Int("error_count", s.ErrorCount),
	)
}

// Reporter tracks progress for one ingestion run. Progress lines go to the
// logger (stderr); the final summary goes to out (stdout) so it survives
// log redirection.
//
// Reporter is safe for concurrent use by multiple goroutines.
type Reporter struct {
	mu     sync.Mutex
	stats  Stats
	logger *slog.Logger
	out    io.Writer
}

// NewReporter creates a Reporter. logger may be nil (slog default); out may
// be nil (summary discarded).
func NewReporter(logger *slog.Logger, out io.Writer) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Reporter{
		stats: Stats{
			RunID:     uuid.New(),
			StartTime: time.Now(),
		},
		logger: logger,
		out:    out,
	}
}

// SetTotal records the expected item count for the current batch.
func (r *Reporter) SetTotal(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Total = n
}

// RecordSuccess counts one successfully processed item.
func (r *Reporter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Succeeded++
	r.stats.Processed++
}

// RecordFailure counts one failed item.
func (r *Reporter) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Failed++
	r.stats.Processed++
}

// RecordSkip counts one skipped item.
func (r *Reporter) RecordSkip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Skipped++
	r.stats.Processed++
}

// RecordError registers an error message. Every call increments the error
// count; only the first maxErrorDetail messages are retained and logged.
func (r *Reporter) RecordError(msg string) {
	r.mu.Lock()
	r.stats.ErrorCount++
	keep := len(r.stats.Errors) < maxErrorDetail
	if keep {
		r.stats.Errors = append(r.stats.Errors, msg)
	}
	r.mu.Unlock()

	if keep {
		r.logger.Error(msg)
	}
}

// MarkComplete freezes the end time.
func (r *Reporter) MarkComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats.EndTime.IsZero() {
		r.stats.EndTime = time.Now()
	}
}

// Stats returns a snapshot of the current counters.
func (r *Reporter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Errors = append([]string(nil), r.stats.Errors...)
	return s
}

// PrintSummary writes the human-readable run summary, including up to
// summaryErrors error messages.
func (r *Reporter) PrintSummary() {
	s := r.Stats()
	rule := strings.Repeat("=", 80)

	fmt.Fprintf(r.out, "\n%s\n", rule)
	fmt.Fprintln(r.out, "INGESTION SUMMARY")
	fmt.Fprintln(r.out, rule)
	fmt.Fprintf(r.out, "Run ID: %s\n", s.RunID)
	fmt.Fprintf(r.out, "Duration: %.2f seconds\n", s.Duration().Seconds())
	fmt.Fprintf(r.out, "Total Items: %d\n", s.Total)
	fmt.Fprintf(r.out, "Processed: %d\n", s.Processed)
	fmt.Fprintf(r.out, "Successful: %d\n", s.Succeeded)
	fmt.Fprintf(r.out, "Failed: %d\n", s.Failed)
	fmt.Fprintf(r.out, "Skipped: %d\n", s.Skipped)
	fmt.Fprintf(r.out, "Success Rate: %.2f%%\n", s.SuccessRate())

	if s.ErrorCount > 0 {
		fmt.Fprintf(r.out, "\nErrors encountered: %d\n", s.ErrorCount)
		fmt.Fprintln(r.out, "\nFirst few errors:")
		for i, msg := range s.Errors {
			if i >= summaryErrors {
				break
			}
			fmt.Fprintf(r.out, "  %d. %s\n", i+1, msg)
		}
	}

	fmt.Fprintf(r.out, "%s\n\n", rule)
}
