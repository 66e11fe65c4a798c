// Package database implements the PostgreSQL sink the ingesters persist into.
//
// Every public method runs in its own transaction: a failed batch rolls back
// completely and the original database error is returned to the caller, who
// decides whether the run continues.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for argument validation.
var (
	ErrNoRows       = errors.New("database: no rows provided")
	ErrNoColumns    = errors.New("database: no columns provided")
	ErrColumnCount  = errors.New("database: row length does not match column count")
	ErrNoConflict   = errors.New("database: no conflict columns provided")
	ErrInvalidTable = errors.New("database: invalid table name")
)

// Sink writes ingested records to PostgreSQL over a pgx connection pool.
//
// Sink is safe for concurrent use by multiple goroutines.
type Sink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to PostgreSQL and verifies the connection with a ping.
// connString is a key=value DSN or postgres:// URL; it is never logged.
func Open(ctx context.Context, connString string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("connected to database",
		"host", cfg.ConnConfig.Host,
		"port", cfg.ConnConfig.Port,
		"database", cfg.ConnConfig.Database)

	return &Sink{pool: pool, logger: logger}, nil
}

// NewWithPool wraps an existing pool. Used by tests that manage their own
// container lifecycle.
func NewWithPool(pool *pgxpool.Pool, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for callers that need direct access.
func (s *Sink) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pool connections.
func (s *Sink) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *Sink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// BulkInsert inserts rows into table in a single multi-row INSERT inside one
// transaction. onConflict, when non-empty, is appended verbatim (e.g.
// "ON CONFLICT (id) DO NOTHING"). Returns the number of rows affected.
func (s *Sink) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any, onConflict string) (int64, error) {
	if err := validateBatch(table, columns, rows); err != nil {
		return 0, err
	}

	query, args := buildInsert(table, columns, rows, onConflict)
	affected, err := s.execInTx(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("bulk insert into %s: %w", table, err)
	}

	s.logger.Debug("bulk insert complete", "table", table, "rows", len(rows), "affected", affected)
	return affected, nil
}

// Upsert inserts rows with ON CONFLICT ... DO UPDATE on conflictColumns.
// updateColumns names the columns refreshed from EXCLUDED on conflict; when
// empty, every non-conflict column is updated. Returns rows affected.
func (s *Sink) Upsert(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error) {
	if err := validateBatch(table, columns, rows); err != nil {
		return 0, err
	}
	if len(conflictColumns) == 0 {
		return 0, ErrNoConflict
	}

	if len(updateColumns) == 0 {
		conflictSet := make(map[string]bool, len(conflictColumns))
		for _, c := range conflictColumns {
			conflictSet[c] = true
		}
		for _, c := range columns {
			if !conflictSet[c] {
				updateColumns = append(updateColumns, c)
			}
		}
	}

	onConflict := buildDoUpdate(conflictColumns, updateColumns)
	query, args := buildInsert(table, columns, rows, onConflict)
	affected, err := s.execInTx(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("upsert into %s: %w", table, err)
	}

	s.logger.Debug("upsert complete", "table", table, "rows", len(rows), "affected", affected)
	return affected, nil
}

// Exec runs an arbitrary statement in its own transaction and returns rows
// affected.
func (s *Sink) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return s.execInTx(ctx, query, args)
}

// Query runs a SELECT and returns the result as one map per row, keyed by
// column name.
func (s *Sink) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			record[fd.Name] = values[i]
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

// QueryValues runs a single-column SELECT and returns the column values.
func (s *Sink) QueryValues(ctx context.Context, query string, args ...any) ([]any, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (any, error) {
		var v any
		err := row.Scan(&v)
		return v, err
	})
}

// TableExists reports whether a table exists in the public schema.
func (s *Sink) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	)`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return exists, nil
}

// CountRecords returns the row count of a table.
func (s *Sink) CountRecords(ctx context.Context, table string) (int64, error) {
	if !validIdentifier(table) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	var count int64
	q := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize()
	if err := s.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return count, nil
}

// execInTx runs one statement inside a transaction. Rollback on any failure;
// the original error is surfaced, never the rollback's.
func (s *Sink) execInTx(ctx context.Context, query string, args []any) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

func validateBatch(table string, columns []string, rows [][]any) error {
	if !validIdentifier(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if len(columns) == 0 {
		return ErrNoColumns
	}
	if len(rows) == 0 {
		return ErrNoRows
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrColumnCount, i, len(row), len(columns))
		}
	}
	return nil
}

// buildInsert assembles a multi-row INSERT with positional placeholders and
// the flattened argument list.
func buildInsert(table string, columns []string, rows [][]any, onConflict string) (string, []any) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
			args = append(args, v)
		}
		sb.WriteByte(')')
	}

	if onConflict != "" {
		sb.WriteByte(' ')
		sb.WriteString(onConflict)
	}
	return sb.String(), args
}

// buildDoUpdate renders the ON CONFLICT ... DO UPDATE SET clause with every
// update column refreshed from EXCLUDED.
func buildDoUpdate(conflictColumns, updateColumns []string) string {
	conflict := make([]string, len(conflictColumns))
	for i, c := range conflictColumns {
		conflict[i] = pgx.Identifier{c}.Sanitize()
	}

	if len(updateColumns) == 0 {
		return "ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO NOTHING"
	}

	set := make([]string, len(updateColumns))
	for i, c := range updateColumns {
		q := pgx.Identifier{c}.Sanitize()
		set[i] = q + " = EXCLUDED." + q
	}
	return "ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO UPDATE SET " + strings.Join(set, ", ")
}

// validIdentifier accepts plain SQL identifiers: letters, digits and
// underscore, not starting with a digit.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
