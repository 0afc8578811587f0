// Package runlog keeps a SQL history of inference runs.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// Config selects the database backing the run log.
type Config struct {
	// Driver is "sqlite", "postgres" or "none".
	Driver       string
	SQLitePath   string
	PostgresDSN  string
	MaxOpenConns int
}

// Store persists inference runs. It works with both SQLite and PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and applies the schema. Driver
// "none" returns a nil store.
func Open(cfg Config) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		db, err = openSQLite(cfg.SQLitePath)
		cfg.Driver = "sqlite"
	case "postgres":
		db, err = openPostgres(cfg.PostgresDSN)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported run log driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Record stores a finished run with its passes in one transaction.
func (s *Store) Record(ctx context.Context, run domain.InferenceRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run log transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO inference_runs (run_id, started_at, finished_at, edges_created, failed_passes)
		VALUES (?, ?, ?, ?, ?)`),
		run.RunID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.Created(),
		len(run.FailedPasses()),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	for i, p := range run.Passes {
		errText := ""
		if p.Err != nil {
			errText = p.Err.Error()
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO inference_passes (run_id, position, name, created, skipped, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			run.RunID, i, p.Name, p.Created, p.Skipped, p.Duration.Milliseconds(), errText,
		)
		if err != nil {
			return fmt.Errorf("insert pass %s of run %s: %w", p.Name, run.RunID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.InferenceRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT run_id, started_at, finished_at
		FROM inference_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.InferenceRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Passes, err = s.passes(ctx, runs[i].RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Get returns a single run.
func (s *Store) Get(ctx context.Context, runID string) (domain.InferenceRun, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT run_id, started_at, finished_at
		FROM inference_runs
		WHERE run_id = ?`), runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InferenceRun{}, fmt.Errorf("inference run %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.InferenceRun{}, err
	}
	run.Passes, err = s.passes(ctx, runID)
	return run, err
}

func (s *Store) passes(ctx context.Context, runID string) ([]domain.PassResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT name, created, skipped, duration_ms, error
		FROM inference_passes
		WHERE run_id = ?
		ORDER BY position`), runID)
	if err != nil {
		return nil, fmt.Errorf("query passes of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.PassResult
	for rows.Next() {
		var (
			p          domain.PassResult
			durationMS int64
			errText    string
		)
		if err := rows.Scan(&p.Name, &p.Created, &p.Skipped, &durationMS, &errText); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.Duration = time.Duration(durationMS) * time.Millisecond
		if errText != "" {
			p.Err = errors.New(errText)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.InferenceRun, error) {
	var (
		run              domain.InferenceRun
		started, finished string
	)
	if err := row.Scan(&run.RunID, &started, &finished); err != nil {
		return domain.InferenceRun{}, err
	}
	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return domain.InferenceRun{}, fmt.Errorf("parse started_at of run %s: %w", run.RunID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return domain.InferenceRun{}, fmt.Errorf("parse finished_at of run %s: %w", run.RunID, err)
	}
	return run, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
