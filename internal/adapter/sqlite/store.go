// Package sqlite keeps the provisioning journal: one row per installer run
// and one row per step outcome, including compensations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// JournalFile is the journal's name inside the state directory.
const JournalFile = "journal.db"

type Outcome string

const (
	OutcomeRunning            Outcome = "running"
	OutcomeSucceeded          Outcome = "succeeded"
	OutcomeFailed             Outcome = "failed"
	OutcomeCompensated        Outcome = "compensated"
	OutcomeCompensationFailed Outcome = "compensation_failed"
)

type StepRecord struct {
	Step     string
	Outcome  Outcome
	Detail   string
	Duration time.Duration
	At       time.Time
}

type Run struct {
	ID         int64
	Command    string
	Version    string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Error      string
	Steps      []StepRecord
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command TEXT NOT NULL,
	version TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize runs schema: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS steps (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	step TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize steps schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// OpenReadOnly opens an existing journal without writing to it: no
// pragmas, no schema, no state directory. When the journal is in WAL mode
// and its directory is not writable the plain read-only open cannot create
// the shared-memory file, so the journal is then read as immutable.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	var errs []error
	for _, query := range []string{"mode=ro", "mode=ro&immutable=1"} {
		dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: query}).String()
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open journal db: %w", err)
		}
		var runs int
		if err := db.QueryRowContext(ctx, `SELECT count(*) FROM runs`).Scan(&runs); err != nil {
			_ = db.Close()
			errs = append(errs, fmt.Errorf("read journal db (%s): %w", query, err))
			continue
		}
		return &Store{db: db, now: time.Now}, nil
	}
	return nil, errors.Join(errs...)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun opens a run in the running state and returns its ID.
func (s *Store) BeginRun(ctx context.Context, command, version string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (command, version, started_at, outcome) VALUES (?, ?, ?, ?)`,
		command, version, s.timestamp(), string(OutcomeRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordStep appends a step outcome to a run.
func (s *Store) RecordStep(ctx context.Context, runID int64, rec StepRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, seq, step, outcome, detail, duration_ms, recorded_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM steps WHERE run_id = ?), ?, ?, ?, ?, ?)`,
		runID, runID, rec.Step, string(rec.Outcome), rec.Detail, rec.Duration.Milliseconds(), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("record step %s: %w", rec.Step, err)
	}
	return nil
}

// FinishRun closes a run with its final outcome.
func (s *Store) FinishRun(ctx context.Context, runID int64, outcome Outcome, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, error = ? WHERE id = ?`,
		s.timestamp(), string(outcome), msg, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// LastRun returns the most recent run with its steps in order.
func (s *Store) LastRun(ctx context.Context) (Run, bool, error) {
	var run Run
	var outcome, startedAt, finishedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, command, version, started_at, finished_at, outcome, error FROM runs ORDER BY id DESC LIMIT 1`,
	).Scan(&run.ID, &run.Command, &run.Version, &startedAt, &finishedAt, &outcome, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("query last run: %w", err)
	}
	run.Outcome = Outcome(outcome)
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, outcome, detail, duration_ms, recorded_at FROM steps WHERE run_id = ? ORDER BY seq`,
		run.ID,
	)
	if err != nil {
		return Run{}, false, fmt.Errorf("list steps of run %d: %w", run.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec StepRecord
		var stepOutcome, recordedAt string
		var durationMS int64
		if err := rows.Scan(&rec.Step, &stepOutcome, &rec.Detail, &durationMS, &recordedAt); err != nil {
			return Run{}, false, fmt.Errorf("scan step row: %w", err)
		}
		rec.Outcome = Outcome(stepOutcome)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.At = parseTime(recordedAt)
		run.Steps = append(run.Steps, rec)
	}
	if err := rows.Err(); err != nil {
		return Run{}, false, fmt.Errorf("iterate step rows: %w", err)
	}
	return run, true, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
