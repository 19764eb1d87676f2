package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", JournalFile))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJournal_LastRunEmpty(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.LastRun(context.Background())
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if found {
		t.Fatal("LastRun returned found=true on an empty journal")
	}
}

func TestJournal_RecordsRunAndSteps(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }

	id, err := store.BeginRun(ctx, "install", "v1.2.0")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	steps := []StepRecord{
		{Step: "guard", Outcome: OutcomeSucceeded},
		{Step: "runtime", Outcome: OutcomeSucceeded, Detail: "Docker version 27.3.1", Duration: 1500 * time.Millisecond},
		{Step: "unit", Outcome: OutcomeFailed, Detail: "systemctl enable: exit status 1"},
		{Step: "compose", Outcome: OutcomeCompensated},
	}
	for _, s := range steps {
		if err := store.RecordStep(ctx, id, s); err != nil {
			t.Fatalf("RecordStep(%s): %v", s.Step, err)
		}
	}
	if err := store.FinishRun(ctx, id, OutcomeFailed, errors.New("unit: enable failed")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, found, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if !found {
		t.Fatal("LastRun returned found=false")
	}
	if run.ID != id || run.Command != "install" || run.Version != "v1.2.0" {
		t.Fatalf("run = %+v", run)
	}
	if run.Outcome != OutcomeFailed || run.Error != "unit: enable failed" {
		t.Fatalf("run outcome = %s %q", run.Outcome, run.Error)
	}
	if !run.StartedAt.Equal(start) || !run.FinishedAt.Equal(start) {
		t.Fatalf("run times = %v / %v, want %v", run.StartedAt, run.FinishedAt, start)
	}
	if len(run.Steps) != len(steps) {
		t.Fatalf("got %d steps, want %d", len(run.Steps), len(steps))
	}
	for i, want := range steps {
		got := run.Steps[i]
		if got.Step != want.Step || got.Outcome != want.Outcome || got.Detail != want.Detail || got.Duration != want.Duration {
			t.Errorf("step %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestJournal_LastRunIsNewest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := store.BeginRun(ctx, "install", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(ctx, first, OutcomeSucceeded, nil); err != nil {
		t.Fatal(err)
	}
	second, err := store.BeginRun(ctx, "uninstall", "dev")
	if err != nil {
		t.Fatal(err)
	}

	run, _, err := store.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != second || run.Command != "uninstall" {
		t.Fatalf("LastRun = %+v, want run %d", run, second)
	}
	if run.Outcome != OutcomeRunning || !run.FinishedAt.IsZero() {
		t.Fatalf("unfinished run = %s finished %v", run.Outcome, run.FinishedAt)
	}
	if len(run.Steps) != 0 {
		t.Fatalf("steps = %+v, want none", run.Steps)
	}
}

func TestJournal_ReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), JournalFile)

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.BeginRun(ctx, "install", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	run, found, err := reopened.LastRun(ctx)
	if err != nil || !found || run.ID != id {
		t.Fatalf("LastRun after reopen = %+v, %v, %v", run, found, err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), JournalFile)

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.BeginRun(ctx, "install", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := OpenReadOnly(ctx, path)
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	defer ro.Close()
	run, found, err := ro.LastRun(ctx)
	if err != nil || !found || run.ID != id {
		t.Fatalf("LastRun() = %+v, %v, %v, want run %d", run, found, err, id)
	}
	if _, err := ro.BeginRun(ctx, "install", "dev"); err == nil {
		t.Fatal("BeginRun() on a read-only journal succeeded")
	}
}

func TestOpenReadOnlyMissingJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", JournalFile)

	if _, err := OpenReadOnly(context.Background(), path); err == nil {
		t.Fatal("OpenReadOnly() on a missing journal succeeded")
	}
	if _, err := os.Stat(filepath.Dir(path)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("state directory stat error = %v, want not exist", err)
	}
}

func TestOpenReadOnlyUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, JournalFile)

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.BeginRun(ctx, "install", "dev"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	if _, err := Open(path); err == nil {
		t.Fatal("Open() on an unwritable journal succeeded")
	}
	ro, err := OpenReadOnly(ctx, path)
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	defer ro.Close()
	if _, found, err := ro.LastRun(ctx); err != nil || !found {
		t.Fatalf("LastRun() = %v, %v, want found", found, err)
	}
}
