package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunWithSpinnerWithoutTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	want := errors.New("daemon unreachable")
	calls := 0
	err := runWithSpinner(context.Background(), &buf, false, "collecting status", func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("runWithSpinner() = %v after %d calls, want %v after 1", err, calls, want)
	}
	if buf.Len() != 0 {
		t.Fatalf("runWithSpinner() wrote %q without a terminal", buf.String())
	}
}

func TestSpinnerModelView(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
		notWant string
	}{
		{name: "quick", elapsed: 500 * time.Millisecond, want: "collecting status\n", notWant: "ctrl+c"},
		{name: "slow", elapsed: 3200 * time.Millisecond, want: "collecting status (3s, ctrl+c to stop)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := start
			m := newSpinnerModel("collecting status", func() time.Time { return now })
			now = start.Add(tt.elapsed)

			got := m.View()
			if !strings.Contains(got, tt.want) {
				t.Fatalf("View() = %q, want %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Fatalf("View() = %q, want no %q", got, tt.notWant)
			}
		})
	}
}

func TestSpinnerModelDone(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	m := newSpinnerModel("collecting status", time.Now)
	if _, cmd := m.Update(spinnerDoneMsg{err: want}); cmd == nil {
		t.Fatal("Update(done) returned no quit command")
	}
	if !errors.Is(m.err, want) || m.View() != "" {
		t.Fatalf("after done err = %v, view = %q, want %v and no view", m.err, m.View(), want)
	}
}
