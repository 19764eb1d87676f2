package stack

import (
	"context"
	"strings"
	"testing"

	"sharespace/internal/hostexec/hostexectest"
)

func TestLauncherUpPullsThenStarts(t *testing.T) {
	rec := &hostexectest.Recorder{}
	l := Launcher{Runner: rec, Root: "/home/alice/share-space", ComposeFile: "/home/alice/share-space/docker-compose.yml"}

	if err := l.Up(context.Background()); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	calls := rec.Calls()
	want := []string{
		"docker compose --project-directory /home/alice/share-space -f /home/alice/share-space/docker-compose.yml pull",
		"docker compose --project-directory /home/alice/share-space -f /home/alice/share-space/docker-compose.yml up -d --remove-orphans",
	}
	if strings.Join(calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("calls = %q, want %q", calls, want)
	}
}

func TestLauncherUpStopsWhenPullFails(t *testing.T) {
	rec := (&hostexectest.Recorder{}).Fail("docker compose")
	l := Launcher{Runner: rec, Root: "/srv", ComposeFile: "/srv/docker-compose.yml"}

	err := l.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "docker compose pull") {
		t.Fatalf("Up() error = %v, want pull failure", err)
	}
	if len(rec.Calls()) != 1 {
		t.Fatalf("calls = %q, want only pull", rec.Calls())
	}
}

func TestLauncherStartSkipsPull(t *testing.T) {
	rec := &hostexectest.Recorder{}
	l := Launcher{Runner: rec, Root: "/srv", ComposeFile: "/srv/docker-compose.yml"}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	want := "docker compose --project-directory /srv -f /srv/docker-compose.yml up -d --remove-orphans"
	if calls := rec.Calls(); len(calls) != 1 || calls[0] != want {
		t.Fatalf("calls = %q, want %q", calls, want)
	}
}

func TestLauncherDown(t *testing.T) {
	rec := &hostexectest.Recorder{}
	l := Launcher{Runner: rec, Docker: "/usr/bin/docker", Root: "/srv", ComposeFile: "/srv/docker-compose.yml"}

	if err := l.Down(context.Background()); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if !rec.Ran("/usr/bin/docker compose --project-directory /srv -f /srv/docker-compose.yml down") {
		t.Fatalf("calls = %q", rec.Calls())
	}
}

func TestDiagnosticsMentionRoot(t *testing.T) {
	for _, line := range Diagnostics("/home/alice/share-space") {
		if !strings.HasPrefix(line, "cd /home/alice/share-space && docker compose") {
			t.Fatalf("diagnostic %q not scoped to install root", line)
		}
	}
}
