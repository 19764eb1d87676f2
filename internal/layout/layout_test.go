package layout

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sharespace/internal/hostenv"
)

func currentOwner() hostenv.Owner {
	return hostenv.Owner{UID: os.Getuid(), GID: os.Getgid()}
}

func TestNew(t *testing.T) {
	p := New("/home/alice", "share-space")
	want := Paths{
		Root:        "/home/alice/share-space",
		Data:        "/home/alice/share-space/data",
		SignalData:  "/home/alice/share-space/data/signal-cli",
		ComposeFile: "/home/alice/share-space/docker-compose.yml",
		Identifier:  "/home/alice/share-space/data/installation_id",
	}
	if p != want {
		t.Fatalf("New() = %+v, want %+v", p, want)
	}
}

func TestEnsureCreatesTree(t *testing.T) {
	p := New(t.TempDir(), "share-space")

	created, err := Ensure(p, currentOwner(), true)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !reflect.DeepEqual(created, p.Dirs()) {
		t.Fatalf("Ensure() created = %v, want %v", created, p.Dirs())
	}
	for _, dir := range p.Dirs() {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			t.Fatalf("%s missing after Ensure(): %v", dir, err)
		}
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	p := New(t.TempDir(), "share-space")
	if _, err := Ensure(p, currentOwner(), false); err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}
	marker := filepath.Join(p.Data, "keep")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	created, err := Ensure(p, currentOwner(), true)
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("second Ensure() created = %v, want none", created)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("existing content lost: %v", err)
	}
}

func TestEnsureReportsOnlyMissingDirs(t *testing.T) {
	p := New(t.TempDir(), "share-space")
	if err := os.Mkdir(p.Root, 0o755); err != nil {
		t.Fatal(err)
	}

	created, err := Ensure(p, currentOwner(), false)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	want := []string{p.Data, p.SignalData}
	if !reflect.DeepEqual(created, want) {
		t.Fatalf("Ensure() created = %v, want %v", created, want)
	}
}

func TestEnsureRejectsFileInPlaceOfDir(t *testing.T) {
	p := New(t.TempDir(), "share-space")
	if err := os.WriteFile(p.Root, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Ensure(p, currentOwner(), false); err == nil {
		t.Fatal("Ensure() expected error when root is a file")
	}
}

func TestRemoveUndoesEnsure(t *testing.T) {
	home := t.TempDir()
	p := New(home, "share-space")
	created, err := Ensure(p, currentOwner(), false)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(p.SignalData, "account"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Remove(created); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(p.Root); !os.IsNotExist(err) {
		t.Fatalf("install root still present after Remove(): %v", err)
	}
	if _, err := os.Stat(home); err != nil {
		t.Fatalf("home removed: %v", err)
	}
}

func TestEnsureCreatesMissingHome(t *testing.T) {
	base := t.TempDir()
	home := filepath.Join(base, "home", "alice")
	p := New(home, "share-space")

	created, err := Ensure(p, currentOwner(), true)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	want := []string{filepath.Join(base, "home"), home, p.Root, p.Data, p.SignalData}
	if !reflect.DeepEqual(created, want) {
		t.Fatalf("Ensure() created = %v, want %v", created, want)
	}

	if err := Remove(created); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "home")); !os.IsNotExist(err) {
		t.Fatalf("created parent still present after Remove(): %v", err)
	}
	if _, err := os.Stat(base); err != nil {
		t.Fatalf("pre-existing directory removed: %v", err)
	}
}
