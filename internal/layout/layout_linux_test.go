package layout

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"sharespace/internal/hostenv"
)

// nobody is an owner distinct from the test process, so a chown that does
// nothing shows up.
var nobody = hostenv.Owner{UID: 65534, GID: 65534}

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("changing ownership needs root")
	}
}

func assertOwner(t *testing.T, path string, want hostenv.Owner) {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	st := info.Sys().(*syscall.Stat_t)
	if int(st.Uid) != want.UID || int(st.Gid) != want.GID {
		t.Fatalf("%s owner = %d:%d, want %d:%d", path, st.Uid, st.Gid, want.UID, want.GID)
	}
}

func TestEnsureChownsToOwner(t *testing.T) {
	requireRoot(t)
	base := t.TempDir()
	home := filepath.Join(base, "alice")
	p := New(home, "share-space")

	if _, err := Ensure(p, nobody, true); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	for _, path := range []string{home, p.Root, p.Data, p.SignalData} {
		assertOwner(t, path, nobody)
	}
	assertOwner(t, base, caller())
}

func TestEnsureWithoutChownKeepsCaller(t *testing.T) {
	requireRoot(t)
	p := New(t.TempDir(), "share-space")

	if _, err := Ensure(p, nobody, false); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	assertOwner(t, p.Root, caller())
}

func TestChownTreeReachesFiles(t *testing.T) {
	requireRoot(t)
	p := New(t.TempDir(), "share-space")
	if _, err := Ensure(p, nobody, false); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(p.SignalData, "account.db")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := ChownTree(p.Root, nobody); err != nil {
		t.Fatalf("ChownTree() error = %v", err)
	}
	for _, path := range []string{p.Root, p.Data, p.SignalData, file} {
		assertOwner(t, path, nobody)
	}
}

func caller() hostenv.Owner {
	return hostenv.Owner{UID: os.Geteuid(), GID: os.Getegid()}
}
