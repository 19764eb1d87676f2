package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sharespace/internal/hostexec/hostexectest"
)

const ubuntuRelease = `PRETTY_NAME="Ubuntu 24.04.1 LTS"
NAME="Ubuntu"
VERSION_ID="24.04"
VERSION_CODENAME=noble
ID=ubuntu
ID_LIKE=debian
UBUNTU_CODENAME=noble
`

type fakeDaemon struct {
	err   error
	calls int
}

func (d *fakeDaemon) WaitReady(context.Context) error {
	d.calls++
	return d.err
}

func found(string) (string, error) {
	return "/usr/bin/docker", nil
}

func missing(string) (string, error) {
	return "", errors.New("executable file not found in $PATH")
}

func newInstaller(t *testing.T, rec *hostexectest.Recorder, lookPath func(string) (string, error)) (Installer, *fakeDaemon) {
	t.Helper()
	dir := t.TempDir()
	release := filepath.Join(dir, "os-release")
	if err := os.WriteFile(release, []byte(ubuntuRelease), 0o644); err != nil {
		t.Fatal(err)
	}
	d := &fakeDaemon{}
	return Installer{
		Runner:      rec,
		Daemon:      d,
		User:        "alice",
		LookPath:    lookPath,
		KeyringDir:  filepath.Join(dir, "keyrings"),
		SourcesList: filepath.Join(dir, "sources.list.d", "docker.list"),
		OSRelease:   release,
	}, d
}

func TestEnsurePresentOnlyReportsVersion(t *testing.T) {
	rec := (&hostexectest.Recorder{}).
		On("docker --version", hostexectest.Response{Output: "Docker version 27.3.1, build ce12230\n"})
	in, d := newInstaller(t, rec, found)

	res, err := in.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if res.Installed || res.ComposeInstalled {
		t.Fatalf("Ensure() = %+v, want nothing installed", res)
	}
	if res.Version != "Docker version 27.3.1, build ce12230" {
		t.Fatalf("Version = %q", res.Version)
	}
	if rec.Ran("apt-get") || rec.Ran("usermod") {
		t.Fatalf("present engine reinstalled: %q", rec.Calls())
	}
	if d.calls != 1 {
		t.Fatalf("daemon waited %d times, want 1", d.calls)
	}
}

func TestEnsureInstallsEngine(t *testing.T) {
	rec := (&hostexectest.Recorder{}).
		On("dpkg --print-architecture", hostexectest.Response{Output: "amd64\n"}).
		On("docker --version", hostexectest.Response{Output: "Docker version 27.3.1\n"})
	in, _ := newInstaller(t, rec, missing)

	res, err := in.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !res.Installed {
		t.Fatal("Installed = false, want true")
	}

	want := []string{
		"apt-get update",
		"apt-get install -y ca-certificates curl gnupg",
		"install -m 0755 -d " + in.KeyringDir,
		"curl -fsSL https://download.docker.com/linux/ubuntu/gpg -o " + filepath.Join(in.KeyringDir, "docker.asc"),
		"gpg --batch --yes --dearmor -o " + filepath.Join(in.KeyringDir, "docker.gpg"),
		"chmod a+r " + filepath.Join(in.KeyringDir, "docker.gpg"),
		"dpkg --print-architecture",
		"apt-get update",
		"apt-get install -y docker-ce docker-ce-cli containerd.io docker-buildx-plugin docker-compose-plugin",
		"systemctl start docker",
		"systemctl enable docker",
		"usermod -aG docker alice",
		"docker --version",
		"docker compose version",
	}
	calls := rec.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %q, want %d commands", calls, len(want))
	}
	for i := range want {
		if !strings.HasPrefix(calls[i], want[i]) {
			t.Fatalf("call %d = %q, want prefix %q", i, calls[i], want[i])
		}
	}

	src, err := os.ReadFile(in.SourcesList)
	if err != nil {
		t.Fatalf("sources list not written: %v", err)
	}
	wantSrc := "deb [arch=amd64 signed-by=" + filepath.Join(in.KeyringDir, "docker.gpg") + "] https://download.docker.com/linux/ubuntu noble stable\n"
	if string(src) != wantSrc {
		t.Fatalf("sources list = %q, want %q", src, wantSrc)
	}
}

func TestEnsureSecondRunIsIdempotent(t *testing.T) {
	rec := (&hostexectest.Recorder{}).
		On("dpkg --print-architecture", hostexectest.Response{Output: "arm64\n"})
	in, _ := newInstaller(t, rec, missing)
	if _, err := in.Ensure(context.Background()); err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}

	// The engine is now on PATH.
	rec2 := &hostexectest.Recorder{}
	in.Runner = rec2
	in.LookPath = found
	res, err := in.Ensure(context.Background())
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if res.Installed {
		t.Fatal("second run reinstalled the engine")
	}
	if rec2.Ran("apt-get") {
		t.Fatalf("second run calls = %q", rec2.Calls())
	}
}

func TestEnsureInstallsMissingComposePlugin(t *testing.T) {
	rec := (&hostexectest.Recorder{}).Fail("docker compose version")
	in, _ := newInstaller(t, rec, found)

	// The retry after installing succeeds once the plugin is present.
	in.Runner = &composeAfterInstall{Recorder: rec}

	res, err := in.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if res.Installed || !res.ComposeInstalled {
		t.Fatalf("Ensure() = %+v, want compose plugin installed only", res)
	}
	if !rec.Ran("apt-get install -y docker-compose-plugin") {
		t.Fatalf("calls = %q", rec.Calls())
	}
}

func TestEnsureAbortsOnFailedStep(t *testing.T) {
	rec := (&hostexectest.Recorder{}).Fail("apt-get install -y ca-certificates")
	in, d := newInstaller(t, rec, missing)

	_, err := in.Ensure(context.Background())
	if err == nil || !strings.Contains(err.Error(), "apt-get install") {
		t.Fatalf("Ensure() error = %v, want apt-get install failure", err)
	}
	if rec.Ran("curl") || rec.Ran("systemctl") {
		t.Fatalf("continued after failure: %q", rec.Calls())
	}
	if d.calls != 0 {
		t.Fatal("waited for daemon after failure")
	}
}

func TestEnsureReportsDaemonFailure(t *testing.T) {
	rec := &hostexectest.Recorder{}
	in, d := newInstaller(t, rec, found)
	d.err = errors.New("docker daemon not reachable")

	if _, err := in.Ensure(context.Background()); !errors.Is(err, d.err) {
		t.Fatalf("Ensure() error = %v, want %v", err, d.err)
	}
}

// composeAfterInstall answers "docker compose version" successfully once the
// plugin package has been installed.
type composeAfterInstall struct {
	*hostexectest.Recorder
	installed bool
}

func (c *composeAfterInstall) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := c.Recorder.Run(ctx, name, args...)
	line := strings.Join(append([]string{name}, args...), " ")
	if line == "apt-get install -y docker-compose-plugin" {
		c.installed = true
	}
	if c.installed && line == "docker compose version" {
		return []byte("Docker Compose version v2.29.7\n"), nil
	}
	return out, err
}
