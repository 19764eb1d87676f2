package provision

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"sharespace/config"
	"sharespace/internal/clock"
	"sharespace/internal/docker"
	"sharespace/internal/hostenv"
	"sharespace/internal/hostexec/hostexectest"
	"sharespace/internal/identity"
	"sharespace/internal/installer"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeDocker reports containers only while the recorded compose calls
// leave the stack up.
type fakeDocker struct {
	version string
	app     docker.ContainerInfo
	pings   int
	rec     *hostexectest.Recorder
}

func (d *fakeDocker) WaitReady(context.Context) error {
	d.pings++
	return nil
}

func (d *fakeDocker) APIVersion(context.Context) (string, error) {
	return d.version, nil
}

func (d *fakeDocker) started() bool {
	up, down := -1, -1
	for i, c := range d.rec.Calls() {
		if !strings.HasPrefix(c, "docker compose") {
			continue
		}
		switch {
		case strings.Contains(c, " up -d"):
			up = i
		case strings.Contains(c, " down"):
			down = i
		}
	}
	return up > down
}

func (d *fakeDocker) ServiceContainers(_ context.Context, _, service string) ([]docker.ContainerInfo, error) {
	if !d.started() {
		return nil, nil
	}
	if service != "app" {
		return []docker.ContainerInfo{{Name: service, State: "running"}}, nil
	}
	return []docker.ContainerInfo{d.app}, nil
}

type fakeClock struct{ status clock.Status }

func (c fakeClock) Check(context.Context) clock.Status { return c.status }

// host is a throwaway machine: a home directory, state and unit
// directories, and a sudo user who is really the test process.
type host struct {
	home     string
	settings config.Settings
	rec      *hostexectest.Recorder
	docker   *fakeDocker
	spans    *tracetest.SpanRecorder
	deps     Deps
}

func newHost(t *testing.T) *host {
	t.Helper()
	root := t.TempDir()
	h := &host{home: filepath.Join(root, "home", "alice"), spans: tracetest.NewSpanRecorder()}
	h.rec = (&hostexectest.Recorder{}).
		On("docker --version", hostexectest.Response{Output: "Docker version 27.3.1, build ce12230\n"}).
		On("dpkg --print-architecture", hostexectest.Response{Output: "amd64\n"})
	h.docker = &fakeDocker{
		version: "1.47",
		app:     docker.ContainerInfo{Name: "share-space-app-1", State: "running", Health: "healthy"},
		rec:     h.rec,
	}
	if err := os.MkdirAll(h.home, 0o755); err != nil {
		t.Fatal(err)
	}

	etc := filepath.Join(root, "etc")
	release := filepath.Join(etc, "os-release")
	if err := os.MkdirAll(etc, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(release, []byte("ID=debian\nVERSION_CODENAME=bookworm\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.settings = config.Default()
	h.settings.StateDir = filepath.Join(root, "var", "lib", "share-space")
	h.settings.UnitDir = filepath.Join(etc, "systemd")
	h.settings.Readiness = config.Readiness{Attempts: 2, Interval: time.Millisecond}
	if err := os.MkdirAll(h.settings.UnitDir, 0o755); err != nil {
		t.Fatal(err)
	}

	self := &user.User{
		Username: "alice",
		Uid:      strconv.Itoa(os.Getuid()),
		Gid:      strconv.Itoa(os.Getgid()),
		HomeDir:  h.home,
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	h.deps = Deps{
		Lookup: hostenv.Lookup{
			Getenv: func(key string) string {
				if key == "SUDO_USER" {
					return "alice"
				}
				return ""
			},
			Geteuid: func() int { return 0 },
			Current: func() (*user.User, error) {
				return &user.User{Username: "root", Uid: "0", Gid: "0", HomeDir: "/root"}, nil
			},
			ByName: func(string) (*user.User, error) { return self, nil },
		},
		Runner:   h.rec,
		Docker:   h.docker,
		Clock:    fakeClock{status: clock.Status{Phase: clock.Healthy}},
		Tracer:   provider.Tracer("provision-test"),
		Identity: []identity.Source{{Name: "machine-id", Read: func() (string, error) { return "8d1c4e2f9a7b\n", nil }}},
		Installer: installer.Installer{
			LookPath:    func(string) (string, error) { return "", os.ErrNotExist },
			KeyringDir:  filepath.Join(etc, "apt", "keyrings"),
			SourcesList: filepath.Join(etc, "apt", "sources.list.d", "docker.list"),
			OSRelease:   release,
		},
	}
	return h
}

func (h *host) options() Options {
	return Options{Settings: h.settings, Version: "test"}
}

func (h *host) root() string {
	return filepath.Join(h.home, h.settings.InstallDir)
}

func (h *host) unitPath() string {
	return filepath.Join(h.settings.UnitDir, h.settings.UnitName)
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("stat %s: %v", path, err)
	}
	return err == nil
}
