// Package installer makes sure the Docker engine and its compose plugin are
// present on an apt-based host.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sharespace/internal/hostexec"
)

const (
	DefaultKeyringDir  = "/etc/apt/keyrings"
	DefaultSourcesList = "/etc/apt/sources.list.d/docker.list"
	DefaultOSRelease   = "/etc/os-release"

	downloadBase = "https://download.docker.com/linux"
	keyringName  = "docker.gpg"
)

var (
	prerequisites  = []string{"ca-certificates", "curl", "gnupg"}
	enginePackages = []string{
		"docker-ce",
		"docker-ce-cli",
		"containerd.io",
		"docker-buildx-plugin",
		"docker-compose-plugin",
	}
)

// Daemon reports when the Docker daemon accepts API calls.
type Daemon interface {
	WaitReady(ctx context.Context) error
}

// Installer ensures the container runtime. The zero value of every path
// field selects the standard Debian/Ubuntu location.
type Installer struct {
	Runner hostexec.Runner
	Daemon Daemon
	// User is added to the docker group after a fresh install.
	User string

	LookPath      func(string) (string, error)
	KeyringDir    string
	SourcesList   string
	OSRelease     string
	DaemonTimeout time.Duration
}

// Result describes what Ensure found or did.
type Result struct {
	Installed        bool // the engine was installed by this run
	ComposeInstalled bool // the compose plugin was installed standalone
	Version          string
}

// Ensure installs the engine when docker is not on PATH, installs the
// compose plugin when it does not answer, and waits for the daemon.
// Any failing command aborts with its output; nothing is retried.
func (in Installer) Ensure(ctx context.Context) (Result, error) {
	log := slog.With("component", "installer")
	var res Result

	if _, err := in.lookPath("docker"); err != nil {
		log.Info("docker not found, installing engine")
		if err := in.installEngine(ctx); err != nil {
			return res, err
		}
		res.Installed = true
	}

	out, err := in.Runner.Run(ctx, "docker", "--version")
	if err != nil {
		return res, fmt.Errorf("docker version: %w", err)
	}
	res.Version = strings.TrimSpace(string(out))
	log.Debug("docker present", "version", res.Version)

	if _, err := in.Runner.Run(ctx, "docker", "compose", "version"); err != nil {
		log.Info("compose plugin not responding, installing", "err", err)
		if err := in.apt(ctx, "install", "-y", "docker-compose-plugin"); err != nil {
			return res, err
		}
		if _, err := in.Runner.Run(ctx, "docker", "compose", "version"); err != nil {
			return res, fmt.Errorf("compose plugin still unavailable: %w", err)
		}
		res.ComposeInstalled = true
	}

	if in.Daemon != nil {
		timeout := in.DaemonTimeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := in.Daemon.WaitReady(waitCtx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (in Installer) installEngine(ctx context.Context) error {
	if err := in.apt(ctx, "update"); err != nil {
		return err
	}
	if err := in.apt(ctx, append([]string{"install", "-y"}, prerequisites...)...); err != nil {
		return err
	}
	if err := in.installKey(ctx); err != nil {
		return err
	}
	if err := in.writeSources(ctx); err != nil {
		return err
	}
	if err := in.apt(ctx, "update"); err != nil {
		return err
	}
	if err := in.apt(ctx, append([]string{"install", "-y"}, enginePackages...)...); err != nil {
		return err
	}
	for _, args := range [][]string{{"start", "docker"}, {"enable", "docker"}} {
		if _, err := in.Runner.Run(ctx, "systemctl", args...); err != nil {
			return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
		}
	}
	if in.User != "" && in.User != "root" {
		if _, err := in.Runner.Run(ctx, "usermod", "-aG", "docker", in.User); err != nil {
			return fmt.Errorf("add %s to docker group: %w", in.User, err)
		}
	}
	return nil
}

// installKey fetches the vendor's armored signing key and stores it
// dearmored in the apt keyring directory.
func (in Installer) installKey(ctx context.Context) error {
	rel, err := ReadRelease(in.osRelease())
	if err != nil {
		return err
	}
	distro, err := rel.Distro()
	if err != nil {
		return err
	}

	dir := in.keyringDir()
	if _, err := in.Runner.Run(ctx, "install", "-m", "0755", "-d", dir); err != nil {
		return fmt.Errorf("create keyring dir: %w", err)
	}
	armored := filepath.Join(dir, "docker.asc")
	url := fmt.Sprintf("%s/%s/gpg", downloadBase, distro)
	if _, err := in.Runner.Run(ctx, "curl", "-fsSL", url, "-o", armored); err != nil {
		return fmt.Errorf("download docker signing key: %w", err)
	}
	defer os.Remove(armored)

	keyring := filepath.Join(dir, keyringName)
	if _, err := in.Runner.Run(ctx, "gpg", "--batch", "--yes", "--dearmor", "-o", keyring, armored); err != nil {
		return fmt.Errorf("dearmor docker signing key: %w", err)
	}
	if _, err := in.Runner.Run(ctx, "chmod", "a+r", keyring); err != nil {
		return fmt.Errorf("chmod docker keyring: %w", err)
	}
	return nil
}

func (in Installer) writeSources(ctx context.Context) error {
	rel, err := ReadRelease(in.osRelease())
	if err != nil {
		return err
	}
	distro, err := rel.Distro()
	if err != nil {
		return err
	}
	if rel.Codename == "" {
		return errors.New("os release has no codename")
	}
	out, err := in.Runner.Run(ctx, "dpkg", "--print-architecture")
	if err != nil {
		return fmt.Errorf("detect architecture: %w", err)
	}
	arch := strings.TrimSpace(string(out))

	line := SourcesLine(arch, filepath.Join(in.keyringDir(), keyringName), distro, rel.Codename)
	if err := os.MkdirAll(filepath.Dir(in.sourcesList()), 0o755); err != nil {
		return fmt.Errorf("create sources dir: %w", err)
	}
	if err := os.WriteFile(in.sourcesList(), []byte(line), 0o644); err != nil {
		return fmt.Errorf("write docker apt source: %w", err)
	}
	return nil
}

// SourcesLine is the apt source entry for the vendor repository.
func SourcesLine(arch, keyring, distro, codename string) string {
	return fmt.Sprintf("deb [arch=%s signed-by=%s] %s/%s %s stable\n", arch, keyring, downloadBase, distro, codename)
}

func (in Installer) apt(ctx context.Context, args ...string) error {
	if _, err := in.Runner.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("apt-get %s: %w", args[0], err)
	}
	return nil
}

func (in Installer) lookPath(name string) (string, error) {
	if in.LookPath != nil {
		return in.LookPath(name)
	}
	return exec.LookPath(name)
}

func (in Installer) keyringDir() string {
	if in.KeyringDir != "" {
		return in.KeyringDir
	}
	return DefaultKeyringDir
}

func (in Installer) sourcesList() string {
	if in.SourcesList != "" {
		return in.SourcesList
	}
	return DefaultSourcesList
}

func (in Installer) osRelease() string {
	if in.OSRelease != "" {
		return in.OSRelease
	}
	return DefaultOSRelease
}
