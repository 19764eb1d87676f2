// Package systemd installs the boot-time unit that starts the stack.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sharespace/internal/hostexec"
)

// UnitConfig is everything baked into the unit file.
type UnitConfig struct {
	Description string
	Root        string
	ComposeFile string
	Docker      string // absolute path of the docker binary
}

// RenderUnit returns the unit file text. The unit is oneshot: it runs
// compose up at boot and compose down at shutdown, and the containers keep
// running under the Docker daemon in between.
func RenderUnit(cfg UnitConfig) string {
	docker := cfg.Docker
	if docker == "" {
		docker = "/usr/bin/docker"
	}
	compose := fmt.Sprintf("%s compose -f %s", docker, cfg.ComposeFile)

	return fmt.Sprintf(`[Unit]
Description=%s
Requires=docker.service
After=docker.service

[Service]
Type=oneshot
RemainAfterExit=yes
WorkingDirectory=%s
ExecStart=%s up -d
ExecStop=%s down
TimeoutStartSec=0

[Install]
WantedBy=multi-user.target
`, cfg.Description, cfg.Root, compose, compose)
}

// Registrar writes, enables and removes one unit.
type Registrar struct {
	Runner hostexec.Runner
	Dir    string // unit directory, normally /etc/systemd/system
	Name   string // unit name including the .service suffix
}

// Path is where the unit file lives.
func (r Registrar) Path() string {
	return filepath.Join(r.Dir, r.Name)
}

// Register writes the unit, reloads systemd and enables the unit for the
// next boot. It does not start the unit.
func (r Registrar) Register(ctx context.Context, cfg UnitConfig) error {
	log := slog.With("component", "systemd", "unit", r.Name)

	if err := os.WriteFile(r.Path(), []byte(RenderUnit(cfg)), 0o644); err != nil {
		return fmt.Errorf("write unit %s: %w", r.Name, err)
	}
	if err := r.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}
	if err := r.systemctl(ctx, "enable", r.Name); err != nil {
		return fmt.Errorf("enable %s: %w", r.Name, err)
	}
	log.Info("unit enabled")
	return nil
}

// Unregister disables and deletes the unit. A unit that is already gone is
// not an error.
func (r Registrar) Unregister(ctx context.Context) error {
	var errs []error
	if _, err := os.Stat(r.Path()); err == nil {
		if err := r.systemctl(ctx, "disable", r.Name); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", r.Name, err))
		}
	}
	if err := os.Remove(r.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove unit %s: %w", r.Name, err))
	}
	if err := r.systemctl(ctx, "daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Prior is the unit as it was before a Register.
type Prior struct {
	Existed bool
	Data    []byte
	Enabled bool
}

// Capture records the current unit file and enablement so a later
// Register can be reverted with Restore.
func (r Registrar) Capture(ctx context.Context) (Prior, error) {
	data, err := os.ReadFile(r.Path())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Prior{}, nil
	case err != nil:
		return Prior{}, fmt.Errorf("read unit %s: %w", r.Name, err)
	}
	return Prior{
		Existed: true,
		Data:    data,
		Enabled: r.query(ctx, "is-enabled", r.Name) == "enabled",
	}, nil
}

// Restore puts the unit back the way Capture found it. A unit that did not
// exist is unregistered; an existing one gets its old file back and is
// disabled again if it was not enabled before.
func (r Registrar) Restore(ctx context.Context, prior Prior) error {
	if !prior.Existed {
		return r.Unregister(ctx)
	}

	if err := os.WriteFile(r.Path(), prior.Data, 0o644); err != nil {
		return fmt.Errorf("restore unit %s: %w", r.Name, err)
	}
	var errs []error
	if err := r.systemctl(ctx, "daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	if !prior.Enabled {
		if err := r.systemctl(ctx, "disable", r.Name); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

// State is the unit's enablement and activity as systemd reports them.
type State struct {
	Installed bool
	Enabled   bool
	Active    bool
}

// Status queries systemd for the unit. Query failures read as "no".
func (r Registrar) Status(ctx context.Context) State {
	_, err := os.Stat(r.Path())
	return State{
		Installed: err == nil,
		Enabled:   r.query(ctx, "is-enabled", r.Name) == "enabled",
		Active:    r.query(ctx, "is-active", r.Name) == "active",
	}
}

func (r Registrar) query(ctx context.Context, args ...string) string {
	out, _ := r.Runner.Run(ctx, "systemctl", args...)
	return strings.TrimSpace(string(out))
}

func (r Registrar) systemctl(ctx context.Context, args ...string) error {
	if _, err := r.Runner.Run(ctx, "systemctl", args...); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
