// Package hostexec runs host commands on behalf of the installer.
//
// Every component that shells out to apt-get, systemctl or docker does so
// through Runner so that tests can record and script command outcomes.
package hostexec

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec runs commands on the local host.
type Exec struct {
	// Env is appended to the inherited environment, KEY=VALUE form.
	Env []string
}

func (e Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	log := slog.With("component", "exec")
	log.Debug("run", "cmd", Format(name, args...))

	cmd := exec.CommandContext(ctx, name, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return out, fmt.Errorf("%s: %w", Format(name, args...), err)
		}
		return out, fmt.Errorf("%s: %s: %w", Format(name, args...), msg, err)
	}
	return out, nil
}

// Format renders a command line for logs and error messages.
func Format(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
