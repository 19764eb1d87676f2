// Package stack brings the compose stack up and down and reports whether
// the application came up.
package stack

import (
	"context"
	"fmt"
	"log/slog"

	"sharespace/internal/hostexec"
)

// Launcher drives docker compose for one project directory.
type Launcher struct {
	Runner      hostexec.Runner
	Docker      string // docker binary; "docker" when empty
	Root        string
	ComposeFile string
}

// ComposeArgs returns the docker arguments for a compose subcommand scoped
// to the install root.
func ComposeArgs(root, composeFile string, sub ...string) []string {
	args := []string{"compose", "--project-directory", root, "-f", composeFile}
	return append(args, sub...)
}

func (l Launcher) compose(ctx context.Context, sub ...string) error {
	bin := l.Docker
	if bin == "" {
		bin = "docker"
	}
	if _, err := l.Runner.Run(ctx, bin, ComposeArgs(l.Root, l.ComposeFile, sub...)...); err != nil {
		return fmt.Errorf("docker compose %s: %w", sub[0], err)
	}
	return nil
}

// Up pulls every image and starts the stack in the background.
func (l Launcher) Up(ctx context.Context) error {
	log := slog.With("component", "stack")
	log.Info("pulling images", "root", l.Root)
	if err := l.compose(ctx, "pull"); err != nil {
		return err
	}
	return l.Start(ctx)
}

// Start creates or updates the stack's containers from the images already
// present, without pulling.
func (l Launcher) Start(ctx context.Context) error {
	slog.Info("starting stack", "component", "stack", "root", l.Root)
	return l.compose(ctx, "up", "-d", "--remove-orphans")
}

// Down stops and removes the stack's containers and networks.
func (l Launcher) Down(ctx context.Context) error {
	return l.compose(ctx, "down", "--remove-orphans")
}

// Diagnostics lists commands a user can run when the app does not come up.
func Diagnostics(root string) []string {
	return []string{
		fmt.Sprintf("cd %s && docker compose ps", root),
		fmt.Sprintf("cd %s && docker compose logs --tail 100 app", root),
		fmt.Sprintf("cd %s && docker compose logs --tail 100 signal-api", root),
	}
}
