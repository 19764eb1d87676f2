package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sharespace/config"
	"sharespace/internal/adapter/sqlite"
	"sharespace/internal/hostenv"
	"sharespace/internal/layout"
	"sharespace/internal/logging"
	"sharespace/internal/telemetry"
)

const StepPurge = "purge"

type UninstallOptions struct {
	Settings config.Settings
	Purge    bool
	Version  string
}

// Uninstall stops the stack and removes the boot unit. With Purge the
// install root, data included, is deleted as well. Uninstall does not roll
// back: every step is itself a removal.
func Uninstall(ctx context.Context, deps Deps, opts UninstallOptions) (err error) {
	log := logging.Component("provision")
	s := opts.Settings

	env, err := hostenv.Resolve(deps.Lookup)
	if err != nil {
		return err
	}
	if err := hostenv.Guard(env); err != nil {
		return err
	}
	paths := layout.New(env.Home, s.InstallDir)

	plan := telemetry.Plan{Steps: []telemetry.PlannedStep{
		{ID: StepStack, Title: "Stopping services"},
		{ID: StepUnit, Title: "Removing boot unit"},
	}}
	if opts.Purge {
		plan.Steps = append(plan.Steps, telemetry.PlannedStep{ID: StepPurge, Title: "Deleting " + paths.Root})
	}
	op, err := telemetry.EmitPlan(ctx, deps.Tracer, "uninstall", plan)
	if err != nil {
		return err
	}
	defer func() { op.End(err) }()
	ctx = op.Context()

	exec := &Executor{Op: op}
	if journal, jerr := sqlite.Open(filepath.Join(s.StateDir, sqlite.JournalFile)); jerr != nil {
		log.Warn("journal unavailable", "err", jerr)
	} else {
		defer journal.Close()
		if runID, berr := journal.BeginRun(ctx, "uninstall", opts.Version); berr == nil {
			exec.Journal, exec.RunID = journal, runID
			defer func() {
				outcome := sqlite.OutcomeSucceeded
				if err != nil {
					outcome = sqlite.OutcomeFailed
				}
				_ = journal.FinishRun(context.WithoutCancel(ctx), runID, outcome, err)
			}()
		}
	}

	p := &installRun{deps: deps, opts: Options{Settings: s}, env: env, out: &Outcome{Env: env, Paths: paths}}
	steps := []Step{
		{ID: StepStack, Run: p.stopStack},
		{ID: StepUnit, Run: func(ctx context.Context) (Undo, error) {
			return nil, p.registrar().Unregister(ctx)
		}},
	}
	if opts.Purge {
		steps = append(steps, Step{ID: StepPurge, Run: func(context.Context) (Undo, error) {
			if err := os.RemoveAll(paths.Root); err != nil {
				return nil, fmt.Errorf("remove %s: %w", paths.Root, err)
			}
			return nil, nil
		}})
	}
	return exec.Execute(ctx, steps)
}

func (p *installRun) stopStack(ctx context.Context) (Undo, error) {
	if _, err := os.Stat(p.out.Paths.ComposeFile); errors.Is(err, fs.ErrNotExist) {
		telemetry.Note(ctx, "no compose file")
		return nil, nil
	}
	return nil, p.launcher().Down(ctx)
}
