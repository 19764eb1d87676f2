package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sharespace/config"
	"sharespace/internal/adapter/sqlite"
	"sharespace/internal/clock"
	"sharespace/internal/compose"
	"sharespace/internal/docker"
	"sharespace/internal/hostenv"
	"sharespace/internal/hostexec"
	"sharespace/internal/identity"
	"sharespace/internal/installer"
	"sharespace/internal/layout"
	"sharespace/internal/logging"
	"sharespace/internal/stack"
	"sharespace/internal/systemd"
	"sharespace/internal/telemetry"

	"go.opentelemetry.io/otel/trace"
)

const (
	StepGuard      = "guard"
	StepClock      = "clock"
	StepRuntime    = "runtime"
	StepFilesystem = "filesystem"
	StepCompose    = "compose"
	StepIdentity   = "identity"
	StepStack      = "stack"
	StepUnit       = "unit"
)

// InstallPlan is the step list shown before an install starts.
var InstallPlan = telemetry.Plan{Steps: []telemetry.PlannedStep{
	{ID: StepGuard, Title: "Checking privileges"},
	{ID: StepClock, Title: "Checking host clock"},
	{ID: StepRuntime, Title: "Ensuring Docker is installed"},
	{ID: StepFilesystem, Title: "Creating install directories"},
	{ID: StepCompose, Title: "Writing compose file"},
	{ID: StepIdentity, Title: "Recording installation ID"},
	{ID: StepStack, Title: "Starting services"},
	{ID: StepUnit, Title: "Registering boot unit"},
}}

// Docker is the slice of the Engine API provisioning uses.
type Docker interface {
	WaitReady(ctx context.Context) error
	APIVersion(ctx context.Context) (string, error)
	ServiceContainers(ctx context.Context, project, service string) ([]docker.ContainerInfo, error)
}

// ClockChecker reports the host clock's offset from NTP.
type ClockChecker interface {
	Check(ctx context.Context) clock.Status
}

// Deps are the host-facing collaborators of an install. Tests swap every
// one of them for a fake.
type Deps struct {
	Lookup   hostenv.Lookup
	Runner   hostexec.Runner
	Docker   Docker
	Clock    ClockChecker
	Tracer   trace.Tracer
	Identity []identity.Source
	// Installer carries host paths for the runtime installer; Runner,
	// Daemon and User are filled in per run.
	Installer installer.Installer
}

type Options struct {
	Settings     config.Settings
	RegenerateID bool
	NoRollback   bool
	Version      string
}

// Outcome is everything a finished install learned about the host.
type Outcome struct {
	Env        hostenv.Env
	Paths      layout.Paths
	Runtime    installer.Result
	APIVersion string
	Identity   identity.Record
	Readiness  stack.WaitResult
	Clock      clock.Status
	RunID      int64
	Warnings   []string
}

// Install provisions the stack. The privilege guard runs before anything
// touches the host, the journal included; every later failure unwinds the
// steps completed so far unless NoRollback is set.
func Install(ctx context.Context, deps Deps, opts Options) (out Outcome, err error) {
	log := logging.Component("provision")
	s := opts.Settings

	env, err := hostenv.Resolve(deps.Lookup)
	if err != nil {
		return out, err
	}
	out.Env = env
	out.Paths = layout.New(env.Home, s.InstallDir)

	op, err := telemetry.EmitPlan(ctx, deps.Tracer, "install", InstallPlan)
	if err != nil {
		return out, err
	}
	defer func() { op.End(err) }()
	ctx = op.Context()

	exec := &Executor{Op: op, Rollback: !opts.NoRollback}
	guard := Step{ID: StepGuard, Run: func(context.Context) (Undo, error) {
		return nil, hostenv.Guard(env)
	}}
	if err := exec.Execute(ctx, []Step{guard}); err != nil {
		return out, err
	}

	journal, err := sqlite.Open(filepath.Join(s.StateDir, sqlite.JournalFile))
	if err != nil {
		return out, err
	}
	defer journal.Close()
	runID, err := journal.BeginRun(ctx, "install", opts.Version)
	if err != nil {
		return out, err
	}
	out.RunID = runID
	exec.Journal, exec.RunID = journal, runID
	exec.record(ctx, sqlite.StepRecord{Step: StepGuard, Outcome: sqlite.OutcomeSucceeded})

	defer func() {
		outcome := sqlite.OutcomeSucceeded
		if err != nil {
			outcome = sqlite.OutcomeFailed
		}
		if ferr := journal.FinishRun(context.WithoutCancel(ctx), runID, outcome, err); ferr != nil {
			log.Warn("journal finish failed", "err", ferr)
		}
	}()

	p := &installRun{deps: deps, opts: opts, env: env, out: &out}
	err = exec.Execute(ctx, []Step{
		{ID: StepClock, Run: p.checkClock},
		{ID: StepRuntime, Run: p.ensureRuntime},
		{ID: StepFilesystem, Run: p.ensureLayout},
		{ID: StepCompose, Run: p.writeCompose},
		{ID: StepIdentity, Run: p.recordIdentity},
		{ID: StepStack, Run: p.launchStack},
		{ID: StepUnit, Run: p.registerUnit},
	})
	return out, err
}

// installRun holds the state threaded between install steps.
type installRun struct {
	deps Deps
	opts Options
	env  hostenv.Env
	out  *Outcome

	// compose is the descriptor this run replaced.
	compose compose.Previous
}

func (p *installRun) warn(ctx context.Context, msg string) {
	logging.Component("provision").Warn(msg)
	telemetry.Note(ctx, msg)
	p.out.Warnings = append(p.out.Warnings, msg)
}

func (p *installRun) checkClock(ctx context.Context) (Undo, error) {
	if p.deps.Clock == nil {
		return nil, nil
	}
	p.out.Clock = p.deps.Clock.Check(ctx)
	if w := p.out.Clock.Warning(); w != "" {
		p.warn(ctx, w)
	}
	return nil, nil
}

// ensureRuntime never compensates: installed packages stay installed.
func (p *installRun) ensureRuntime(ctx context.Context) (Undo, error) {
	in := p.deps.Installer
	in.Runner = p.deps.Runner
	in.Daemon = p.deps.Docker
	in.User = p.env.User

	res, err := in.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	p.out.Runtime = res
	if res.Installed {
		telemetry.Note(ctx, "installed "+res.Version)
	} else {
		telemetry.Note(ctx, res.Version)
	}
	return nil, nil
}

func (p *installRun) ensureLayout(ctx context.Context) (Undo, error) {
	created, err := layout.Ensure(p.out.Paths, p.env.Owner(), p.env.Delegated)
	undo := removeDirs(created)
	if err != nil {
		return undo, err
	}
	if len(created) == 0 {
		telemetry.Note(ctx, "already present")
	}
	return undo, nil
}

func removeDirs(created []string) Undo {
	if len(created) == 0 {
		return nil
	}
	return func(context.Context) error { return layout.Remove(created) }
}

func (p *installRun) writeCompose(ctx context.Context) (Undo, error) {
	s := p.opts.Settings
	version := compose.DetectAPIVersion(ctx, p.deps.Docker, s.APIVersionFallback)
	p.out.APIVersion = version

	data, err := compose.Render(s, version)
	if err != nil {
		return nil, err
	}
	if err := compose.Validate(ctx, p.out.Paths.Root, data, s.Network); err != nil {
		return nil, fmt.Errorf("rendered compose file is invalid: %w", err)
	}

	path := p.out.Paths.ComposeFile
	prev, err := compose.Write(path, data)
	if err != nil {
		return nil, err
	}
	p.compose = prev
	undo := func(context.Context) error { return compose.Restore(path, prev) }
	if p.env.Delegated {
		owner := p.env.Owner()
		if err := os.Lchown(path, owner.UID, owner.GID); err != nil {
			return undo, fmt.Errorf("set owner of compose file: %w", err)
		}
	}
	telemetry.Note(ctx, "docker API "+version)
	return undo, nil
}

func (p *installRun) recordIdentity(ctx context.Context) (Undo, error) {
	policy := identity.PolicyPreserve
	if p.opts.RegenerateID {
		policy = identity.PolicyOverwrite
	}
	sources := p.deps.Identity
	if len(sources) == 0 {
		sources = identity.DefaultSources()
	}

	path := p.out.Paths.Identifier
	rec, err := identity.Write(path, p.env.Owner(), policy, func() (string, error) {
		return identity.Derive(sources...)
	})
	if err != nil {
		return nil, err
	}
	p.out.Identity = rec
	if rec.Preserved {
		telemetry.Note(ctx, "kept "+rec.ID)
	}
	if !rec.Created && rec.Previous == nil {
		return nil, nil
	}
	return func(context.Context) error { return identity.Undo(path, rec) }, nil
}

func (p *installRun) launcher() stack.Launcher {
	return stack.Launcher{
		Runner:      p.deps.Runner,
		Root:        p.out.Paths.Root,
		ComposeFile: p.out.Paths.ComposeFile,
	}
}

// launchStack starts the services and waits a bounded time for the app.
// An app that is not up yet is a warning, not a failure.
func (p *installRun) launchStack(ctx context.Context) (Undo, error) {
	s := p.opts.Settings
	l := p.launcher()
	undo := p.stackUndo(ctx, l)

	if err := l.Up(ctx); err != nil {
		return undo, err
	}

	res, err := stack.WaitReady(ctx, p.deps.Docker, stack.WaitOptions{
		Project:  s.Project,
		Service:  compose.ServiceApp,
		Attempts: s.Readiness.Attempts,
		Interval: s.Readiness.Interval,
	})
	p.out.Readiness = res
	if err != nil {
		return undo, fmt.Errorf("wait for %s: %w", compose.ServiceApp, err)
	}
	if res.State.Ready() {
		telemetry.Note(ctx, compose.ServiceApp+" "+res.State.String())
	} else {
		p.warn(ctx, fmt.Sprintf("%s is %s after %d checks; it may need more time", compose.ServiceApp, res.State, res.Attempts))
	}
	return undo, nil
}

// stackUndo decides how to revert launchStack before it runs. A stack this
// run starts is taken down; a stack that was already there is brought back
// up from the descriptor it ran with.
func (p *installRun) stackUndo(ctx context.Context, l stack.Launcher) Undo {
	if !p.stackPresent(ctx) {
		return l.Down
	}
	if !p.compose.Existed {
		return nil
	}
	prev, path := p.compose, p.out.Paths.ComposeFile
	return func(ctx context.Context) error {
		if err := compose.Restore(path, prev); err != nil {
			return err
		}
		return l.Start(ctx)
	}
}

// stackPresent reports whether any service of the project already has a
// container. A failed query counts as present, so a rollback never takes
// down a stack it could not see.
func (p *installRun) stackPresent(ctx context.Context) bool {
	if p.deps.Docker == nil {
		return false
	}
	project := p.opts.Settings.Project
	for _, name := range compose.ServiceNames() {
		containers, err := p.deps.Docker.ServiceContainers(ctx, project, name)
		if err != nil {
			logging.Component("provision").Warn("container query failed, treating stack as present", "service", name, "err", err)
			return true
		}
		if len(containers) > 0 {
			return true
		}
	}
	return false
}

func (p *installRun) registrar() systemd.Registrar {
	s := p.opts.Settings
	return systemd.Registrar{Runner: p.deps.Runner, Dir: s.UnitDir, Name: s.UnitName}
}

// registerUnit writes and enables the boot unit. Its undo puts back
// whatever unit an earlier install left, or removes the unit if there was
// none.
func (p *installRun) registerUnit(ctx context.Context) (Undo, error) {
	r := p.registrar()
	prior, err := r.Capture(ctx)
	if err != nil {
		return nil, err
	}
	undo := func(ctx context.Context) error { return r.Restore(ctx, prior) }

	err = r.Register(ctx, systemd.UnitConfig{
		Description: "Share Space home server stack",
		Root:        p.out.Paths.Root,
		ComposeFile: p.out.Paths.ComposeFile,
	})
	return undo, err
}
