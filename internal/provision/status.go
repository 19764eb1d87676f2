package provision

import (
	"context"
	"os"
	"path/filepath"

	"sharespace/config"
	"sharespace/internal/adapter/sqlite"
	"sharespace/internal/compose"
	"sharespace/internal/hostenv"
	"sharespace/internal/identity"
	"sharespace/internal/layout"
	"sharespace/internal/stack"
	"sharespace/internal/systemd"
)

// ServiceStatus is the observed readiness of one compose service.
type ServiceStatus struct {
	Name       string
	State      stack.Readiness
	Containers int
	Err        error
}

type Status struct {
	Env      hostenv.Env
	Paths    layout.Paths
	ID       string
	Services []ServiceStatus
	Unit     systemd.State
	LastRun  sqlite.Run
	HasRun   bool

	// JournalErr is set when the journal exists but could not be read.
	JournalErr error
}

// CollectStatus gathers what is installed and running without changing
// anything. Missing pieces show up as zero values.
func CollectStatus(ctx context.Context, deps Deps, s config.Settings) (Status, error) {
	env, err := hostenv.Resolve(deps.Lookup)
	if err != nil {
		return Status{}, err
	}
	st := Status{Env: env, Paths: layout.New(env.Home, s.InstallDir)}

	if id, err := identity.Read(st.Paths.Identifier); err == nil {
		st.ID = id
	}

	for _, name := range compose.ServiceNames() {
		svc := ServiceStatus{Name: name}
		if deps.Docker == nil {
			svc.State = stack.Unknown
		} else if containers, err := deps.Docker.ServiceContainers(ctx, s.Project, name); err != nil {
			svc.State, svc.Err = stack.Unknown, err
		} else {
			svc.State, svc.Containers = stack.Classify(containers), len(containers)
		}
		st.Services = append(st.Services, svc)
	}

	st.Unit = systemd.Registrar{Runner: deps.Runner, Dir: s.UnitDir, Name: s.UnitName}.Status(ctx)

	path := filepath.Join(s.StateDir, sqlite.JournalFile)
	if _, err := os.Stat(path); err == nil {
		st.LastRun, st.HasRun, st.JournalErr = readLastRun(ctx, path)
	}
	return st, nil
}

func readLastRun(ctx context.Context, path string) (sqlite.Run, bool, error) {
	journal, err := sqlite.OpenReadOnly(ctx, path)
	if err != nil {
		return sqlite.Run{}, false, err
	}
	defer journal.Close()
	return journal.LastRun(ctx)
}
