package main

import (
	"sharespace/internal/clock"
	"sharespace/internal/docker"
	"sharespace/internal/hostenv"
	"sharespace/internal/hostexec"
	"sharespace/internal/identity"
	"sharespace/internal/provision"

	"go.opentelemetry.io/otel/trace"
)

// hostDeps wires provisioning to the real host. rt may be nil for
// commands that never talk to the Engine API.
func hostDeps(rt *docker.Runtime, tracer trace.Tracer) provision.Deps {
	deps := provision.Deps{
		Lookup:   hostenv.SystemLookup(),
		Runner:   hostexec.Exec{},
		Clock:    clock.Checker{},
		Tracer:   tracer,
		Identity: identity.DefaultSources(),
	}
	if rt != nil {
		deps.Docker = rt
	}
	return deps
}
