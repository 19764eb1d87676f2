package stack

import (
	"context"
	"log/slog"
	"time"

	"sharespace/internal/docker"
)

// Readiness is the observed state of a service's container.
type Readiness uint8

const (
	Unknown Readiness = iota
	Missing
	Created
	Starting
	Running
	Healthy
	Unhealthy
	Exited
)

func (r Readiness) String() string {
	switch r {
	case Missing:
		return "missing"
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Ready reports whether the container is up. A running container whose
// health check has not passed yet counts: the check has its own start
// period and the restart watcher takes over if it never passes.
func (r Readiness) Ready() bool {
	return r == Running || r == Healthy
}

// Classify maps daemon-reported containers of one service to a Readiness.
// With several replicas the least ready one decides.
func Classify(containers []docker.ContainerInfo) Readiness {
	if len(containers) == 0 {
		return Missing
	}
	worst := Healthy
	for _, c := range containers {
		if r := classifyOne(c); rank(r) < rank(worst) {
			worst = r
		}
	}
	return worst
}

func classifyOne(c docker.ContainerInfo) Readiness {
	switch c.State {
	case "created":
		return Created
	case "restarting":
		return Starting
	case "running":
		switch c.Health {
		case "healthy":
			return Healthy
		case "unhealthy":
			return Unhealthy
		default:
			return Running
		}
	case "exited", "dead":
		return Exited
	case "paused", "removing":
		return Unhealthy
	default:
		return Unknown
	}
}

// rank orders states from least to most ready.
func rank(r Readiness) int {
	switch r {
	case Healthy:
		return 7
	case Running:
		return 6
	case Starting:
		return 5
	case Created:
		return 4
	case Unhealthy:
		return 3
	case Exited:
		return 2
	case Missing:
		return 1
	default:
		return 0
	}
}

// Inspector lists a compose service's containers.
type Inspector interface {
	ServiceContainers(ctx context.Context, project, service string) ([]docker.ContainerInfo, error)
}

// WaitOptions bounds the readiness poll.
type WaitOptions struct {
	Project  string
	Service  string
	Attempts int
	Interval time.Duration
}

// WaitResult is the last observation of a readiness poll.
type WaitResult struct {
	State    Readiness
	Attempts int
	Err      error // last inspection error, if the final attempt failed
}

// WaitReady polls until the service is ready or the attempts run out.
// Running out of attempts is not an error; callers inspect the result.
// Only context cancellation is returned as an error.
func WaitReady(ctx context.Context, in Inspector, opts WaitOptions) (WaitResult, error) {
	log := slog.With("component", "stack", "service", opts.Service)
	attempts := max(opts.Attempts, 1)

	var res WaitResult
	for i := 1; i <= attempts; i++ {
		res.Attempts = i
		containers, err := in.ServiceContainers(ctx, opts.Project, opts.Service)
		if err != nil {
			res.State, res.Err = Unknown, err
			log.Debug("inspect failed", "attempt", i, "err", err)
		} else {
			res.State, res.Err = Classify(containers), nil
			log.Debug("observed", "attempt", i, "state", res.State)
			if res.State.Ready() {
				return res, nil
			}
		}

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
	return res, nil
}
