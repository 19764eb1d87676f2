// Package docker talks to the Docker Engine API.
//
// The installer shells out to the docker CLI for compose operations, which
// the Engine API does not offer, and uses this package wherever a
// structured answer is needed: the API version, daemon readiness and the
// state of the stack's containers.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Labels docker compose stamps on every container it creates.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)

// ContainerInfo is the state of one container as reported by the daemon.
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	State  string // created, running, restarting, exited, paused, dead
	Health string // empty when the container has no health check
}

// Runtime wraps a Docker Engine API client.
type Runtime struct {
	cli client.APIClient
}

// NewRuntime creates a Runtime with a client configured from the environment.
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

// NewRuntimeFromClient wraps an existing client.
func NewRuntimeFromClient(cli client.APIClient) *Runtime {
	return &Runtime{cli: cli}
}

func (r *Runtime) WaitReady(ctx context.Context) error {
	return WaitReady(ctx, r.cli, time.Second)
}

// APIVersion returns the API version the daemon speaks.
func (r *Runtime) APIVersion(ctx context.Context) (string, error) {
	v, err := r.cli.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("query docker version: %w", err)
	}
	return v.APIVersion, nil
}

// ServiceContainers returns the containers compose created for service in
// project, sorted by name. Containers that vanish between listing and
// inspection are skipped.
func (r *Runtime) ServiceContainers(ctx context.Context, project, service string) ([]ContainerInfo, error) {
	filters := dockerfilters.NewArgs(
		dockerfilters.Arg("label", LabelComposeProject+"="+project),
		dockerfilters.Arg("label", LabelComposeService+"="+service),
	)
	list, err := r.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("list containers for %s/%s: %w", project, service, err)
	}

	out := make([]ContainerInfo, 0, len(list))
	for _, c := range list {
		info, err := r.cli.ContainerInspect(ctx, c.ID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("inspect container %s: %w", shortID(c.ID), err)
		}

		ci := ContainerInfo{ID: c.ID, Image: c.Image, State: string(c.State)}
		if len(c.Names) > 0 {
			ci.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		if info.State != nil {
			ci.State = string(info.State.Status)
			if info.State.Health != nil {
				ci.Health = string(info.State.Health.Status)
			}
		}
		out = append(out, ci)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
