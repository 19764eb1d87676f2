package docker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/client"
)

// WaitReady blocks until the daemon answers a ping. Connection failures are
// retried every interval until ctx ends; any other error is returned.
func WaitReady(ctx context.Context, cli client.APIClient, interval time.Duration) error {
	log := slog.With("component", "docker")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	waiting := false
	for {
		_, err := cli.Ping(ctx)
		if err == nil {
			if waiting {
				log.Debug("daemon reachable")
			}
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return fmt.Errorf("connect to docker daemon: %w", err)
		}
		if !waiting {
			waiting = true
			log.Debug("waiting for docker daemon")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("docker daemon not reachable: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
