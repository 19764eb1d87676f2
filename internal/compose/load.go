package compose

import (
	"context"
	"errors"
	"fmt"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
)

const composeFilename = "docker-compose.yml"

// ErrNoServices is returned by Load for a descriptor without services.
var ErrNoServices = errors.New("compose file has no services")

// Load parses a descriptor the way docker compose will, resolving
// relative paths against workingDir.
func Load(ctx context.Context, workingDir string, data []byte) (*composetypes.Project, error) {
	configDetails := composetypes.ConfigDetails{
		WorkingDir: workingDir,
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: composeFilename, Content: data},
		},
		Environment: composetypes.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, configDetails)
	if err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}
	return project, nil
}

// Validate checks a rendered descriptor against the compose schema and the
// stack's structural rules.
func Validate(ctx context.Context, workingDir string, data []byte, appNetwork string) error {
	project, err := Load(ctx, workingDir, data)
	if err != nil {
		return err
	}
	if len(project.Services) != ServiceCount {
		return fmt.Errorf("compose file has %d services, want %d", len(project.Services), ServiceCount)
	}
	updater, ok := project.Services[ServiceUpdater]
	if !ok {
		return fmt.Errorf("compose file is missing the %s service", ServiceUpdater)
	}
	if _, joined := updater.Networks[appNetwork]; joined {
		return fmt.Errorf("%s must not join network %s", ServiceUpdater, appNetwork)
	}
	return nil
}
