package main

import (
	"context"
	"os"
	"time"

	"sharespace/config"
	"sharespace/internal/compose"
	"sharespace/internal/docker"

	"github.com/spf13/cobra"
)

const detectTimeout = 5 * time.Second

func renderCmd(flags *globalFlags) *cobra.Command {
	var apiVersion string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the compose file an install would write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			if apiVersion == "" {
				apiVersion = detectAPIVersion(cmd.Context(), settings.APIVersionFallback)
			}
			data, err := compose.Render(settings, apiVersion)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&apiVersion, "api-version", "", "Docker API version for the update watcher (default: ask the daemon)")
	return cmd
}

func detectAPIVersion(ctx context.Context, fallback string) string {
	rt, err := docker.NewRuntime()
	if err != nil {
		return fallback
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()
	return compose.DetectAPIVersion(ctx, rt, fallback)
}
