package main

import (
	"fmt"
	"log/slog"
	"os"

	"sharespace/cmd/share-space/ui"
	"sharespace/config"
	"sharespace/internal/buildinfo"
	"sharespace/internal/docker"
	"sharespace/internal/provision"
	"sharespace/internal/report"
	"sharespace/internal/stack"

	"github.com/spf13/cobra"
)

func installCmd(flags *globalFlags) *cobra.Command {
	var (
		noRollback   bool
		regenerateID bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the runtime and start the share-space stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			rt, err := docker.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			out := ui.NewTelemetryOutput()
			outcome, err := provision.Install(cmd.Context(), hostDeps(rt, out.Tracer("sharespace/install")), provision.Options{
				Settings:     settings,
				RegenerateID: regenerateID,
				NoRollback:   noRollback,
				Version:      buildinfo.Version,
			})
			out.Close()
			if err != nil {
				return fmt.Errorf("install: %w", err)
			}

			for _, w := range outcome.Warnings {
				fmt.Fprintln(os.Stderr, ui.WarnMsg("%s", w))
			}
			fmt.Println()
			fmt.Print(ui.RenderSummary(summarize(settings, outcome)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRollback, "no-rollback", false, "Leave completed steps in place when a later step fails")
	cmd.Flags().BoolVar(&regenerateID, "regenerate-id", false, "Replace an existing installation ID")
	return cmd
}

func summarize(s config.Settings, o provision.Outcome) report.Summary {
	ip, err := report.PrimaryIP()
	if err != nil {
		slog.Debug("primary address lookup failed", "err", err)
	}

	sum := report.Summary{
		IP:               ip,
		Hostname:         s.Hostname,
		AppPort:          s.AppPort().HostPort,
		GatewayPort:      s.GatewayPort().HostPort,
		Root:             o.Paths.Root,
		Data:             o.Paths.Data,
		ID:               o.Identity.ID,
		User:             o.Env.User,
		UnitName:         s.UnitName,
		RuntimeInstalled: o.Runtime.Installed,
		Ready:            o.Readiness.State.Ready(),
		Readiness:        o.Readiness.State.String(),
	}
	if !sum.Ready {
		sum.Diagnostics = stack.Diagnostics(o.Paths.Root)
	}
	return sum
}
