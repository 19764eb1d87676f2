package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sharespace/cmd/share-space/ui"
	"sharespace/config"
	"sharespace/internal/adapter/sqlite"
	"sharespace/internal/docker"
	"sharespace/internal/provision"
	"sharespace/internal/stack"

	"github.com/spf13/cobra"
)

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service readiness, boot unit state and the last install run",
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

			var st provision.Status
			err = ui.RunWithSpinner(cmd.Context(), "collecting status", func(ctx context.Context) error {
				var err error
				st, err = provision.CollectStatus(ctx, hostDeps(rt, nil), settings)
				return err
			})
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			fmt.Print(renderStatus(st))
			return nil
		},
	}
}

func renderStatus(st provision.Status) string {
	rows := make([][]string, 0, len(st.Services))
	for _, svc := range st.Services {
		note := ""
		if svc.Err != nil {
			note = svc.Err.Error()
		}
		rows = append(rows, []string{svc.Name, ui.Toned(svc.State.String(), readinessTone(svc.State)), strconv.Itoa(svc.Containers), note})
	}

	id := st.ID
	if id == "" {
		id = ui.Muted("none")
	}

	out := ui.Table([]string{"SERVICE", "STATE", "CONTAINERS", "ERROR"}, rows) + "\n\n"
	out += ui.KeyValues("",
		ui.KV("Install root", st.Paths.Root),
		ui.KV("Installation ID", id),
		ui.KV("Unit installed", ui.YesNo(st.Unit.Installed)),
		ui.KV("Unit enabled", ui.YesNo(st.Unit.Enabled)),
		ui.KV("Unit active", ui.YesNo(st.Unit.Active)),
	)
	if st.JournalErr != nil {
		return out + ui.KeyValues("", ui.KV("Last run", ui.Warn("unreadable: "+st.JournalErr.Error())))
	}
	if !st.HasRun {
		return out + ui.KeyValues("", ui.KV("Last run", ui.Muted("none")))
	}

	run := st.LastRun
	pairs := []ui.Pair{
		ui.KV("Last run", fmt.Sprintf("#%d %s (%s)", run.ID, run.Command, run.Version)),
		ui.KV("Started", run.StartedAt.Local().Format(time.DateTime)),
		ui.KV("Outcome", ui.Toned(string(run.Outcome), outcomeTone(run.Outcome))),
	}
	if run.Error != "" {
		pairs = append(pairs, ui.KV("Error", run.Error))
	}
	return out + ui.KeyValues("", pairs...)
}

func readinessTone(r stack.Readiness) ui.Tone {
	switch r {
	case stack.Healthy, stack.Running:
		return ui.Good
	case stack.Created, stack.Starting:
		return ui.Degraded
	case stack.Unhealthy, stack.Exited, stack.Missing:
		return ui.Bad
	default:
		return ui.Neutral
	}
}

func outcomeTone(o sqlite.Outcome) ui.Tone {
	switch o {
	case sqlite.OutcomeSucceeded:
		return ui.Good
	case sqlite.OutcomeRunning, sqlite.OutcomeCompensated:
		return ui.Degraded
	case sqlite.OutcomeFailed, sqlite.OutcomeCompensationFailed:
		return ui.Bad
	default:
		return ui.Neutral
	}
}
