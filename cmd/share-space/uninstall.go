package main

import (
	"fmt"

	"sharespace/cmd/share-space/ui"
	"sharespace/config"
	"sharespace/internal/buildinfo"
	"sharespace/internal/provision"

	"github.com/spf13/cobra"
)

func uninstallCmd(flags *globalFlags) *cobra.Command {
	var (
		purge bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the stack and remove the boot unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			if purge && !yes {
				ok, err := ui.Confirm("Delete the install directory and all share-space data?", "use --yes to purge without a prompt")
				if err != nil {
					return err
				}
				if !ok {
					return ui.ErrCancelled
				}
			}

			out := ui.NewTelemetryOutput()
			err = provision.Uninstall(cmd.Context(), hostDeps(nil, out.Tracer("sharespace/uninstall")), provision.UninstallOptions{
				Settings: settings,
				Purge:    purge,
				Version:  buildinfo.Version,
			})
			out.Close()
			if err != nil {
				return fmt.Errorf("uninstall: %w", err)
			}

			fmt.Println(ui.SuccessMsg("share-space uninstalled"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the install directory and its data")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the purge confirmation")
	return cmd
}
