package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sharespace/cmd/share-space/ui"
	"sharespace/config"
	"sharespace/internal/buildinfo"
	"sharespace/internal/logging"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath    string
	debug         bool
	noInteraction bool
}

func main() {
	var flags globalFlags
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	install := installCmd(&flags)
	root := &cobra.Command{
		Use:           "share-space",
		Short:         "Install and run the share-space home server",
		Version:       buildinfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if flags.debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}
			ui.ConfigureInteraction(flags.noInteraction)
			return nil
		},
		RunE: install.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath, "Settings file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flags.noInteraction, "no-interaction", false, "Never prompt or animate output")
	// Bare "share-space" is an install, so it takes the install flags too.
	root.Flags().AddFlagSet(install.Flags())

	root.AddCommand(install)
	root.AddCommand(renderCmd(&flags))
	root.AddCommand(statusCmd(&flags))
	root.AddCommand(uninstallCmd(&flags))

	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
