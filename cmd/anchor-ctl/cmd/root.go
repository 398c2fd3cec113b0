package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/service/ctl"
	"github.com/oshokin/anchor-watch/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// serverAddress overrides server_addr from the configuration.
	serverAddress string

	// rootCmd groups the anchor-ctl subcommands.
	rootCmd = &cobra.Command{
		Use:   "anchor-ctl",
		Short: "Control a running anchor-server.",
		Long: `Drops and resets the anchor, changes the safe radius, feeds manual fixes and
follows the watch state of a running anchor-server.

The server address and RPC timeout come from the configuration file; --server
overrides the address. Every command prints the resulting state as one line.`,
		SilenceUsage: true,
	}
)

// Execute runs the anchor-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run executes op with signal-aware context and the shared flags.
func run(cmd *cobra.Command, op ctl.Operation) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	options := &ctl.Options{
		ConfigPath:    configPath,
		ServerAddress: serverAddress,
		Out:           cmd.OutOrStdout(),
	}

	return ctl.Run(ctx, options, op)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&serverAddress, "server", "s", "", "anchor-server address, overrides server_addr")

	rootCmd.AddCommand(
		newDropCommand(),
		newResetCommand(),
		newRadiusCommand(),
		newStatusCommand(),
		newFixCommand(),
		newFollowCommand(),
	)
}
