package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/service/server"
	"github.com/oshokin/anchor-watch/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// trackFile overrides the track replayed as the fix feed.
	trackFile string

	// rootCmd represents the base command for running the gRPC server.
	rootCmd = &cobra.Command{
		Use:   "anchor-server [listen-address]",
		Short: "Run the anchor watch and serve it over gRPC.",
		Long: `Starts the anchor watch: it takes position fixes, compares them with the anchor
point and raises an alarm when the vessel drifts outside the safe radius.

Fixes arrive through the SubmitFix RPC or from a YAML track file replayed at
the configured interval. Only the port from server_addr is used for listening
(e.g., :50061); a listen address argument overrides it (e.g., 0.0.0.0:9090).
When alert.command is configured it is run on every alarm. Anchor state is
kept in memory only.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			defer logger.Sync()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				TrackFile:     trackFile,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the anchor-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&trackFile, "track", "t", "", "YAML track file to replay as the fix feed")
}
