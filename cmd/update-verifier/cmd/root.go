package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/logger"
	"github.com/itglabs/update-packager/internal/service/verifier"
	"github.com/itglabs/update-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel adjusts global logging verbosity.
	logLevel string

	// rootCmd represents the base command that verifies update packages.
	rootCmd = &cobra.Command{
		Use:   "update-verifier <archive>",
		Short: "Verify an update package installs cleanly before shipping",
		Long: `Extract an update package into a scratch location and confirm that each
service's shipped dependency subset installs against its own manifest.
A failure blocks the release: the package must not be shipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &verifier.Options{
				ConfigPath:  configPath,
				ArchivePath: args[0],
			}

			return verifier.Run(ctx, options)
		},
	}
)

// Execute runs the update-verifier CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
