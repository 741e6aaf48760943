package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/logger"
	"github.com/itglabs/update-packager/internal/service/builder"
	"github.com/itglabs/update-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// outputPath overrides the derived archive file name.
	outputPath string
	// repoDir is where repository discovery starts.
	repoDir string
	// logLevel adjusts global logging verbosity.
	logLevel string
	// pythonVersion overrides the configured interpreter version.
	pythonVersion string
	// pipPlatform overrides the configured wheel platform tag.
	pipPlatform string
	// fullPackage switches to full-package mode (single revision).
	fullPackage bool
	// force bypasses the clean working tree check.
	force bool

	// errRevisionArgs is returned for a wrong revision argument count.
	errRevisionArgs = errors.New("expected <old-revision> <new-revision>, or a single revision with --full")

	// rootCmd represents the base command that builds update packages.
	rootCmd = &cobra.Command{
		Use:   "update-packager [old-revision] <new-revision>",
		Short: "Build an incremental or full offline update package",
		Long: `Build a self-contained offline update package for a multi-service source tree.

Incremental mode diffs two revisions and packages only changed application
files, manifests present in the new revision and the new-only binary
dependency artifacts per service. Full mode packages the entire tree of a
single revision.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &builder.Options{
				ConfigPath:    configPath,
				RepoDir:       repoDir,
				OutputPath:    outputPath,
				PythonVersion: pythonVersion,
				PipPlatform:   pipPlatform,
				Full:          fullPackage,
				Force:         force,
			}

			switch {
			case fullPackage && len(args) == 1:
				options.NewRevision = args[0]
			case fullPackage && len(args) == 2:
				// Tolerated for symmetry with incremental invocations; the
				// baseline argument is ignored.
				options.NewRevision = args[1]
			case !fullPackage && len(args) == 2:
				options.OldRevision = args[0]
				options.NewRevision = args[1]
			default:
				return errRevisionArgs
			}

			return builder.Run(ctx, options)
		},
	}
)

// Execute runs the update-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "path for the output .tar.gz file")
	rootCmd.Flags().StringVar(&repoDir, "repo", ".", "directory inside the repository to package")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&pythonVersion, "python-version", "", "interpreter version for wheel resolution (overrides configuration)")
	rootCmd.Flags().StringVar(&pipPlatform, "platform", "", "wheel platform tag (overrides configuration)")
	rootCmd.Flags().BoolVar(&fullPackage, "full", false, "package the entire tree of a single revision")
	rootCmd.Flags().BoolVar(&force, "force", false, "bypass the clean working tree check (development only)")
}
