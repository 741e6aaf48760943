package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/gitrepo"
	"github.com/itglabs/update-packager/internal/logger"
	"github.com/itglabs/update-packager/internal/wheels"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is an optional path to packaging settings (defaults to update-packager.yaml).
	ConfigPath string
	// RepoDir is where repository discovery starts (defaults to the working directory).
	RepoDir string
	// OldRevision is the baseline revision. Ignored with Full.
	OldRevision string
	// NewRevision is the revision being shipped.
	NewRevision string
	// OutputPath overrides the derived archive path.
	OutputPath string
	// PythonVersion overrides the configured interpreter version for wheel resolution.
	PythonVersion string
	// PipPlatform overrides the configured platform tag for wheel resolution.
	PipPlatform string
	// Full packages the entire tree of NewRevision.
	Full bool
	// Force bypasses the clean working tree check. Development use only.
	Force bool
}

const (
	// MarkerFilename marks an in-progress packager run to avoid parallel builds.
	MarkerFilename = ".update-packager.lock"

	// markerLifetime is the period after which a stale marker is eligible for cleanup.
	markerLifetime = 30 * time.Minute
)

var (
	// errPackagerRunning indicates another packager run owns the repository.
	errPackagerRunning = errors.New("another packager run is in progress")
	// errPipUnavailable indicates the configured pip binary cannot be found.
	errPipUnavailable = errors.New("pip executable not found")
)

// Run executes the packaging workflow end to end and is the CLI entry point.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "update-packager")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if opts.PythonVersion != "" {
		cfg.PythonVersion = opts.PythonVersion
	}

	if opts.PipPlatform != "" {
		cfg.PipPlatform = opts.PipPlatform
	}

	repoDir := opts.RepoDir
	if repoDir == "" {
		repoDir = "."
	}

	repo, err := gitrepo.Open(repoDir)
	if err != nil {
		return err
	}

	if err = preflight(ctx, cfg, repo, opts.Force); err != nil {
		return err
	}

	markerPath := filepath.Join(repo.Root(), MarkerFilename)
	if err = acquireMarker(ctx, markerPath); err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(markerPath)
	}()

	b := New(cfg, repo, wheels.NewFetcher(cfg))

	result, err := b.Build(ctx, &Request{
		OldRevision: opts.OldRevision,
		NewRevision: opts.NewRevision,
		Full:        opts.Full,
		OutputPath:  opts.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("build package: %w", err)
	}

	if result.ArchivePath == "" {
		return nil
	}

	logger.InfoKV(ctx, "Package created",
		"path", result.ArchivePath,
		"app_files", result.AppFiles,
		"wheel_files", result.WheelFiles,
		"deleted_upstream", result.DeletedFiles)

	return nil
}

// preflight mirrors the checks a build must pass before any staging happens:
// pip present, working tree clean unless forced.
func preflight(ctx context.Context, cfg *config.Config, repo *gitrepo.Repository, force bool) error {
	if _, err := exec.LookPath(cfg.PipExecutable); err != nil {
		return fmt.Errorf("%s: %w", cfg.PipExecutable, errPipUnavailable)
	}

	if force {
		logger.Warn(ctx, "Running in force mode, the working tree is not checked for cleanliness")
		logger.Warn(ctx, "This is not recommended for production builds")

		return nil
	}

	if err := repo.IsClean(); err != nil {
		if errors.Is(err, gitrepo.ErrDirtyWorktree) {
			return fmt.Errorf("commit or stash your changes, or use --force: %w", err)
		}

		return err
	}

	logger.Info(ctx, "Pre-flight checks passed")

	return nil
}

// acquireMarker creates the run marker, recovering from stale markers left by
// crashed runs when no packager process is alive anymore.
func acquireMarker(ctx context.Context, markerPath string) error {
	info, err := os.Stat(markerPath)
	if err == nil {
		if time.Since(info.ModTime()) <= markerLifetime || packagerProcessAlive() {
			return errPackagerRunning
		}

		logger.Info(ctx, "Removing stale packager marker")

		if err = os.Remove(markerPath); err != nil {
			return fmt.Errorf("remove stale marker: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat marker: %w", err)
	}

	marker, err := os.Create(markerPath)
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}

	return marker.Close()
}

// packagerProcessAlive reports whether another update-packager process is running.
func packagerProcessAlive() bool {
	processes, err := ps.Processes()
	if err != nil {
		// Unable to inspect processes, err on the side of caution.
		return true
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if strings.HasPrefix(process.Executable(), "update-packager") {
			return true
		}
	}

	return false
}
