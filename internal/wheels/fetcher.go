package wheels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/logger"
	"github.com/itglabs/update-packager/internal/manifest"
)

// ErrResolutionFailure is returned when a dependency cannot be satisfied in
// binary-only form for the target platform. Fatal for the whole build: a
// partially resolved dependency set is never shippable.
var ErrResolutionFailure = errors.New("dependency resolution failed")

// RunFunc executes an external command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Fetcher downloads binary wheels for pinned specifiers into staging
// directories using pip, restricted to the configured platform triple.
type Fetcher struct {
	cfg *config.Config
	run RunFunc
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRunner replaces the command runner. Used by tests to stub out pip.
func WithRunner(run RunFunc) Option {
	return func(f *Fetcher) {
		f.run = run
	}
}

// NewFetcher creates a Fetcher bound to the packaging configuration.
func NewFetcher(cfg *config.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg: cfg,
		run: defaultRun,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// defaultRun executes the command via exec, capturing combined output.
func defaultRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Fetch resolves the provided specifiers into destDir as wheel files.
// Resolution is binary-only and pinned to the configured platform and
// interpreter version; requirements files are full freezes, so transitive
// dependencies are expected to be pinned explicitly (downloads run --no-deps).
//
// Failed attempts are retried with a bounded backoff; on final failure the
// staging directory is cleared so no partial resolution survives.
func (f *Fetcher) Fetch(ctx context.Context, specs []manifest.Specifier, destDir string) error {
	if len(specs) == 0 {
		return nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	reqFile, err := writeRequirements(specs)
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(reqFile)
	}()

	args := []string{
		"download",
		"--dest", destDir,
		"--platform", f.cfg.PipPlatform,
		"--python-version", f.cfg.PythonVersion,
		"--only-binary=:all:",
		"--no-deps",
		"--requirement", reqFile,
	}

	var lastErr error

	for attempt := 1; attempt <= f.cfg.DownloadRetries; attempt++ {
		output, runErr := f.run(ctx, f.cfg.PipExecutable, args...)
		if runErr == nil {
			return nil
		}

		lastErr = fmt.Errorf("pip download: %w: %s", runErr, string(output))

		if ctx.Err() != nil {
			break
		}

		if attempt < f.cfg.DownloadRetries {
			logger.WarnKV(ctx, "Wheel download failed, retrying",
				"attempt", attempt, "backoff", f.cfg.RetryBackoff.String())

			select {
			case <-time.After(f.cfg.RetryBackoff):
			case <-ctx.Done():
			}
		}
	}

	// Drop partial downloads so callers never see a half-resolved staging area.
	if err = clearDir(destDir); err != nil {
		logger.Warnf(ctx, "Unable to clear staging directory %s: %v", destDir, err)
	}

	return fmt.Errorf("%w: %s", ErrResolutionFailure, lastErr)
}

// writeRequirements persists specifiers to a temporary requirements file for pip.
func writeRequirements(specs []manifest.Specifier) (string, error) {
	file, err := os.CreateTemp("", "update-packager-req-*.txt")
	if err != nil {
		return "", fmt.Errorf("create requirements file: %w", err)
	}

	if _, err = file.WriteString(manifest.Render(specs)); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())

		return "", fmt.Errorf("write requirements file: %w", err)
	}

	if err = file.Close(); err != nil {
		return "", fmt.Errorf("close requirements file: %w", err)
	}

	return file.Name(), nil
}

// clearDir removes every entry inside a directory, keeping the directory itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err = os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}
