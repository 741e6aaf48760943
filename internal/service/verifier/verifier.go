package verifier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/itglabs/update-packager/internal/archive"
	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/gitrepo"
	"github.com/itglabs/update-packager/internal/logger"
	"github.com/itglabs/update-packager/internal/wheels"
)

// ErrVerificationFailure is returned when a service's shipped dependency
// subset does not install cleanly against its manifest. The archive stays on
// disk but must not be shipped.
var ErrVerificationFailure = errors.New("package verification failed")

// Verifier checks that a produced update package installs cleanly: every
// manifest under app/ must be satisfiable from its wheels/<service> subset
// (with package index fallback for anything not shipped) and the resulting
// environment must be internally consistent.
type Verifier struct {
	cfg *config.Config
	run wheels.RunFunc
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithRunner replaces the command runner. Used by tests to stub out pip.
func WithRunner(run wheels.RunFunc) Option {
	return func(v *Verifier) {
		v.run = run
	}
}

// New creates a Verifier bound to the packaging configuration.
func New(cfg *config.Config, opts ...Option) *Verifier {
	v := &Verifier{
		cfg: cfg,
		run: defaultRun,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Verify extracts the archive into a scratch location and install-checks
// every service that shipped dependency artifacts. Services without shipped
// wheels are skipped: the target environment already satisfies them.
func (v *Verifier) Verify(ctx context.Context, archivePath string) error {
	scratch, err := os.MkdirTemp("", "update-verifier-")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	if err = archive.Extract(archivePath, scratch); err != nil {
		return fmt.Errorf("extract package: %w", err)
	}

	manifests, err := findManifests(filepath.Join(scratch, "app"))
	if err != nil {
		return err
	}

	if len(manifests) == 0 {
		logger.Info(ctx, "Package ships no manifests, nothing to verify")
		return nil
	}

	for _, manifestPath := range manifests {
		if err = v.verifyService(ctx, scratch, manifestPath); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Package verified", "services", len(manifests))

	return nil
}

// verifyService install-checks one service from its shipped wheel subset.
func (v *Verifier) verifyService(ctx context.Context, scratch, manifestPath string) error {
	service := filepath.ToSlash(filepath.Dir(manifestPath))
	wheelDir := filepath.Join(scratch, "wheels", filepath.Dir(manifestPath))

	artifacts, err := wheels.ListArtifacts(wheelDir)
	if err != nil {
		return err
	}

	if len(artifacts) == 0 {
		logger.InfoKV(ctx, "No artifacts shipped, skipping service", "service", service)
		return nil
	}

	logger.InfoKV(ctx, "Verifying service install", "service", service, "artifacts", len(artifacts))

	envDir := filepath.Join(scratch, "envs", filepath.FromSlash(service))
	if output, runErr := v.run(ctx, v.cfg.PythonExecutable, "-m", "venv", envDir); runErr != nil {
		return fmt.Errorf("service %s: create environment: %w: %s", service, runErr, string(output))
	}

	pip := filepath.Join(envDir, "bin", "pip")

	installArgs := []string{
		"install",
		"--find-links", wheelDir,
		"--requirement", filepath.Join(scratch, "app", manifestPath),
	}
	if output, runErr := v.run(ctx, pip, installArgs...); runErr != nil {
		return fmt.Errorf("service %s: %w: %s", service, ErrVerificationFailure, string(output))
	}

	// pip check catches missing or conflicting transitive dependencies.
	if output, runErr := v.run(ctx, pip, "check"); runErr != nil {
		return fmt.Errorf("service %s: environment inconsistent: %w: %s", service, ErrVerificationFailure, string(output))
	}

	return nil
}

// findManifests walks the extracted app/ tree for requirements files,
// returned relative to appRoot.
func findManifests(appRoot string) ([]string, error) {
	var manifests []string

	err := filepath.WalkDir(appRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && path == appRoot {
				return filepath.SkipAll
			}

			return walkErr
		}

		if d.IsDir() || d.Name() != gitrepo.ManifestFilename {
			return nil
		}

		rel, relErr := filepath.Rel(appRoot, path)
		if relErr != nil {
			return relErr
		}

		manifests = append(manifests, rel)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan extracted package: %w", err)
	}

	return manifests, nil
}

// defaultRun executes the command via exec, capturing combined output.
func defaultRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
