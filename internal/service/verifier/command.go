package verifier

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/logger"
)

// Options contains inputs for the verifier entry point.
type Options struct {
	// ConfigPath is an optional path to packaging settings.
	ConfigPath string
	// ArchivePath is the update package to verify.
	ArchivePath string
}

// errArchiveMissing indicates the archive to verify does not exist.
var errArchiveMissing = errors.New("archive not found")

// Run executes the verification workflow and is the CLI entry point.
// A verification failure means the package must not be shipped; the archive
// is preserved on disk for inspection.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "update-verifier")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if _, err = os.Stat(opts.ArchivePath); err != nil {
		return fmt.Errorf("%s: %w", opts.ArchivePath, errArchiveMissing)
	}

	v := New(cfg)

	if err = v.Verify(ctx, opts.ArchivePath); err != nil {
		logger.ErrorKV(ctx, "Verification failed, the package must not be shipped",
			"archive", opts.ArchivePath, "error", err)

		return err
	}

	logger.InfoKV(ctx, "Package is ready for shipping", "archive", opts.ArchivePath)

	return nil
}
