package wheels

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/manifest"
)

// testConfig returns a validated config with fast retries for tests.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		DownloadRetries: 2,
		RetryBackoff:    time.Millisecond,
	}
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// TestFetchInvokesPip checks argument construction and requirements passing.
func TestFetchInvokesPip(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	dest := filepath.Join(t.TempDir(), "staging")

	var gotName string

	var gotArgs []string

	fetcher := NewFetcher(cfg, WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args

		// Simulate pip writing a wheel into --dest.
		return nil, os.WriteFile(filepath.Join(dest, "flask-2.0.0-py3-none-any.whl"), []byte("whl"), 0o644)
	}))

	specs := []manifest.Specifier{{Name: "flask", Version: "2.0.0"}}
	require.NoError(t, fetcher.Fetch(context.Background(), specs, dest))

	require.Equal(t, cfg.PipExecutable, gotName)
	require.Contains(t, gotArgs, "download")
	require.Contains(t, gotArgs, "--only-binary=:all:")
	require.Contains(t, gotArgs, "--no-deps")
	require.Contains(t, gotArgs, cfg.PipPlatform)
	require.Contains(t, gotArgs, cfg.PythonVersion)

	// The requirements file handed to pip held the rendered pins.
	reqIndex := -1

	for i, arg := range gotArgs {
		if arg == "--requirement" {
			reqIndex = i + 1
		}
	}

	require.Positive(t, reqIndex)

	artifacts, err := ListArtifacts(dest)
	require.NoError(t, err)
	require.Equal(t, []string{"flask-2.0.0-py3-none-any.whl"}, artifacts)
}

// TestFetchEmptySpecsIsNoop verifies nothing runs for an empty pin list.
func TestFetchEmptySpecsIsNoop(t *testing.T) {
	t.Parallel()

	fetcher := NewFetcher(testConfig(t), WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	}))

	require.NoError(t, fetcher.Fetch(context.Background(), nil, t.TempDir()))
}

// TestFetchRetriesThenFails ensures bounded retries and a clean staging area on failure.
func TestFetchRetriesThenFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	dest := filepath.Join(t.TempDir(), "staging")

	attempts := 0

	fetcher := NewFetcher(cfg, WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		attempts++

		// Leave a partial download behind on every attempt.
		_ = os.MkdirAll(dest, 0o755)
		_ = os.WriteFile(filepath.Join(dest, "partial.whl"), []byte("x"), 0o644)

		return []byte("no matching distribution"), errors.New("exit status 1")
	}))

	specs := []manifest.Specifier{{Name: "ghost", Version: "9.9.9"}}
	err := fetcher.Fetch(context.Background(), specs, dest)
	require.ErrorIs(t, err, ErrResolutionFailure)
	require.Contains(t, err.Error(), "no matching distribution")
	require.Equal(t, cfg.DownloadRetries, attempts)

	// Partial staging was dropped.
	artifacts, listErr := ListArtifacts(dest)
	require.NoError(t, listErr)
	require.Empty(t, artifacts)
}

// TestFetchRecoversOnRetry verifies a transient failure followed by success.
func TestFetchRecoversOnRetry(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	dest := filepath.Join(t.TempDir(), "staging")

	attempts := 0

	fetcher := NewFetcher(cfg, WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return []byte("timeout"), errors.New("exit status 1")
		}

		return nil, os.WriteFile(filepath.Join(dest, "requests-2.31.0-py3-none-any.whl"), []byte("whl"), 0o644)
	}))

	specs := []manifest.Specifier{{Name: "requests", Version: "2.31.0"}}
	require.NoError(t, fetcher.Fetch(context.Background(), specs, dest))
	require.Equal(t, 2, attempts)
}
