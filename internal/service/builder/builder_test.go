package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itglabs/update-packager/internal/config"
)

// TestArchiveName checks derived names for both modes and revision sanitizing.
func TestArchiveName(t *testing.T) {
	t.Parallel()

	cfg := new(config.Config)
	require.NoError(t, config.Validate(cfg))

	b := New(cfg, nil, nil)

	name := b.archiveName(&Request{OldRevision: "v1.0.0", NewRevision: "v1.2.0"})
	require.Equal(t, "ITG_Update_v1.0.0_to_v1.2.0.tar.gz", name)

	name = b.archiveName(&Request{NewRevision: "release/2025-01", Full: true})
	require.Equal(t, "ITG_Full-Package_release-2025-01.tar.gz", name)
}

// TestCountNewManifests counts manifests outside the changed file set.
func TestCountNewManifests(t *testing.T) {
	t.Parallel()

	files := []string{"svc-a/main.py", "svc-a/requirements.txt"}
	manifests := []string{"svc-a/requirements.txt", "svc-b/requirements.txt"}

	require.Equal(t, 1, countNewManifests(files, manifests))
	require.Equal(t, 2, countNewManifests(nil, manifests))
	require.Zero(t, countNewManifests(files, nil))
}

// TestAcquireMarker refuses a second run while a fresh marker exists.
func TestAcquireMarker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markerPath := filepath.Join(dir, MarkerFilename)

	require.NoError(t, acquireMarker(context.Background(), markerPath))

	_, err := os.Stat(markerPath)
	require.NoError(t, err)

	// The fresh marker blocks a concurrent run.
	require.ErrorIs(t, acquireMarker(context.Background(), markerPath), errPackagerRunning)
}
