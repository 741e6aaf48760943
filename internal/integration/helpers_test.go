package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/itglabs/update-packager/internal/archive"
	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/manifest"
)

// initRepo creates an empty repository in a temp directory.
func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	return dir, repo
}

// commit writes files, stages everything and commits, returning the hash.
func commit(t *testing.T, dir string, repo *git.Repository, files map[string]string, message string) string {
	t.Helper()

	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	worktree, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, worktree.AddWithOptions(&git.AddOptions{All: true}))

	hash, err := worktree.Commit(message, &git.CommitOptions{
		All: true,
		Author: &object.Signature{
			Name:  "ci",
			Email: "ci@example.com",
			When:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	return hash.String()
}

// deleteAndCommit removes paths and commits the deletion, returning the hash.
func deleteAndCommit(t *testing.T, dir string, repo *git.Repository, paths []string, message string) string {
	t.Helper()

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for _, path := range paths {
		_, err = worktree.Remove(filepath.FromSlash(path))
		require.NoError(t, err)
		_ = os.Remove(filepath.Join(dir, filepath.FromSlash(path)))
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "ci",
			Email: "ci@example.com",
			When:  time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	return hash.String()
}

// fastConfig returns a validated config with test-friendly retry settings.
func fastConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := new(config.Config)
	require.NoError(t, config.Validate(cfg))

	cfg.DownloadRetries = 1
	cfg.RetryBackoff = time.Millisecond

	return cfg
}

// stubPip simulates pip download: it parses the requirements file passed via
// --requirement and drops a wheel file per pin into --dest. Pins whose name
// starts with "ghost" have no binary distribution and fail resolution.
func stubPip(_ context.Context, _ string, args ...string) ([]byte, error) {
	var dest, reqFile string

	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "--dest":
			dest = args[i+1]
		case "--requirement":
			reqFile = args[i+1]
		}
	}

	content, err := os.ReadFile(reqFile)
	if err != nil {
		return nil, err
	}

	for _, spec := range manifest.Parse(content) {
		if strings.HasPrefix(spec.Name, "ghost") {
			return []byte(fmt.Sprintf("ERROR: no matching distribution found for %s", spec.Name)), errors.New("exit status 1")
		}

		wheel := fmt.Sprintf("%s-%s-py3-none-any.whl", spec.Name, spec.Version)
		if err = os.WriteFile(filepath.Join(dest, wheel), []byte(wheel), 0o644); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// extractArchive unpacks an archive into a fresh directory and returns it.
func extractArchive(t *testing.T, archivePath string) string {
	t.Helper()

	dest := t.TempDir()
	require.NoError(t, archive.Extract(archivePath, dest))

	return dest
}

// listFiles returns all regular files under root, slash-separated and sorted order
// is the caller's concern.
func listFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}

			files = append(files, filepath.ToSlash(rel))
		}

		return nil
	})
	require.NoError(t, err)

	return files
}
