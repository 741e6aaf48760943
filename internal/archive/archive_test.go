package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleMembers returns members in deliberately unsorted order.
func sampleMembers() []Member {
	return []Member{
		{Name: "update.sh", Mode: 0o755, Body: []byte("#!/bin/bash\necho hi\n")},
		{Name: "app/svc-a/main.py", Mode: 0o644, Body: []byte("print('v2')\n")},
		{Name: "app/svc-a/requirements.txt", Mode: 0o644, Body: []byte("flask==2.1.0\n")},
		{Name: "wheels/svc-a/flask-2.1.0-py3-none-any.whl", Mode: 0o644, Body: []byte("wheel-bytes")},
	}
}

// TestWriteDeterministic builds the same archive twice and compares bytes.
func TestWriteDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.tar.gz")
	second := filepath.Join(dir, "second.tar.gz")

	require.NoError(t, Write(first, sampleMembers()))
	require.NoError(t, Write(second, sampleMembers()))

	firstBytes, err := os.ReadFile(first)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, firstBytes, secondBytes)
}

// TestRoundTrip extracts an archive and checks content and permissions.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pkg.tar.gz")
	require.NoError(t, Write(archivePath, sampleMembers()))

	dest := filepath.Join(dir, "extracted")
	require.NoError(t, Extract(archivePath, dest))

	for _, member := range sampleMembers() {
		target := filepath.Join(dest, filepath.FromSlash(member.Name))

		content, err := os.ReadFile(target)
		require.NoError(t, err)
		require.Equal(t, member.Body, content)

		info, err := os.Stat(target)
		require.NoError(t, err)
		require.Equal(t, member.Mode.Perm(), info.Mode().Perm())
	}

	// No extra files beyond the members and their directories.
	var fileCount int

	err := filepath.WalkDir(dest, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			fileCount++
		}

		return nil
	})
	require.NoError(t, err)
	require.Len(t, sampleMembers(), fileCount)
}

// TestWriteRemovesPartialOutput ensures no archive survives a write failure.
func TestWriteRemovesPartialOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "missing-parent", "pkg.tar.gz")

	require.Error(t, Write(path, sampleMembers()))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

// TestExtractRejectsTraversal refuses members that escape the destination.
func TestExtractRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")

	members := []Member{{Name: "../escape.txt", Mode: 0o644, Body: []byte("nope")}}
	require.NoError(t, Write(archivePath, members))

	err := Extract(archivePath, filepath.Join(dir, "out"))
	require.ErrorIs(t, err, ErrUnsafePath)
}
