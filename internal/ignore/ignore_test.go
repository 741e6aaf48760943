package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMatchBasics covers basename, anchored and directory rules.
func TestMatchBasics(t *testing.T) {
	t.Parallel()

	var m Matcher
	m.AddPatterns([]string{
		"*.pyc",
		"test/",
		"/secrets.yaml",
		"docs/**",
	})

	require.True(t, m.Match("svc/module.pyc"))
	require.True(t, m.Match("test/conftest.py"))
	require.True(t, m.Match("svc/test/helper.py"))
	require.True(t, m.Match("secrets.yaml"))
	require.False(t, m.Match("svc/secrets.yaml"))
	require.True(t, m.Match("docs/readme.md"))
	require.False(t, m.Match("svc/app.py"))
}

// TestNegation verifies later rules can re-include excluded paths.
func TestNegation(t *testing.T) {
	t.Parallel()

	var m Matcher
	m.AddPatterns([]string{
		"*.log",
		"!keep.log",
	})

	require.True(t, m.Match("build/run.log"))
	require.False(t, m.Match("keep.log"))
}

// TestFilter keeps order and handles an empty matcher.
func TestFilter(t *testing.T) {
	t.Parallel()

	paths := []string{"a.py", "a.pyc", "b.py"}

	var empty Matcher
	require.Equal(t, paths, empty.Filter(paths))

	var m Matcher
	m.AddPattern("*.pyc")
	require.Equal(t, []string{"a.py", "b.py"}, m.Filter(paths))
}

// TestLoadFile reads rules from disk and tolerates a missing file.
func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".distignore")
	require.NoError(t, os.WriteFile(path, []byte("# junk\n*.tmp\nci/\n"), 0o644))

	var m Matcher
	require.NoError(t, m.LoadFile(path))
	require.Equal(t, 2, m.Len())
	require.True(t, m.Match("x.tmp"))
	require.True(t, m.Match("ci/deploy.yml"))

	var missing Matcher
	require.NoError(t, missing.LoadFile(filepath.Join(dir, "absent")))
	require.Zero(t, missing.Len())
}
