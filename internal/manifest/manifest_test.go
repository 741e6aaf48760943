package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParse covers pins, comments, blanks and loose specifiers.
func TestParse(t *testing.T) {
	t.Parallel()

	content := []byte(`
# web stack
flask==2.0.0
requests == 2.31.0

# not pinned, skipped
uvicorn>=0.20
gunicorn
pydantic==
`)

	specs := Parse(content)
	require.Equal(t, []Specifier{
		{Name: "flask", Version: "2.0.0"},
		{Name: "requests", Version: "2.31.0"},
	}, specs)
}

// TestParseEmpty returns no specifiers for empty or comment-only content.
func TestParseEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Parse(nil))
	require.Empty(t, Parse([]byte("# nothing here\n")))
}

// TestChanged verifies new and version-bumped packages are reported, removals ignored.
func TestChanged(t *testing.T) {
	t.Parallel()

	old := []Specifier{
		{Name: "flask", Version: "2.0.0"},
		{Name: "requests", Version: "2.31.0"},
		{Name: "dropped", Version: "1.0.0"},
	}
	updated := []Specifier{
		{Name: "flask", Version: "2.1.0"},
		{Name: "requests", Version: "2.31.0"},
		{Name: "newpkg", Version: "0.1.0"},
	}

	changed := Changed(old, updated)
	require.Equal(t, []Specifier{
		{Name: "flask", Version: "2.1.0"},
		{Name: "newpkg", Version: "0.1.0"},
	}, changed)

	// Identical manifests yield no changes.
	require.Empty(t, Changed(updated, updated))

	// Everything counts as changed against an absent manifest.
	require.Equal(t, updated, Changed(nil, updated))
}

// TestRender round-trips specifiers into requirements content.
func TestRender(t *testing.T) {
	t.Parallel()

	specs := []Specifier{
		{Name: "flask", Version: "2.0.0"},
		{Name: "requests", Version: "2.31.0"},
	}
	require.Equal(t, "flask==2.0.0\nrequests==2.31.0\n", Render(specs))
	require.Empty(t, Render(nil))
}

// TestServiceDir maps manifest paths to owning service directories.
func TestServiceDir(t *testing.T) {
	t.Parallel()

	require.Equal(t, "sidecar-redfish", ServiceDir("sidecar-redfish/requirements.txt"))
	require.Equal(t, "a/b", ServiceDir("a/b/requirements.txt"))
	require.Equal(t, ".", ServiceDir("requirements.txt"))
}
