package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFullContainsParts checks the formatted version string structure.
func TestFullContainsParts(t *testing.T) {
	t.Parallel()

	full := Full()
	require.True(t, strings.HasPrefix(full, "version: "))
	require.Contains(t, full, "commit: ")
	require.Contains(t, full, "built at: ")
	require.Contains(t, full, Short())
}
