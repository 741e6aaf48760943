package wheels

import (
	"fmt"
	"os"
	"sort"
)

// ListArtifacts returns the artifact filenames present in a staging directory,
// sorted. A missing directory counts as an empty resolution.
func ListArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read staging directory %s: %w", dir, err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}

// DiffDirs returns the artifact filenames present in newDir but absent from
// oldDir. Identity is by filename only: wheel names embed name, version and
// platform, so filename equality is the same proxy for "unchanged" that the
// install step relies on.
func DiffDirs(oldDir, newDir string) ([]string, error) {
	oldNames, err := ListArtifacts(oldDir)
	if err != nil {
		return nil, err
	}

	newNames, err := ListArtifacts(newDir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(oldNames))
	for _, name := range oldNames {
		seen[name] = struct{}{}
	}

	var delta []string

	for _, name := range newNames {
		if _, ok := seen[name]; !ok {
			delta = append(delta, name)
		}
	}

	return delta, nil
}
