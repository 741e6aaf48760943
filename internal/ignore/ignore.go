package ignore

import (
	"bufio"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pattern is a single exclusion rule with gitignore-style properties.
type pattern struct {
	glob     string
	negated  bool
	dirOnly  bool
	anchored bool
}

// Matcher filters candidate file paths through gitignore-style rules.
// The zero value matches nothing, so packaging without a .distignore
// ships every changed file.
type Matcher struct {
	patterns []pattern
}

// AddPattern compiles a single rule. Empty lines and comments are skipped.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var p pattern

	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}

	// Unanchored patterns without a slash match the basename at any depth.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	p.glob = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns compiles multiple rules in order. Later rules win via negation.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile reads rules from a gitignore-style file.
// A missing file is not an error: the matcher simply stays empty.
func (m *Matcher) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}

	return scanner.Err()
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match reports whether a slash-separated relative file path is excluded.
func (m *Matcher) Match(path string) bool {
	path = strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "./")

	ignored := false

	for _, p := range m.patterns {
		var matched bool
		if p.dirOnly {
			// Directory rules exclude files inside a matching directory.
			matched = matchParentDir(p.glob, path)
		} else {
			matched = matchGlob(p.glob, path)
		}

		if matched {
			ignored = !p.negated
		}
	}

	return ignored
}

// Filter returns the paths not excluded by the matcher, preserving order.
func (m *Matcher) Filter(paths []string) []string {
	if len(m.patterns) == 0 {
		return paths
	}

	kept := make([]string, 0, len(paths))

	for _, path := range paths {
		if !m.Match(path) {
			kept = append(kept, path)
		}
	}

	return kept
}

// matchParentDir reports whether any parent directory of path matches the glob.
func matchParentDir(glob, path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(glob, strings.Join(parts[:i], "/")) {
			return true
		}
	}

	return false
}

// matchGlob matches a path against a glob, also treating a bare directory
// pattern as covering everything beneath it.
func matchGlob(glob, path string) bool {
	if matched, _ := doublestar.Match(glob, path); matched {
		return true
	}

	if !strings.HasSuffix(glob, "/**") {
		if matched, _ := doublestar.Match(glob+"/**", path); matched {
			return true
		}
	}

	return false
}
