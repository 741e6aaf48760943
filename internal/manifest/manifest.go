package manifest

import (
	"path"
	"strings"
)

// Specifier is a single pinned dependency: exact name and version.
type Specifier struct {
	Name    string
	Version string
}

// String renders the specifier in pip requirement form.
func (s Specifier) String() string {
	return s.Name + "==" + s.Version
}

// Parse extracts pinned specifiers from manifest content, preserving order.
// Only exact pins (name==version) participate in packaging; comments, blank
// lines and non-pinned specifiers are skipped. Requirements files are expected
// to be full freezes, so loose specifiers are a manifest authoring error that
// surfaces during verification rather than here.
func Parse(content []byte) []Specifier {
	var specs []Specifier

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, versionPart, found := strings.Cut(line, "==")
		if !found {
			continue
		}

		name = strings.TrimSpace(name)
		version := strings.TrimSpace(versionPart)

		if name == "" || version == "" || strings.Contains(version, "=") {
			continue
		}

		specs = append(specs, Specifier{Name: name, Version: version})
	}

	return specs
}

// Changed returns the specifiers from updated that are new or carry a
// different version than in old, preserving the order of updated.
func Changed(old, updated []Specifier) []Specifier {
	oldVersions := make(map[string]string, len(old))
	for _, spec := range old {
		oldVersions[spec.Name] = spec.Version
	}

	var changed []Specifier

	for _, spec := range updated {
		if version, ok := oldVersions[spec.Name]; !ok || version != spec.Version {
			changed = append(changed, spec)
		}
	}

	return changed
}

// Render writes specifiers back into requirements file content.
func Render(specs []Specifier) string {
	if len(specs) == 0 {
		return ""
	}

	var builder strings.Builder

	for _, spec := range specs {
		builder.WriteString(spec.String())
		builder.WriteByte('\n')
	}

	return builder.String()
}

// ServiceDir returns the service directory owning a manifest path.
// A manifest at the repository root belongs to the "." service.
func ServiceDir(manifestPath string) string {
	return path.Dir(manifestPath)
}
