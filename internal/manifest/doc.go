// Package manifest parses per-service requirements files and computes the
// pinned-dependency delta between two revisions of a manifest.
package manifest
