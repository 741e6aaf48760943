// Package config loads, validates and persists packaging settings shared by
// the update-packager and update-verifier binaries: the wheel platform triple,
// the target installation root, per-service virtualenv overrides and retry
// policy for package index downloads.
package config
