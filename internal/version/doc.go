// Package version exposes build metadata injected at link time and a cobra
// subcommand that prints it. The packager and verifier share the same scheme.
package version
