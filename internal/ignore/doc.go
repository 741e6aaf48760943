// Package ignore provides gitignore-style pattern matching for the
// .distignore file, which excludes paths from update packages.
package ignore
