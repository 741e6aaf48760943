// Package gitrepo provides read-only access to the project history using go-git.
//
// All packaging inputs come from committed snapshots, never from the working
// tree: resolving revisions, listing files, diffing trees and reading file
// content at a revision. The working tree is only consulted for the
// cleanliness preflight check.
package gitrepo
