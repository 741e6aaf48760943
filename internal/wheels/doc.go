// Package wheels resolves pinned dependencies into binary wheel files via pip
// and computes the minimal artifact delta between two resolutions.
//
// Resolution is always binary-only for a fixed platform/interpreter pair, so
// every produced artifact is installable offline on the target host.
package wheels
