// Package archive writes and extracts the update package tar.gz.
//
// Output is deterministic: members are sorted by name, ownership is
// normalized and every timestamp (including the gzip header) is fixed, so
// building the same revision pair twice yields byte-identical archives.
package archive
