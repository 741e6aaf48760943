// Package builder orchestrates the packaging pipeline: revision diffing,
// per-service dependency delta resolution, installer generation and
// deterministic archive assembly.
//
// Stages run strictly in sequence and each owns its staging area exclusively.
// Any fatal condition aborts the entire run; no partial package is ever
// produced.
package builder
