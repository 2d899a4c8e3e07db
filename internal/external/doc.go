// Package external integrates independently versioned components into a
// build.
//
// An external component is pinned to a repository reference (branch, tag,
// or revision), fetched fresh on every run, and built with its own isolated
// toolchain scope. Nothing is shared with the primary build chain: the
// component's dependency closure, toolchain version, and release cadence
// are independent of the primary project's, so the two converge only at
// image assembly.
//
// Pinning to a mutable branch means successive runs can pick up upstream
// changes. The integrator records each resolution (revision + timestamp)
// and logs drift between runs, making the movement auditable without
// rejecting it.
package external
