// Package toolchain defines the opaque capabilities the pipeline consumes:
// compiling a unit, fetching a source tree at a pinned reference, and
// installing system packages into a staging root.
//
// The pipeline never interprets build commands, package names, or
// repository references; it only sequences these capabilities and handles
// their failures. Two families of implementations are provided: host-exec
// (commands run directly on the host, used for local builds and tests) and
// sandboxed (commands run inside containerd-backed build sandboxes, used by
// the daemon). The primary and external build chains always receive
// separate toolchain instances so their scopes stay isolated.
package toolchain
