// Package manifest defines the declarative project description consumed by
// the build pipeline.
//
// A manifest is a YAML document (kiln.yaml by convention) declaring the
// dependency closure and its lockfile, the primary build configuration,
// zero or more external components pinned to a repository reference, and
// the runtime image layout. The build commands inside a manifest are opaque
// to the pipeline: they are handed to a toolchain unchanged.
//
// Parsing performs structural validation only. Lockfile resolution belongs
// to the planner, which reports missing entries and version conflicts as
// plan errors.
package manifest
