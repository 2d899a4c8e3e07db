// Package build implements the primary build chain: the dependency cache
// builder and the application builder.
//
// The dependency builder is the pipeline's central performance lever. It
// compiles a plan's closure at most once per (fingerprint, profile,
// features, flags) tuple and reuses the shared cache entry on every
// subsequent build with the same tuple. The application builder then
// compiles only application units against that entry; the dependency cache
// location is handed to the opaque build command, never rebuilt.
//
// Both builders delegate all compilation to a toolchain and report failures
// through the package's sentinel errors, carrying the failing dependency's
// name where one exists.
package build
