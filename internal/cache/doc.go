// Package cache implements the shared, content-addressed dependency cache
// store.
//
// Entries are keyed by a digest over the plan fingerprint plus the build
// configuration (profile, features, extra flags). An entry is populated at
// most once per key: concurrent cache misses for the same key coordinate on
// a per-key lock, and the populated directory is committed with an atomic
// rename so a build that dies mid-populate never leaves a partial entry.
// Entries are never mutated after commit; a configuration or dependency
// change addresses a new key instead.
//
// The store root is shared across pipeline invocations (see paths.CacheStore),
// which is the source of the pipeline's cross-build performance guarantee.
package cache
