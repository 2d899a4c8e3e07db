// Package plan turns a manifest's declared dependency closure into a
// deterministic, content-addressed build plan.
//
// The plan fingerprint is the cache identity of the closure: identical
// declarations always hash identically, and any change to a dependency's
// version or feature set produces a new fingerprint. Build profile and
// compiler flags are deliberately excluded; they are mixed into the cache
// key by the cache store, not into the plan.
package plan
