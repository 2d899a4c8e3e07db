package toolchain

import (
	"context"
	"time"
)

// Describes one opaque compilation unit: a dependency, the primary
// application, or an external component.
type BuildRequest struct {
	Name     string            // Unit name, for diagnostics and sandbox naming.
	Dir      string            // Source directory the command runs in.
	Command  string            // Build command, passed through verbatim.
	Output   string            // Directory the unit's artifacts are written to.
	Profile  string            // Build profile (e.g., "release").
	Features []string          // Enabled feature flags.
	Flags    string            // Extra compiler flags.
	Env      map[string]string // Additional environment for the command.
}

// Compiles a single unit. The pipeline treats compilation as an opaque
// capability: it hands over a request and receives artifacts in the output
// directory or an error.
type Toolchain interface {
	Build(ctx context.Context, req BuildRequest) error
}

// Records how a mutable reference was resolved at fetch time.
//
// A branch reference can move between pipeline runs; recording the resolved
// revision and timestamp makes that drift auditable rather than silent.
type Resolution struct {
	Revision   string    `json:"revision"`    // Concrete revision the reference resolved to.
	ResolvedAt time.Time `json:"resolved_at"` // When the resolution happened.
}

// Fetches a source tree at a pinned reference into dest.
type Fetcher interface {
	Fetch(ctx context.Context, repository, ref, dest string) (*Resolution, error)
}

// Installs system packages into a staging root. Only runtime packages ever
// pass through this interface; build-time packages live in the build
// sandbox image and never reach the assembled output.
type Installer interface {
	Install(ctx context.Context, root string, packages []string) error
}
