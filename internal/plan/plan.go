package plan

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/emberworks/kilnd/internal/manifest"
)

// A deterministic description of what must be built to satisfy a project's
// dependency closure. The fingerprint depends only on declared dependencies
// (name, version, features); edits to application source never change it.
type BuildPlan struct {
	Fingerprint  digest.Digest         // Content hash of the canonical dependency closure.
	Dependencies []manifest.Dependency // Closure in canonical (name-sorted) order.
}

// Generates a build plan from a manifest.
//
// Dependencies are resolved against the lockfile when one is present: every
// declared dependency must have a lockfile entry, and the locked version must
// match the declared version. The closure is then canonicalized (sorted by
// name, features sorted within each entry) and fingerprinted, so two
// manifests declaring the same closure always produce the same plan.
func Generate(m *manifest.Manifest) (*BuildPlan, error) {
	deps, err := resolve(m)
	if err != nil {
		return nil, err
	}

	fingerprint := fingerprint(deps)

	slog.Debug("plan generated",
		"project", m.Project,
		"dependencies", len(deps),
		"fingerprint", fingerprint,
	)

	return &BuildPlan{
		Fingerprint:  fingerprint,
		Dependencies: deps,
	}, nil
}

// Resolves the declared dependencies into a canonical closure.
func resolve(m *manifest.Manifest) ([]manifest.Dependency, error) {
	deps := make([]manifest.Dependency, 0, len(m.Dependencies))
	seen := make(map[string]string, len(m.Dependencies))

	for _, dep := range m.Dependencies {
		if prev, ok := seen[dep.Name]; ok {
			if prev != dep.Version {
				return nil, fmt.Errorf("%w: version conflict for %q: %s vs %s", ErrPlan, dep.Name, prev, dep.Version)
			}
			continue
		}
		seen[dep.Name] = dep.Version

		if len(m.Lockfile) > 0 {
			locked, ok := m.Lockfile[dep.Name]
			if !ok {
				return nil, fmt.Errorf("%w: no lockfile entry for %q", ErrPlan, dep.Name)
			}
			if locked != dep.Version {
				return nil, fmt.Errorf("%w: %q declared as %s but locked at %s", ErrPlan, dep.Name, dep.Version, locked)
			}
		}

		canonical := dep
		canonical.Features = slices.Clone(dep.Features)
		slices.Sort(canonical.Features)
		deps = append(deps, canonical)
	}

	slices.SortFunc(deps, func(a, b manifest.Dependency) int {
		return strings.Compare(a.Name, b.Name)
	})

	return deps, nil
}

// Hashes a canonical closure.
//
// Each dependency contributes its name, version, and sorted feature set,
// joined with NUL separators so that field boundaries cannot collide.
func fingerprint(deps []manifest.Dependency) digest.Digest {
	var b strings.Builder
	for _, dep := range deps {
		b.WriteString(dep.Name)
		b.WriteByte(0)
		b.WriteString(dep.Version)
		b.WriteByte(0)
		b.WriteString(strings.Join(dep.Features, ","))
		b.WriteByte('\n')
	}
	return digest.FromString(b.String())
}
