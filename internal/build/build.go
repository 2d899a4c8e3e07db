package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emberworks/kilnd/internal/cache"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/plan"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Subdirectory of a cache entry holding per-dependency artifacts.
const artifactsDir = "artifacts"

// Builds dependency closures into the shared cache store.
type DependencyBuilder struct {
	Store     *cache.Store        // Shared cache store.
	Toolchain toolchain.Toolchain // Opaque compiler for dependency units.
}

// Returns the cache entry for a plan under a build configuration, compiling
// the closure only on a cache miss.
//
// A hit for the (fingerprint, profile, features, flags) tuple is reused
// without any recompilation. On a miss, every dependency in the closure
// is compiled in canonical order and the results are persisted under the
// tuple's key; concurrent misses for the same key coordinate through the
// store and compile exactly once. A failing dependency aborts the build
// with that dependency's name in the error.
func (b *DependencyBuilder) Build(ctx context.Context, p *plan.BuildPlan, cfg manifest.BuildConfig, root string) (*cache.Entry, error) {
	key := cache.Key(p.Fingerprint, cfg)

	if entry, ok, err := b.Store.Get(key); err != nil {
		return nil, err
	} else if ok {
		slog.Info("dependency cache hit",
			"key", key,
			"created_at", entry.CreatedAt,
			"artifacts", len(entry.Artifacts),
		)
		return entry, nil
	}

	slog.Info("dependency cache miss, building closure",
		"key", key,
		"dependencies", len(p.Dependencies),
	)

	return b.Store.Populate(ctx, key, p.Fingerprint, func(dir string) (map[string]string, error) {
		return b.buildClosure(ctx, p, cfg, root, dir)
	})
}

// Compiles every dependency in the closure into the entry directory.
func (b *DependencyBuilder) buildClosure(ctx context.Context, p *plan.BuildPlan, cfg manifest.BuildConfig, root, dir string) (map[string]string, error) {
	artifacts := make(map[string]string, len(p.Dependencies))

	for _, dep := range p.Dependencies {
		rel := filepath.Join(artifactsDir, dep.Name)

		req := toolchain.BuildRequest{
			Name:     dep.Name,
			Dir:      root,
			Command:  cfg.DependencyCommand,
			Output:   filepath.Join(dir, rel),
			Profile:  cfg.Profile,
			Features: cfg.Features,
			Flags:    cfg.Flags,
			Env: map[string]string{
				"KILN_DEP_NAME":     dep.Name,
				"KILN_DEP_VERSION":  dep.Version,
				"KILN_DEP_SOURCE":   dep.Source,
				"KILN_DEP_FEATURES": strings.Join(dep.Features, ","),
			},
		}

		if err := b.Toolchain.Build(ctx, req); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDependencyBuild, dep.Name, err)
		}

		artifacts[dep.Name] = rel
	}

	return artifacts, nil
}

// Builds the primary application artifact on top of a populated cache entry.
type ApplicationBuilder struct {
	Toolchain toolchain.Toolchain // Opaque compiler for the application unit.
}

// Compiles the application against a populated dependency cache entry.
//
// The entry's directory is exposed to the build command via KILN_DEP_CACHE
// so that nothing in the closure is recompiled; only application units are
// built. The command must write the configured artifact path into its
// output directory, and the build fails if it does not.
func (b *ApplicationBuilder) Build(ctx context.Context, project string, entry *cache.Entry, cfg manifest.BuildConfig, root, output string) (*Artifact, error) {
	req := toolchain.BuildRequest{
		Name:     project,
		Dir:      root,
		Command:  cfg.Command,
		Output:   output,
		Profile:  cfg.Profile,
		Features: cfg.Features,
		Flags:    cfg.Flags,
		Env: map[string]string{
			"KILN_DEP_CACHE": entry.Dir(),
		},
	}

	if err := b.Toolchain.Build(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrApplicationBuild, err)
	}

	payload := filepath.Join(output, cfg.Artifact)
	if _, err := os.Stat(payload); err != nil {
		return nil, fmt.Errorf("%w: command did not produce %s", ErrApplicationBuild, cfg.Artifact)
	}

	slog.Info("application built", "project", project, "artifact", payload)

	return &Artifact{
		Name:     project,
		Stage:    StageApplication,
		Path:     payload,
		Profile:  cfg.Profile,
		Features: cfg.Features,
	}, nil
}
