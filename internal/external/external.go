package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/emberworks/kilnd/internal/build"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/paths"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Filename of the resolution record kept next to a component's work tree.
const resolutionFilename = "resolution.json"

// The result of integrating one external component.
type Component struct {
	Artifact   build.Artifact       // Built binary artifact.
	Resolution toolchain.Resolution // How the pinned reference resolved at fetch time.
	SourceDir  string               // Fetched source tree on the host.
}

// Fetches and builds external components in a scope fully isolated from the
// primary build chain.
//
// The integrator shares no cache or build state with the dependency and
// application builders: its work directory, toolchain instance, and
// resolution records are its own. A dependency change on the primary side
// never invalidates an external component, and vice versa.
type Integrator struct {
	Fetcher   toolchain.Fetcher   // Opaque source-control fetch client.
	Toolchain toolchain.Toolchain // Opaque compiler, separate from the primary chain's.
	WorkDir   string              // Root for fetched trees and resolution records.
}

// Fetches the component at its pinned reference and builds it to completion.
//
// The source tree is fetched fresh each run so a mutable branch reference
// re-resolves; the resolved revision and timestamp are recorded in the work
// directory, and a revision that differs from the previous run is logged as
// drift, not treated as an error. Fetch and build failures are fatal and
// never retried.
func (i *Integrator) Integrate(ctx context.Context, spec manifest.ExternalComponent) (*Component, error) {
	componentDir := filepath.Join(i.WorkDir, spec.Name)
	srcDir := filepath.Join(componentDir, "src")

	if err := os.RemoveAll(srcDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if err := os.MkdirAll(componentDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	slog.Info("fetching external component",
		"component", spec.Name,
		"repository", spec.Repository,
		"ref", spec.Ref,
	)

	resolution, err := i.Fetcher.Fetch(ctx, spec.Repository, spec.Ref, srcDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, spec.Name, err)
	}

	i.recordResolution(componentDir, spec, resolution)

	outDir := filepath.Join(componentDir, "out")
	req := toolchain.BuildRequest{
		Name:    spec.Name,
		Dir:     srcDir,
		Command: spec.Command,
		Output:  outDir,
		Env: map[string]string{
			"KILN_EXT_REF":      spec.Ref,
			"KILN_EXT_REVISION": resolution.Revision,
		},
	}

	if err := i.Toolchain.Build(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExternalBuild, spec.Name, err)
	}

	payload := filepath.Join(outDir, spec.Artifact)
	if _, err := os.Stat(payload); err != nil {
		return nil, fmt.Errorf("%w: %s: command did not produce %s", ErrExternalBuild, spec.Name, spec.Artifact)
	}

	slog.Info("external component built",
		"component", spec.Name,
		"revision", resolution.Revision,
		"artifact", payload,
	)

	return &Component{
		Artifact: build.Artifact{
			Name:  spec.Name,
			Stage: build.StageExternal,
			Path:  payload,
		},
		Resolution: *resolution,
		SourceDir:  srcDir,
	}, nil
}

// Persists the resolution record and logs drift against the previous run.
//
// A mutable branch reference that resolved to a different revision than
// last time is expected behavior, surfaced for audit rather than failed.
func (i *Integrator) recordResolution(dir string, spec manifest.ExternalComponent, res *toolchain.Resolution) {
	path := filepath.Join(dir, resolutionFilename)

	if prev, err := readResolution(path); err == nil && prev.Revision != res.Revision {
		slog.Info("external component drifted since last run",
			"component", spec.Name,
			"ref", spec.Ref,
			"previous", prev.Revision,
			"current", res.Revision,
		)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("unreadable resolution record", "component", spec.Name, "error", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, paths.DefaultFileMode)
	}
	if err != nil {
		slog.Warn("failed to record resolution", "component", spec.Name, "error", err)
	}
}

// Reads a previously recorded resolution.
func readResolution(path string) (*toolchain.Resolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res toolchain.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
