package external

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberworks/kilnd/internal/build"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Writes a marker file into the destination and resolves to a fixed revision.
type fakeFetcher struct {
	revision string
	err      error
	fetches  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, repository, ref, dest string) (*toolchain.Resolution, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dest, "README"), []byte(repository), 0644); err != nil {
		return nil, err
	}
	return &toolchain.Resolution{
		Revision:   f.revision,
		ResolvedAt: time.Now().UTC(),
	}, nil
}

// Writes the declared artifact under the output directory.
type fakeBuilder struct {
	artifact string
	err      error
	requests []toolchain.BuildRequest
}

func (f *fakeBuilder) Build(ctx context.Context, req toolchain.BuildRequest) error {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.err
	}
	path := filepath.Join(req.Output, f.artifact)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(req.Name), 0644)
}

func testSpec() manifest.ExternalComponent {
	return manifest.ExternalComponent{
		Name:       "sidecar",
		Repository: "https://example.com/sidecar.git",
		Ref:        "main",
		Command:    "make sidecar",
		Artifact:   filepath.Join("bin", "sidecar"),
	}
}

func TestIntegrate(t *testing.T) {
	fetcher := &fakeFetcher{revision: "abc123"}
	builder := &fakeBuilder{artifact: filepath.Join("bin", "sidecar")}
	i := &Integrator{Fetcher: fetcher, Toolchain: builder, WorkDir: t.TempDir()}

	c, err := i.Integrate(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if c.Artifact.Stage != build.StageExternal || c.Artifact.Name != "sidecar" {
		t.Fatalf("artifact = %+v", c.Artifact)
	}
	if _, err := os.Stat(c.Artifact.Path); err != nil {
		t.Fatalf("artifact path: %v", err)
	}
	if c.Resolution.Revision != "abc123" {
		t.Fatalf("revision = %q", c.Resolution.Revision)
	}
	if _, err := os.Stat(filepath.Join(c.SourceDir, "README")); err != nil {
		t.Fatalf("source tree: %v", err)
	}

	env := builder.requests[0].Env
	if env["KILN_EXT_REF"] != "main" || env["KILN_EXT_REVISION"] != "abc123" {
		t.Fatalf("build env = %v", env)
	}
}

func TestIntegrateRecordsResolution(t *testing.T) {
	workDir := t.TempDir()
	fetcher := &fakeFetcher{revision: "abc123"}
	i := &Integrator{
		Fetcher:   fetcher,
		Toolchain: &fakeBuilder{artifact: filepath.Join("bin", "sidecar")},
		WorkDir:   workDir,
	}

	if _, err := i.Integrate(context.Background(), testSpec()); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "sidecar", resolutionFilename))
	if err != nil {
		t.Fatalf("resolution record: %v", err)
	}
	var res toolchain.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("unmarshal resolution: %v", err)
	}
	if res.Revision != "abc123" {
		t.Fatalf("recorded revision = %q", res.Revision)
	}
}

func TestIntegrateDriftIsNotAnError(t *testing.T) {
	workDir := t.TempDir()
	fetcher := &fakeFetcher{revision: "abc123"}
	i := &Integrator{
		Fetcher:   fetcher,
		Toolchain: &fakeBuilder{artifact: filepath.Join("bin", "sidecar")},
		WorkDir:   workDir,
	}

	if _, err := i.Integrate(context.Background(), testSpec()); err != nil {
		t.Fatalf("first Integrate: %v", err)
	}

	// The branch moved between runs. The new revision wins and the record
	// is updated; nothing fails.
	fetcher.revision = "def456"
	c, err := i.Integrate(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("second Integrate: %v", err)
	}
	if c.Resolution.Revision != "def456" {
		t.Fatalf("revision = %q, want def456", c.Resolution.Revision)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "sidecar", resolutionFilename))
	if err != nil {
		t.Fatalf("resolution record: %v", err)
	}
	var res toolchain.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("unmarshal resolution: %v", err)
	}
	if res.Revision != "def456" {
		t.Fatalf("recorded revision = %q, want def456", res.Revision)
	}

	if fetcher.fetches != 2 {
		t.Fatalf("fetches = %d, want 2 (fresh fetch per run)", fetcher.fetches)
	}
}

func TestIntegrateFetchFailure(t *testing.T) {
	boom := errors.New("remote hung up")
	i := &Integrator{
		Fetcher:   &fakeFetcher{err: boom},
		Toolchain: &fakeBuilder{},
		WorkDir:   t.TempDir(),
	}

	_, err := i.Integrate(context.Background(), testSpec())
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
}

func TestIntegrateBuildFailure(t *testing.T) {
	boom := errors.New("make exploded")
	i := &Integrator{
		Fetcher:   &fakeFetcher{revision: "abc123"},
		Toolchain: &fakeBuilder{err: boom},
		WorkDir:   t.TempDir(),
	}

	_, err := i.Integrate(context.Background(), testSpec())
	if !errors.Is(err, ErrExternalBuild) {
		t.Fatalf("err = %v, want ErrExternalBuild", err)
	}
}

func TestIntegrateMissingArtifact(t *testing.T) {
	i := &Integrator{
		Fetcher:   &fakeFetcher{revision: "abc123"},
		Toolchain: &fakeBuilder{artifact: "wrong-path"},
		WorkDir:   t.TempDir(),
	}

	_, err := i.Integrate(context.Background(), testSpec())
	if !errors.Is(err, ErrExternalBuild) {
		t.Fatalf("err = %v, want ErrExternalBuild", err)
	}
}
