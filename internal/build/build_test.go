package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emberworks/kilnd/internal/cache"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/plan"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Records build requests and writes the requested output path so artifact
// verification passes.
type fakeToolchain struct {
	requests []toolchain.BuildRequest
	artifact string // Relative path to create under the output directory.
	fail     func(req toolchain.BuildRequest) error
}

func (f *fakeToolchain) Build(ctx context.Context, req toolchain.BuildRequest) error {
	f.requests = append(f.requests, req)

	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return err
		}
	}

	path := req.Output
	if f.artifact != "" {
		path = filepath.Join(req.Output, f.artifact)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(req.Name), 0644)
}

func testPlan(t *testing.T) *plan.BuildPlan {
	t.Helper()

	p, err := plan.Generate(&manifest.Manifest{
		Project: "demo",
		Dependencies: []manifest.Dependency{
			{Name: "codec", Version: "0.9.1"},
			{Name: "core", Version: "1.4.2", Features: []string{"metrics"}},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return p
}

func TestDependencyBuilderPopulatesCache(t *testing.T) {
	tc := &fakeToolchain{}
	b := &DependencyBuilder{
		Store:     cache.NewStore(t.TempDir()),
		Toolchain: tc,
	}
	cfg := manifest.BuildConfig{Profile: "release", DependencyCommand: "make dep"}

	entry, err := b.Build(context.Background(), testPlan(t), cfg, t.TempDir())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(tc.requests) != 2 {
		t.Fatalf("toolchain ran %d times, want 2", len(tc.requests))
	}

	// Closure order is canonical, so codec builds before core.
	if tc.requests[0].Name != "codec" || tc.requests[1].Name != "core" {
		t.Fatalf("build order = %s, %s", tc.requests[0].Name, tc.requests[1].Name)
	}

	env := tc.requests[1].Env
	if env["KILN_DEP_VERSION"] != "1.4.2" || env["KILN_DEP_FEATURES"] != "metrics" {
		t.Fatalf("dependency env = %v", env)
	}

	for _, name := range []string{"codec", "core"} {
		path, ok := entry.ArtifactPath(name)
		if !ok {
			t.Fatalf("entry has no artifact for %s", name)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}
}

func TestDependencyBuilderCacheHit(t *testing.T) {
	tc := &fakeToolchain{}
	b := &DependencyBuilder{
		Store:     cache.NewStore(t.TempDir()),
		Toolchain: tc,
	}
	cfg := manifest.BuildConfig{Profile: "release"}
	root := t.TempDir()

	first, err := b.Build(context.Background(), testPlan(t), cfg, root)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}

	second, err := b.Build(context.Background(), testPlan(t), cfg, root)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}

	if len(tc.requests) != 2 {
		t.Fatalf("toolchain ran %d times, want 2 (no recompilation on hit)", len(tc.requests))
	}
	if first.Key != second.Key || first.Dir() != second.Dir() {
		t.Fatal("hit returned a different entry")
	}
}

func TestDependencyBuilderRebuildsOnVersionChange(t *testing.T) {
	tc := &fakeToolchain{}
	b := &DependencyBuilder{
		Store:     cache.NewStore(t.TempDir()),
		Toolchain: tc,
	}
	cfg := manifest.BuildConfig{Profile: "release"}
	root := t.TempDir()

	if _, err := b.Build(context.Background(), testPlan(t), cfg, root); err != nil {
		t.Fatalf("Build: %v", err)
	}

	changed, err := plan.Generate(&manifest.Manifest{
		Project: "demo",
		Dependencies: []manifest.Dependency{
			{Name: "codec", Version: "0.9.2"},
			{Name: "core", Version: "1.4.2", Features: []string{"metrics"}},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := b.Build(context.Background(), changed, cfg, root); err != nil {
		t.Fatalf("Build after version change: %v", err)
	}

	if len(tc.requests) != 4 {
		t.Fatalf("toolchain ran %d times, want 4 (full rebuild on version change)", len(tc.requests))
	}
}

func TestDependencyBuilderProfileChangesKey(t *testing.T) {
	tc := &fakeToolchain{}
	b := &DependencyBuilder{
		Store:     cache.NewStore(t.TempDir()),
		Toolchain: tc,
	}
	root := t.TempDir()

	if _, err := b.Build(context.Background(), testPlan(t), manifest.BuildConfig{Profile: "release"}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := b.Build(context.Background(), testPlan(t), manifest.BuildConfig{Profile: "debug"}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(tc.requests) != 4 {
		t.Fatalf("toolchain ran %d times, want 4 (profiles do not share entries)", len(tc.requests))
	}
}

func TestDependencyBuilderFailureNamesDependency(t *testing.T) {
	boom := errors.New("rustc exploded")
	tc := &fakeToolchain{
		fail: func(req toolchain.BuildRequest) error {
			if req.Name == "core" {
				return boom
			}
			return nil
		},
	}
	b := &DependencyBuilder{
		Store:     cache.NewStore(t.TempDir()),
		Toolchain: tc,
	}

	_, err := b.Build(context.Background(), testPlan(t), manifest.BuildConfig{}, t.TempDir())
	if !errors.Is(err, ErrDependencyBuild) {
		t.Fatalf("err = %v, want ErrDependencyBuild", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	if !strings.Contains(err.Error(), "core") {
		t.Fatalf("err = %v, want failing dependency name", err)
	}
}

func TestApplicationBuilder(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	dep := &DependencyBuilder{Store: store, Toolchain: &fakeToolchain{}}
	cfg := manifest.BuildConfig{
		Profile:  "release",
		Command:  "make node",
		Artifact: filepath.Join("bin", "demo"),
	}

	entry, err := dep.Build(context.Background(), testPlan(t), cfg, t.TempDir())
	if err != nil {
		t.Fatalf("dependency Build: %v", err)
	}

	tc := &fakeToolchain{artifact: cfg.Artifact}
	app := &ApplicationBuilder{Toolchain: tc}

	artifact, err := app.Build(context.Background(), "demo", entry, cfg, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("application Build: %v", err)
	}

	if artifact.Stage != StageApplication || artifact.Name != "demo" {
		t.Fatalf("artifact = %+v", artifact)
	}
	if _, err := os.Stat(artifact.Path); err != nil {
		t.Fatalf("artifact path: %v", err)
	}

	if got := tc.requests[0].Env["KILN_DEP_CACHE"]; got != entry.Dir() {
		t.Fatalf("KILN_DEP_CACHE = %q, want %q", got, entry.Dir())
	}
}

func TestApplicationBuilderMissingArtifact(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	dep := &DependencyBuilder{Store: store, Toolchain: &fakeToolchain{}}

	entry, err := dep.Build(context.Background(), testPlan(t), manifest.BuildConfig{}, t.TempDir())
	if err != nil {
		t.Fatalf("dependency Build: %v", err)
	}

	// The fake writes req.Output itself, never the declared artifact path.
	app := &ApplicationBuilder{Toolchain: &fakeToolchain{}}
	cfg := manifest.BuildConfig{Artifact: filepath.Join("bin", "demo")}

	_, err = app.Build(context.Background(), "demo", entry, cfg, t.TempDir(), filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrApplicationBuild) {
		t.Fatalf("err = %v, want ErrApplicationBuild", err)
	}
}
