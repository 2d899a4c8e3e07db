package plan

import (
	"errors"
	"testing"

	"github.com/emberworks/kilnd/internal/manifest"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Project: "demo",
		Dependencies: []manifest.Dependency{
			{Name: "codec", Version: "0.9.1", Features: []string{"simd"}},
			{Name: "core", Version: "1.4.2", Features: []string{"snapshots", "metrics"}},
		},
		Lockfile: map[string]string{
			"codec": "0.9.1",
			"core":  "1.4.2",
		},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(testManifest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(testManifest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints differ: %s vs %s", a.Fingerprint, b.Fingerprint)
	}
}

func TestGenerateOrderIndependent(t *testing.T) {
	m := testManifest()
	reversed := testManifest()
	reversed.Dependencies[0], reversed.Dependencies[1] = reversed.Dependencies[1], reversed.Dependencies[0]
	reversed.Dependencies[0].Features = []string{"metrics", "snapshots"}

	a, err := Generate(m)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(reversed)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if a.Fingerprint != b.Fingerprint {
		t.Fatal("declaration order changed the fingerprint")
	}

	// The closure comes back in canonical name order regardless of input.
	if a.Dependencies[0].Name != "codec" || a.Dependencies[1].Name != "core" {
		t.Fatalf("closure not sorted: %v", a.Dependencies)
	}
}

func TestGenerateVersionChangesFingerprint(t *testing.T) {
	a, err := Generate(testManifest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	m := testManifest()
	m.Dependencies[1].Version = "1.5.0"
	m.Lockfile["core"] = "1.5.0"

	b, err := Generate(m)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if a.Fingerprint == b.Fingerprint {
		t.Fatal("version change did not change the fingerprint")
	}
}

func TestGenerateFeatureChangesFingerprint(t *testing.T) {
	a, err := Generate(testManifest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	m := testManifest()
	m.Dependencies[0].Features = append(m.Dependencies[0].Features, "zstd")

	b, err := Generate(m)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if a.Fingerprint == b.Fingerprint {
		t.Fatal("feature change did not change the fingerprint")
	}
}

func TestGenerateMissingLockfileEntry(t *testing.T) {
	m := testManifest()
	delete(m.Lockfile, "codec")

	if _, err := Generate(m); !errors.Is(err, ErrPlan) {
		t.Fatalf("err = %v, want ErrPlan", err)
	}
}

func TestGenerateLockfileVersionMismatch(t *testing.T) {
	m := testManifest()
	m.Lockfile["core"] = "1.0.0"

	if _, err := Generate(m); !errors.Is(err, ErrPlan) {
		t.Fatalf("err = %v, want ErrPlan", err)
	}
}

func TestGenerateWithoutLockfile(t *testing.T) {
	m := testManifest()
	m.Lockfile = nil

	if _, err := Generate(m); err != nil {
		t.Fatalf("Generate without lockfile: %v", err)
	}
}

func TestGenerateVersionConflict(t *testing.T) {
	m := testManifest()
	m.Dependencies = append(m.Dependencies, manifest.Dependency{Name: "core", Version: "2.0.0"})

	if _, err := Generate(m); !errors.Is(err, ErrPlan) {
		t.Fatalf("err = %v, want ErrPlan", err)
	}
}

func TestGenerateDuplicateSameVersion(t *testing.T) {
	m := testManifest()
	m.Dependencies = append(m.Dependencies, manifest.Dependency{Name: "core", Version: "1.4.2"})

	p, err := Generate(m)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(p.Dependencies) != 2 {
		t.Fatalf("duplicate not collapsed: %v", p.Dependencies)
	}
}
