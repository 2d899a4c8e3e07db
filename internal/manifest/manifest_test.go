package manifest

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "kiln.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if m.Project != "embernode" {
		t.Fatalf("project = %q, want embernode", m.Project)
	}

	if len(m.Dependencies) != 2 {
		t.Fatalf("len(dependencies) = %d, want 2", len(m.Dependencies))
	}
	dep := m.Dependencies[0]
	if dep.Name != "consensus-core" || dep.Version != "1.4.2" {
		t.Fatalf("dependency[0] = %+v", dep)
	}
	if len(dep.Features) != 2 || dep.Features[0] != "metrics" {
		t.Fatalf("dependency[0].Features = %v", dep.Features)
	}

	if m.Lockfile["wire-codec"] != "0.9.1" {
		t.Fatalf("lockfile[wire-codec] = %q", m.Lockfile["wire-codec"])
	}

	if m.Build.Profile != "release" || m.Build.Artifact != "bin/embernode" {
		t.Fatalf("build = %+v", m.Build)
	}

	if len(m.External) != 1 {
		t.Fatalf("len(external) = %d, want 1", len(m.External))
	}
	ext := m.External[0]
	if ext.Ref != "main" || ext.RetainSource != "/opt/sidecar" {
		t.Fatalf("external[0] = %+v", ext)
	}

	if len(m.Image.Copies) != 3 {
		t.Fatalf("len(copies) = %d, want 3", len(m.Image.Copies))
	}
	if m.Image.Copies[2].Source != "config/genesis.json" {
		t.Fatalf("copies[2] = %+v", m.Image.Copies[2])
	}

	if len(m.Image.Ports) != 5 {
		t.Fatalf("len(ports) = %d, want 5", len(m.Image.Ports))
	}
	if got := m.Image.Ports[1].String(); got != "30303/udp" {
		t.Fatalf("ports[1] = %q, want 30303/udp", got)
	}

	if m.Image.Entrypoint != "/usr/local/bin/embernode" {
		t.Fatalf("entrypoint = %q", m.Image.Entrypoint)
	}
	if len(m.Image.Args) != 2 {
		t.Fatalf("args = %v", m.Image.Args)
	}
}

func TestParsePort(t *testing.T) {
	p, err := ParsePort("30303/udp")
	if err != nil {
		t.Fatalf("ParsePort: %v", err)
	}
	if p.Number != 30303 || p.Protocol != "udp" {
		t.Fatalf("port = %+v", p)
	}

	p, err = ParsePort("8545")
	if err != nil {
		t.Fatalf("ParsePort: %v", err)
	}
	if p.Protocol != "tcp" {
		t.Fatalf("default protocol = %q, want tcp", p.Protocol)
	}

	for _, bad := range []string{"", "abc", "0/tcp", "70000/tcp", "80/icmp"} {
		if _, err := ParsePort(bad); err == nil {
			t.Fatalf("ParsePort(%q) succeeded, want error", bad)
		}
	}
}

func TestParseRejectsMissingProject(t *testing.T) {
	_, err := Parse([]byte("dependencies: []\n"))
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}

func TestParseRejectsUnversionedDependency(t *testing.T) {
	_, err := Parse([]byte(`
project: demo
dependencies:
  - name: thing
`))
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}

func TestParseRejectsAmbiguousCopy(t *testing.T) {
	_, err := Parse([]byte(`
project: demo
image:
  entrypoint: /bin/demo
  copy:
    - artifact: demo
      source: demo.txt
      dest: /bin/demo
`))
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}

func TestParseRejectsCopiesWithoutEntrypoint(t *testing.T) {
	_, err := Parse([]byte(`
project: demo
image:
  copy:
    - artifact: demo
      dest: /bin/demo
`))
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}

func TestParseRejectsExternalWithoutRef(t *testing.T) {
	_, err := Parse([]byte(`
project: demo
external:
  - name: sidecar
    repository: https://example.com/sidecar.git
    artifact: bin/sidecar
`))
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}
