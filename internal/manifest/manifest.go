package manifest

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default filename of a project manifest.
const DefaultFilename = "kiln.yaml"

// Describes a project build end-to-end: the dependency closure, the build
// configuration, any external components, and the runtime image layout.
type Manifest struct {
	Project      string              `yaml:"project"`      // Project name, used for artifact and sandbox naming.
	Dependencies []Dependency        `yaml:"dependencies"` // Declared dependency closure.
	Lockfile     map[string]string   `yaml:"lockfile"`     // Resolved versions keyed by dependency name.
	Build        BuildConfig         `yaml:"build"`        // Primary build configuration.
	External     []ExternalComponent `yaml:"external"`     // Independently versioned external components.
	Image        Image               `yaml:"image"`        // Runtime image layout.
}

// A single declared dependency.
type Dependency struct {
	Name     string   `yaml:"name"`     // Dependency name, unique within the manifest.
	Version  string   `yaml:"version"`  // Declared version.
	Source   string   `yaml:"source"`   // Where the dependency is fetched from. Opaque to the pipeline.
	Features []string `yaml:"features"` // Feature flags enabled for this dependency.
}

// Build configuration for the primary project.
type BuildConfig struct {
	Profile           string   `yaml:"profile"`            // Build profile (e.g., "release", "debug").
	Features          []string `yaml:"features"`           // Project-level feature flags.
	Flags             string   `yaml:"flags"`              // Extra compiler flags, passed through verbatim.
	Command           string   `yaml:"command"`            // Command that compiles the application. Opaque to the pipeline.
	DependencyCommand string   `yaml:"dependency_command"` // Command that compiles a single dependency. Opaque to the pipeline.
	Artifact          string   `yaml:"artifact"`           // Path the command writes the binary to, relative to its output directory.
}

// An independently versioned component fetched and built outside the primary
// build's cache scope.
type ExternalComponent struct {
	Name         string `yaml:"name"`          // Component name, used for artifact naming.
	Repository   string `yaml:"repository"`    // Source repository location.
	Ref          string `yaml:"ref"`           // Pinned branch or revision.
	Command      string `yaml:"command"`       // Command that builds the component. Opaque to the pipeline.
	Artifact     string `yaml:"artifact"`      // Path the command writes the binary to, relative to its output directory.
	RetainSource string `yaml:"retain_source"` // Image path under which the fetched tree is retained, empty to drop it.
}

// Runtime image layout: base, runtime-only packages, artifact placement,
// exposed endpoints, and the process entrypoint.
type Image struct {
	Base           string   `yaml:"base"`            // Base image reference.
	Packages       []string `yaml:"packages"`        // Runtime system packages. Build-only packages never appear here.
	InstallCommand string   `yaml:"install_command"` // Command that installs the runtime packages. Opaque to the pipeline.
	Copies         []Copy   `yaml:"copy"`            // Ordered artifact and auxiliary file placements.
	Ports          []Port   `yaml:"ports"`           // Exposed network endpoints.
	Entrypoint     string   `yaml:"entrypoint"`      // Image path of the artifact to run.
	Args           []string `yaml:"args"`            // Entrypoint invocation arguments.
}

// Places a produced artifact or an auxiliary file from the build context
// into the image. Exactly one of Artifact or Source is set.
type Copy struct {
	Artifact string `yaml:"artifact"` // Name of a pipeline-produced artifact.
	Source   string `yaml:"source"`   // Path of an auxiliary file, relative to the build context.
	Dest     string `yaml:"dest"`     // Absolute destination path inside the image.
}

// An exposed network endpoint.
type Port struct {
	Number   int    // Port number.
	Protocol string // "tcp" or "udp".
}

// Parses a port from its manifest form, e.g. "30303/udp". The protocol
// defaults to tcp when omitted.
func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	port, err := ParsePort(s)
	if err != nil {
		return err
	}

	*p = port
	return nil
}

// Formats the port in its manifest form.
func (p Port) String() string {
	return fmt.Sprintf("%d/%s", p.Number, p.Protocol)
}

// Parses a "number/protocol" port declaration.
func ParsePort(s string) (Port, error) {
	numStr, proto, found := strings.Cut(s, "/")
	if !found {
		proto = "tcp"
	}

	num, err := strconv.Atoi(strings.TrimSpace(numStr))
	if err != nil || num < 1 || num > 65535 {
		return Port{}, fmt.Errorf("%w: invalid port %q", ErrManifest, s)
	}

	proto = strings.ToLower(strings.TrimSpace(proto))
	if proto != "tcp" && proto != "udp" {
		return Port{}, fmt.Errorf("%w: invalid protocol in %q", ErrManifest, s)
	}

	return Port{Number: num, Protocol: proto}, nil
}

// Reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return Parse(data)
}

// Parses and validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Checks structural constraints that do not depend on lockfile resolution.
// Lockfile consistency is checked by the planner, which owns plan errors.
func (m *Manifest) validate() error {
	if m.Project == "" {
		return fmt.Errorf("%w: project name is required", ErrManifest)
	}

	for i, dep := range m.Dependencies {
		if dep.Name == "" {
			return fmt.Errorf("%w: dependency %d has no name", ErrManifest, i+1)
		}
		if dep.Version == "" {
			return fmt.Errorf("%w: dependency %q has no version", ErrManifest, dep.Name)
		}
	}

	for i, ext := range m.External {
		if ext.Name == "" {
			return fmt.Errorf("%w: external component %d has no name", ErrManifest, i+1)
		}
		if ext.Repository == "" || ext.Ref == "" {
			return fmt.Errorf("%w: external component %q needs repository and ref", ErrManifest, ext.Name)
		}
		if ext.Artifact == "" {
			return fmt.Errorf("%w: external component %q has no artifact path", ErrManifest, ext.Name)
		}
	}

	for i, c := range m.Image.Copies {
		if (c.Artifact == "") == (c.Source == "") {
			return fmt.Errorf("%w: copy %d must set exactly one of artifact or source", ErrManifest, i+1)
		}
		if c.Dest == "" {
			return fmt.Errorf("%w: copy %d has no destination", ErrManifest, i+1)
		}
	}

	if m.Image.Entrypoint == "" && len(m.Image.Copies) > 0 {
		return fmt.Errorf("%w: image declares copies but no entrypoint", ErrManifest)
	}

	return nil
}
