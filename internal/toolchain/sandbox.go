package toolchain

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emberworks/kilnd/internal/paths"
	"github.com/emberworks/kilnd/internal/runtime"
	"github.com/emberworks/kilnd/internal/tarball"
)

const (

	// Directory the unit's source tree is copied to inside a sandbox.
	sandboxSrc = "/kiln/src"

	// Directory the unit's artifacts are collected from inside a sandbox.
	sandboxOut = "/kiln/out"

	// Directory a staging root is mounted at for sandboxed installs.
	sandboxRoot = "/kiln/rootfs"
)

// Runs build commands inside containerd-backed sandboxes.
//
// Each unit gets a fresh sandbox created from the build image archive, so
// build state never leaks between units or onto the host. The primary and
// external pipelines use separate instances with distinct ID prefixes,
// keeping their toolchain scopes fully isolated.
type Sandboxed struct {
	rt       *runtime.Runtime
	archive  string // OCI archive of the build image.
	platform string // Target OCI platform. Empty uses the host platform.
	prefix   string // Sandbox ID prefix, typically the invocation ID.
	Shell    string // Shell for commands inside the sandbox. Empty uses /bin/sh.
}

// Creates a sandboxed toolchain building from the given build image archive.
func NewSandboxed(rt *runtime.Runtime, archive, prefix string) *Sandboxed {
	return &Sandboxed{
		rt:      rt,
		archive: archive,
		prefix:  prefix,
	}
}

// Compiles a unit inside a fresh sandbox.
//
// The unit's source directory is streamed into the sandbox, the command
// runs with the KILN_* environment pointing at the in-sandbox paths, and
// whatever the command wrote to the output directory is streamed back out
// to the request's output directory on the host.
func (t *Sandboxed) Build(ctx context.Context, req BuildRequest) error {
	if req.Command == "" {
		return fmt.Errorf("unit %q has no build command", req.Name)
	}

	sb, err := t.rt.StartSandbox(ctx, t.archive, t.sandboxID(req.Name), t.platform)
	if err != nil {
		return err
	}
	defer sb.Destroy(ctx)

	for _, dir := range []string{sandboxSrc, sandboxOut} {
		if err := sb.MkdirAll(ctx, dir); err != nil {
			return err
		}
	}

	if err := copyDirIn(ctx, sb, req.Dir, sandboxSrc); err != nil {
		return fmt.Errorf("unit %q: stage source: %w", req.Name, err)
	}

	inSandbox := req
	inSandbox.Output = sandboxOut
	env := kilnEnv(inSandbox)

	result, err := sb.Exec(ctx, t.shell(), req.Command, env, sandboxSrc)
	if err != nil {
		return fmt.Errorf("unit %q: %w", req.Name, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("unit %q: exit code %d (%s)", req.Name, result.ExitCode, tail(result.Stderr))
	}

	if req.Output == "" {
		return nil
	}
	if err := os.MkdirAll(req.Output, paths.DefaultDirMode); err != nil {
		return err
	}
	return copyDirOut(ctx, sb, sandboxOut, req.Output)
}

// Returns the configured shell or the default.
func (t *Sandboxed) shell() string {
	if t.Shell != "" {
		return t.Shell
	}
	return defaultShell
}

// Returns a sandbox ID for a unit, scoped to this toolchain's prefix.
func (t *Sandboxed) sandboxID(name string) string {
	return fmt.Sprintf("%s-%s", t.prefix, sanitizeID(name))
}

// Installs runtime packages into a staging root using the base image's own
// package tooling.
//
// The staging root is copied into a sandbox created from the base image
// archive, the install command runs against it, and the modified root is
// copied back out. The sandbox (and with it the package manager and any
// downloaded package state) is destroyed afterwards; only the staging root
// contents reach the assembled image.
type SandboxInstaller struct {
	rt      *runtime.Runtime
	archive string // OCI archive of the base image.
	prefix  string // Sandbox ID prefix.
	Command string // Install command, run via the shell with KILN_* set.
	Shell   string // Shell for the command. Empty uses /bin/sh.
}

// Creates a sandboxed installer backed by the given base image archive.
func NewSandboxInstaller(rt *runtime.Runtime, archive, prefix, command string) *SandboxInstaller {
	return &SandboxInstaller{
		rt:      rt,
		archive: archive,
		prefix:  prefix,
		Command: command,
	}
}

// Installs the packages into root. A nil or empty package list is a no-op.
func (i *SandboxInstaller) Install(ctx context.Context, root string, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	if i.Command == "" {
		return fmt.Errorf("runtime packages declared but no install command configured")
	}

	sb, err := i.rt.StartSandbox(ctx, i.archive, i.prefix+"-install", "")
	if err != nil {
		return err
	}
	defer sb.Destroy(ctx)

	if err := sb.MkdirAll(ctx, sandboxRoot); err != nil {
		return err
	}
	if err := copyDirIn(ctx, sb, root, sandboxRoot); err != nil {
		return fmt.Errorf("stage root: %w", err)
	}

	shell := i.Shell
	if shell == "" {
		shell = defaultShell
	}

	env := []string{
		"KILN_ROOT=" + sandboxRoot,
		"KILN_PACKAGES=" + strings.Join(packages, " "),
	}

	result, err := sb.Exec(ctx, shell, i.Command, env, "")
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("install packages: exit code %d (%s)", result.ExitCode, tail(result.Stderr))
	}

	return copyDirOut(ctx, sb, sandboxRoot, root)
}

// Streams a host directory into a sandbox directory as a tar archive.
func copyDirIn(ctx context.Context, sb *runtime.Sandbox, hostDir, destDir string) error {
	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		err := tarball.WriteDir(tw, hostDir, "")
		tw.Close()
		pw.CloseWithError(err)
	}()

	return sb.CopyTo(ctx, pr, destDir)
}

// Streams a sandbox directory's contents out into a host directory.
func copyDirOut(ctx context.Context, sb *runtime.Sandbox, srcDir, hostDir string) error {
	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- sb.CopyDirContents(ctx, pw, srcDir)
		pw.Close()
	}()

	if err := tarball.Extract(pr, hostDir); err != nil {
		return err
	}

	return <-errc
}

// Converts a unit name into a containerd-safe identifier.
func sanitizeID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
