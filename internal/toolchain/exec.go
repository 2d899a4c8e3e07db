package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/emberworks/kilnd/internal/paths"
)

// Default shell used to run opaque commands.
const defaultShell = "/bin/sh"

// Runs build commands directly on the host.
//
// Suitable for trusted local builds and tests; daemon builds normally use
// the sandboxed toolchain instead.
type Exec struct {
	Shell string // Shell to run commands with. Empty uses /bin/sh.
}

// Runs the unit's command via "shell -c" in the request directory.
//
// The request fields are exported to the command through KILN_* environment
// variables, so a manifest command can reference the profile, flags, and
// output directory without the pipeline interpreting any of them.
func (t *Exec) Build(ctx context.Context, req BuildRequest) error {
	if req.Command == "" {
		return fmt.Errorf("unit %q has no build command", req.Name)
	}

	if req.Output != "" {
		if err := os.MkdirAll(req.Output, paths.DefaultDirMode); err != nil {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, t.shell(), "-c", req.Command)
	cmd.Dir = req.Dir
	cmd.Env = buildEnv(req)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("unit %q: %w (%s)", req.Name, err, tail(stderr.String()))
	}

	return nil
}

// Returns the configured shell or the default.
func (t *Exec) shell() string {
	if t.Shell != "" {
		return t.Shell
	}
	return defaultShell
}

// Builds the process environment for a unit command: the host environment
// plus the KILN_* request variables.
func buildEnv(req BuildRequest) []string {
	return append(os.Environ(), kilnEnv(req)...)
}

// Returns the KILN_* variables describing a unit request, plus any extra
// environment the request carries.
func kilnEnv(req BuildRequest) []string {
	env := []string{
		"KILN_NAME=" + req.Name,
		"KILN_PROFILE=" + req.Profile,
		"KILN_FEATURES=" + strings.Join(req.Features, ","),
		"KILN_FLAGS=" + req.Flags,
		"KILN_OUTPUT=" + req.Output,
	}
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Returns the last few lines of command output for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "; ")
}

// Fetches source trees by shelling out to git.
type Git struct {
	Path string // Path to the git binary. Empty uses "git" from PATH.
}

// Clones the repository and checks out the pinned reference.
//
// The reference may be a branch, tag, or revision. After checkout the HEAD
// revision is resolved and recorded along with the resolution time, so a
// mutable reference that moved since the last run is auditable from the
// build metadata.
func (g *Git) Fetch(ctx context.Context, repository, ref, dest string) (*Resolution, error) {
	if err := os.MkdirAll(dest, paths.DefaultDirMode); err != nil {
		return nil, err
	}

	if _, err := g.run(ctx, "", "clone", "--quiet", repository, dest); err != nil {
		return nil, fmt.Errorf("clone %s: %w", repository, err)
	}

	if _, err := g.run(ctx, dest, "checkout", "--quiet", ref); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", ref, err)
	}

	revision, err := g.run(ctx, dest, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}

	return &Resolution{
		Revision:   strings.TrimSpace(revision),
		ResolvedAt: time.Now().UTC(),
	}, nil
}

// Runs a git subcommand and returns its stdout.
func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	git := g.Path
	if git == "" {
		git = "git"
	}

	cmd := exec.CommandContext(ctx, git, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (%s)", args[0], err, tail(stderr.String()))
	}

	return stdout.String(), nil
}

// Installs packages by running an opaque install command on the host.
//
// The staging root and package list are exported through KILN_ROOT and
// KILN_PACKAGES; the command decides what installation means.
type ExecInstaller struct {
	Command string // Install command, run via "shell -c".
	Shell   string // Shell to run the command with. Empty uses /bin/sh.
}

// Runs the install command for the given packages. A nil or empty package
// list is a no-op.
func (i *ExecInstaller) Install(ctx context.Context, root string, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	if i.Command == "" {
		return fmt.Errorf("runtime packages declared but no install command configured")
	}

	shell := i.Shell
	if shell == "" {
		shell = defaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", i.Command)
	cmd.Env = append(os.Environ(),
		"KILN_ROOT="+root,
		"KILN_PACKAGES="+strings.Join(packages, " "),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("install packages: %w (%s)", err, tail(stderr.String()))
	}

	return nil
}
