package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/emberworks/kilnd/internal/assemble"
	"github.com/emberworks/kilnd/internal/cache"
	"github.com/emberworks/kilnd/internal/external"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/paths"
	"github.com/emberworks/kilnd/internal/pipeline"
	"github.com/emberworks/kilnd/internal/protocol"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Represents the 'kilnd build' command.
type BuildCmd struct {
	Root     string `arg:"" optional:"" default:"." help:"Project root directory."`
	Manifest string `short:"f" default:"kiln.yaml" help:"Manifest path relative to the root."`
	Output   string `short:"o" default:"dist" help:"Directory for the assembled image."`
	Remote   bool   `short:"r" help:"Send the build to a running daemon instead of building locally."`
}

// Executes the build command.
//
// By default the pipeline runs in-process with host toolchains. With
// --remote the request is sent to the daemon over its Unix socket, where
// builds may additionally run inside containerd sandboxes.
func (c *BuildCmd) Run(ctx context.Context) error {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return err
	}

	output, err := filepath.Abs(c.Output)
	if err != nil {
		return err
	}

	if c.Remote {
		return c.runRemote(root, output)
	}

	return c.runLocal(ctx, root, output)
}

// Runs the pipeline in-process.
//
// The primary and external branches get distinct toolchain instances so the
// two scopes share no state. The external work directory is keyed by project
// name so resolution records persist across runs and drift is visible.
func (c *BuildCmd) runLocal(ctx context.Context, root, output string) error {
	m, err := manifest.Load(filepath.Join(root, c.Manifest))
	if err != nil {
		return err
	}

	workDir := filepath.Join(paths.WorkRoot(), "builds", m.Project)
	if err := os.MkdirAll(workDir, paths.DefaultDirMode); err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Store:     cache.NewStore(paths.CacheStore()),
		Toolchain: &toolchain.Exec{},
		Integrator: &external.Integrator{
			Fetcher:   &toolchain.Git{},
			Toolchain: &toolchain.Exec{},
			WorkDir:   filepath.Join(paths.WorkRoot(), "external", m.Project),
		},
		Assembler: &assemble.Assembler{
			Installer: &toolchain.ExecInstaller{Command: m.Image.InstallCommand},
		},
	}

	result, err := p.Run(ctx, pipeline.Options{
		Manifest: m,
		Root:     root,
		Output:   output,
		WorkDir:  workDir,
	})
	if err != nil {
		return err
	}

	slog.Info("image published", "path", result.Image.Path, "digest", result.Image.Digest)
	fmt.Println(result.Image.Path)
	return nil
}

// Sends the build request to the daemon.
func (c *BuildCmd) runRemote(root, output string) error {
	payload, err := roundTrip(protocol.CmdBuild, &protocol.BuildRequest{
		Root:     root,
		Manifest: c.Manifest,
		Output:   output,
	})
	if err != nil {
		return err
	}

	result, err := protocol.DecodePayload[protocol.BuildResult](payload)
	if err != nil {
		return err
	}

	slog.Info("image published", "path", result.Output, "digest", result.Digest)
	fmt.Println(result.Output)
	return nil
}
