package server

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/emberworks/kilnd/internal"
	"github.com/emberworks/kilnd/internal/assemble"
	"github.com/emberworks/kilnd/internal/external"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/paths"
	"github.com/emberworks/kilnd/internal/pipeline"
	"github.com/emberworks/kilnd/internal/protocol"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Handles the build command.
//
// Each request gets its own pipeline: toolchain instances and scratch space
// are never shared between builds, only the dependency cache store is. The
// external component work directory is keyed by project name rather than
// invocation so resolution records persist across runs and drift between
// runs is visible.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	manifestPath := req.Manifest
	if manifestPath == "" {
		manifestPath = manifest.DefaultFilename
	}

	m, err := manifest.Load(filepath.Join(req.Root, manifestPath))
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	workDir := filepath.Join(s.workRoot, "builds", m.Project)
	if err := os.MkdirAll(workDir, paths.DefaultDirMode); err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	p := s.pipeline(m, req.Root)

	result, err := p.Run(ctx, pipeline.Options{
		Manifest: m,
		Root:     req.Root,
		Output:   req.Output,
		WorkDir:  workDir,
	})
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{
		Output: result.Image.Path,
		Digest: result.Image.Digest.String(),
	})
}

// Constructs a pipeline for one build request.
//
// The primary and external branches get distinct toolchain instances so the
// two scopes share no state. With a sandbox runtime configured, build and
// install commands run in containers; the base archive path in the manifest
// is resolved relative to the project root.
func (s *Server) pipeline(m *manifest.Manifest, root string) *pipeline.Pipeline {
	var (
		primary   toolchain.Toolchain
		secondary toolchain.Toolchain
		installer toolchain.Installer
	)

	if s.runtime != nil {
		primary = toolchain.NewSandboxed(s.runtime, s.buildImage, m.Project+"-primary")
		secondary = toolchain.NewSandboxed(s.runtime, s.buildImage, m.Project+"-external")
		installer = toolchain.NewSandboxInstaller(
			s.runtime,
			filepath.Join(root, m.Image.Base),
			m.Project+"-install",
			m.Image.InstallCommand,
		)
	} else {
		primary = &toolchain.Exec{}
		secondary = &toolchain.Exec{}
		installer = &toolchain.ExecInstaller{Command: m.Image.InstallCommand}
	}

	return &pipeline.Pipeline{
		Store:     s.store,
		Toolchain: primary,
		Integrator: &external.Integrator{
			Fetcher:   &toolchain.Git{},
			Toolchain: secondary,
			WorkDir:   filepath.Join(s.workRoot, "external", m.Project),
		},
		Assembler: &assemble.Assembler{Installer: installer},
	}
}

// Handles the status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
		Builds:  builds,
	})
}

// Handles the shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.Stop()
	}()
}
