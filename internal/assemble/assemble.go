package assemble

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/emberworks/kilnd/internal/build"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/paths"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Filename of the OCI archive produced by Assemble.
const archiveFilename = "image.tar"

// Everything the assembler joins into a runtime image: the artifacts
// produced upstream, the image layout from the manifest, and any external
// source trees retained for runtime introspection.
type Inputs struct {
	Project    string                    // Project name, recorded in the image annotations.
	Image      manifest.Image            // Runtime image layout.
	Artifacts  map[string]build.Artifact // Produced artifacts by name.
	ContextDir string                    // Build context root for auxiliary file copies.
	Retained   []RetainedSource          // External source trees kept in the image.
}

// An external component's source tree retained inside the image.
type RetainedSource struct {
	Dest string // Absolute destination directory inside the image.
	Dir  string // Host directory holding the fetched tree.
}

// The assembled image.
type Result struct {
	Path   string        // Path of the OCI archive.
	Digest digest.Digest // Digest of the image manifest.
}

// Assembles runtime images from pipeline outputs.
//
// The assembler copies only named artifacts and explicitly declared
// auxiliary files into the image; the dependency cache, build sandboxes,
// and primary source tree never reach it.
type Assembler struct {
	Installer toolchain.Installer // Opaque system package installer.
}

// Constructs the runtime image and writes it as an OCI archive under output.
//
// A staging root is populated with every declared copy, runtime packages
// are installed into it, retained source trees are added, and the result
// is written as a single-layer OCI image carrying the exposed ports and
// the entrypoint. A referenced artifact or auxiliary file that is missing
// means an upstream stage produced an incomplete result, and assembly
// fails.
func (a *Assembler) Assemble(ctx context.Context, in Inputs, output string) (*Result, error) {
	if err := a.validate(in); err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp("", "kiln-staging-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
	}
	defer os.RemoveAll(staging)

	if err := a.stage(in, staging); err != nil {
		return nil, err
	}

	if err := a.Installer.Install(ctx, staging, in.Image.Packages); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	path := filepath.Join(output, archiveFilename)
	dgst, err := writeArchive(staging, in, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	slog.Info("image assembled", "path", path, "digest", dgst)

	return &Result{Path: path, Digest: dgst}, nil
}

// Checks the image layout before any staging work happens.
func (a *Assembler) validate(in Inputs) error {
	if in.Image.Entrypoint == "" {
		return fmt.Errorf("%w: image has no entrypoint", ErrAssembly)
	}

	found := false
	for _, c := range in.Image.Copies {
		if c.Dest == in.Image.Entrypoint {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: entrypoint %s does not match any copied path", ErrAssembly, in.Image.Entrypoint)
	}

	return nil
}

// Populates the staging root with artifact and auxiliary file copies, in
// declaration order, followed by retained source trees.
func (a *Assembler) stage(in Inputs, staging string) error {
	for _, c := range in.Image.Copies {
		src, err := a.resolveCopy(in, c)
		if err != nil {
			return err
		}

		dest := filepath.Join(staging, filepath.FromSlash(c.Dest))
		if err := copyPath(src, dest); err != nil {
			return fmt.Errorf("%w: copy %s: %w", ErrAssembly, c.Dest, err)
		}
	}

	for _, r := range in.Retained {
		dest := filepath.Join(staging, filepath.FromSlash(r.Dest))
		if err := copyPath(r.Dir, dest); err != nil {
			return fmt.Errorf("%w: retain source %s: %w", ErrAssembly, r.Dest, err)
		}
	}

	return nil
}

// Resolves a copy entry to its host source path.
func (a *Assembler) resolveCopy(in Inputs, c manifest.Copy) (string, error) {
	if c.Artifact != "" {
		art, ok := in.Artifacts[c.Artifact]
		if !ok {
			return "", fmt.Errorf("%w: unknown artifact %q", ErrAssembly, c.Artifact)
		}
		if _, err := os.Stat(art.Path); err != nil {
			return "", fmt.Errorf("%w: artifact %q missing from build context", ErrAssembly, c.Artifact)
		}
		return art.Path, nil
	}

	src := filepath.Join(in.ContextDir, filepath.FromSlash(c.Source))
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("%w: auxiliary file %q missing from build context", ErrAssembly, c.Source)
	}
	return src, nil
}

// Copies a file or directory tree from src to dest, creating parents.
func copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), paths.DefaultDirMode); err != nil {
		return err
	}

	if info.IsDir() {
		return copyTree(src, dest)
	}
	return copyFile(src, dest, info.Mode())
}

// Copies a directory tree.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, paths.DefaultDirMode)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

// Copies a single regular file.
func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
