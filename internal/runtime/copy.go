package runtime

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// Creates a directory inside the sandbox, including parents.
func (s *Sandbox) MkdirAll(ctx context.Context, path string) error {
	return s.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", path)
}

// Copies a tar stream into the sandbox's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf -
// -C destDir" inside the sandbox.
func (s *Sandbox) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return s.mustExec(ctx, "tar extract", r, nil, "tar", "xf", "-", "-C", destDir)
}

// Copies a path from the sandbox's filesystem as a tar stream.
//
// The file or directory at path is archived by running "tar cf - -C <dir>
// <base>" inside the sandbox and streaming the output to w.
func (s *Sandbox) CopyFrom(ctx context.Context, w io.Writer, path string) error {
	return s.mustExec(ctx, "tar archive", nil, w, "tar", "cf", "-", "-C", filepath.Dir(path), filepath.Base(path))
}

// Streams the contents of a directory inside the sandbox as a tar archive
// rooted at that directory.
//
// Unlike CopyFrom, the directory itself is not included as a prefix, which
// makes the stream suitable for extraction into a staging root.
func (s *Sandbox) CopyDirContents(ctx context.Context, w io.Writer, dir string) error {
	return s.mustExec(ctx, "tar archive", nil, w, "tar", "cf", "-", "-C", dir, ".")
}

// Helper method that runs a command inside the sandbox, returning an error
// that includes desc if the process exits with a non-zero code.
func (s *Sandbox) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	exitCode, stderr, err := s.execCommand(ctx, stdin, stdout, nil, "", args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s failed with exit code %d (%s)", ErrRuntime, desc, exitCode, stderr)
	}
	return nil
}
