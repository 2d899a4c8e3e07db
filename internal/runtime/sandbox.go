package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// An isolated build sandbox backed by a containerd container.
//
// Pipeline stages run their opaque build and install commands inside a
// sandbox so that the toolchain never touches the host and the two build
// scopes (primary and external) cannot perturb each other.
type Sandbox struct {
	client   *containerd.Client // Containerd client for managing the sandbox.
	id       string             // Unique identifier, used as the containerd container ID.
	platform string             // OCI platform (e.g., "linux/amd64").
}

// Returns the sandbox identifier.
func (s *Sandbox) ID() string {
	return s.id
}

// Stops the sandbox's task.
//
// The running task is killed and deleted. The container metadata is
// preserved. Calling Stop on an already-stopped sandbox is not an error.
func (s *Sandbox) Stop(ctx context.Context) error {
	ctr, err := s.client.LoadContainer(ctx, s.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task.Kill(ctx, syscall.SIGKILL)
	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return nil
}

// Removes the sandbox and its resources.
//
// The task is killed and the container is removed from containerd along
// with its snapshot. After destruction the handle is invalid.
func (s *Sandbox) Destroy(ctx context.Context) {
	ctr, err := s.client.LoadContainer(ctx, s.id)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Warn("failed to load sandbox for destruction", "id", s.id, "error", err)
		}
		return
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to delete sandbox during destruction", "id", s.id, "error", err)
	}
}

// Creates the containerd container with the standard sandbox configuration.
func (s *Sandbox) create(ctx context.Context, image containerd.Image) (containerd.Container, error) {
	return s.client.NewContainer(ctx, s.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(s.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(s.platform),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

// Starts the sandbox's long-running task with no attached IO.
func (s *Sandbox) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Removes an existing sandbox with this ID, if one exists.
//
// Any running task is killed and the container is deleted along with its
// snapshot. This is a no-op when no container with the ID is found.
func (s *Sandbox) remove(ctx context.Context) {
	existing, err := s.client.LoadContainer(ctx, s.id)
	if err != nil {
		return
	}
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	existing.Delete(ctx, containerd.WithSnapshotCleanup)
}
