// Package runtime manages build sandboxes backed by containerd.
//
// A [Runtime] connects to a containerd daemon and provides image import and
// sandbox creation. Build-image OCI archives are imported, tagged with a
// deterministic content hash, unpacked for the target platform, and used to
// create sandboxes with overlayfs snapshots.
//
// Each [Sandbox] wraps a running containerd task. The pipeline's opaque
// build and install commands execute inside a sandbox, and files are copied
// in and out as tar streams. When a sandbox is no longer needed it should
// be destroyed to release its snapshot and task resources.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "kilnd")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	sb, err := rt.StartSandbox(ctx, "builder.tar", "build-1", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer sb.Destroy(ctx)
//
//	result, err := sb.Exec(ctx, "/bin/sh", "make release", nil, "/work")
//	if err != nil {
//	    return err
//	}
package runtime
