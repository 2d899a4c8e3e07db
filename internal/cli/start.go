package cli

import (
	"context"
	"log/slog"

	"github.com/emberworks/kilnd/internal/server"
)

// Represents the 'kilnd start' command.
type StartCmd struct {
	Containerd string `help:"Containerd socket address for sandboxed builds." placeholder:"PATH"`
	Namespace  string `help:"Containerd namespace." default:"kilnd"`
	BuildImage string `help:"OCI archive of the build sandbox image." placeholder:"PATH"`
}

// Executes the start command.
//
// Starts the server on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a shutdown command arrives.
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath:          RootCmd.Socket,
		ContainerdAddress:   c.Containerd,
		ContainerdNamespace: c.Namespace,
		BuildImage:          c.BuildImage,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("kilnd is running")

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return srv.Stop()
	case <-done:
		slog.Info("stopped by shutdown command")
		return nil
	}
}
