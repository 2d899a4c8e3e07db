package cli

import (
	"context"
	"fmt"

	"github.com/emberworks/kilnd/internal/protocol"
)

// Represents the 'kilnd stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context) error {
	if _, err := roundTrip(protocol.CmdShutdown, nil); err != nil {
		return err
	}

	fmt.Println("daemon stopping")
	return nil
}
