package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/emberworks/kilnd/internal/paths"
	"github.com/emberworks/kilnd/internal/protocol"
)

// Parent error for failures talking to the daemon.
var ErrClient = errors.New("client error")

// Sends one command to the daemon and returns the response payload.
//
// One connection per exchange: dial, write a newline-delimited envelope,
// read the newline-delimited response, close. An error response from the
// daemon is surfaced as an error carrying its message.
func roundTrip(cmd protocol.Command, payload any) (json.RawMessage, error) {
	socketPath := RootCmd.Socket
	if socketPath == "" {
		socketPath = paths.Socket()
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: daemon not reachable at %s", ErrClient, socketPath)
	}
	defer conn.Close()

	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClient, err)
	}
	data = append(data, byte(10))

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClient, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes(byte(10))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClient, err)
	}

	env, respPayload, err := protocol.Decode(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClient, err)
	}

	if env.Command == protocol.CmdError {
		result, err := protocol.DecodePayload[protocol.ErrorResult](respPayload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrClient, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrClient, result.Message)
	}

	return respPayload, nil
}
