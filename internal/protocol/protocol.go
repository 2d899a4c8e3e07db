package protocol

import (
	"encoding/json"
	"fmt"
)

// A daemon command name.
type Command string

const (
	CmdBuild    Command = "build"    // Run the pipeline for a manifest.
	CmdStatus   Command = "status"   // Query daemon status.
	CmdShutdown Command = "shutdown" // Stop the daemon.
	CmdOK       Command = "ok"       // Success response.
	CmdError    Command = "error"    // Failure response.
)

// The wire envelope. Every request and response is one newline-delimited
// JSON envelope carrying a command and an optional payload.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Asks the daemon to run the pipeline for a project.
type BuildRequest struct {
	Root     string `json:"root"`     // Source root and build context.
	Manifest string `json:"manifest"` // Manifest path relative to the root. Empty uses the default filename.
	Output   string `json:"output"`   // Directory for the assembled image.
}

// Reports a completed build.
type BuildResult struct {
	Output string `json:"output"` // Path of the assembled image archive.
	Digest string `json:"digest"` // Image manifest digest.
}

// Reports daemon status.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`
}

// Carries an error message back to the client.
type ErrorResult struct {
	Message string `json:"message"`
}

// Encodes a command and payload into envelope bytes.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		env.Payload = data
	}

	return json.Marshal(env)
}

// Decodes envelope bytes, returning the envelope and its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, env.Payload, nil
}

// Decodes a raw payload into a concrete request or result type.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
