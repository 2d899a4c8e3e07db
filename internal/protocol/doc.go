// Package protocol defines the JSON wire format between the kiln CLI and
// the kilnd daemon.
//
// Each exchange is a single newline-delimited JSON envelope over the Unix
// domain socket: the client sends a command with its payload, the daemon
// responds with ok or error and a result payload.
package protocol
