package server

import "errors"

var (
	// Parent error for all server failures.
	ErrServer = errors.New("server error")
)
