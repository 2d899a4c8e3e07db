// The daemon server.
//
// Listens on a Unix domain socket and processes newline-delimited JSON
// commands from the CLI. Each build request runs a full pipeline with its
// own toolchain instances and scratch space; only the dependency cache
// store is shared between builds. Socket access is restricted to the
// daemon owner and members of the kilnd group.
package server
