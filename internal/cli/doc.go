// Parses flags and configures logging for the kilnd CLI.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path.
//
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level before the
// subcommand runs. build and plan operate on a project directory; status
// and stop talk to a running daemon over its socket.
package cli
