// Provides platform-appropriate paths for the daemon.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. The daemon name "kilnd" is used as the subdirectory
// under each base path. The cache store path is stable across invocations
// because dependency cache entries are shared between builds.
package paths
