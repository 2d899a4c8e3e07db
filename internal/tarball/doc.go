// Package tarball provides tar stream helpers shared by the sandbox
// toolchain (copying source trees in and artifacts out of build sandboxes)
// and the image assembler (writing image layers).
package tarball
