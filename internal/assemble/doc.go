// Package assemble constructs the final runtime image from pipeline
// outputs.
//
// The assembler is the pipeline's single join point: it receives the
// primary artifact and the external component artifacts, places them (and
// explicitly declared auxiliary files) into a staging root, installs the
// runtime-only system packages, and writes the result as a single-layer
// OCI image archive declaring the exposed ports and exactly one
// entrypoint.
//
// Nothing build-related enters the image: no toolchain, no build-time
// packages, no dependency cache, and no primary source code. Only external
// source trees explicitly marked for retention are included.
package assemble
