// Package pipeline orchestrates a build invocation end-to-end.
//
// An invocation moves through planning, dependency caching, and
// application building in strict order, while the external component
// branch runs concurrently with no shared inputs. The two streams
// converge at image assembly, the pipeline's single join point. The state
// machine is a strict forward DAG: any stage failure moves the invocation
// to failed, nothing downstream runs, and no image is published.
//
// Example usage:
//
//	p := &pipeline.Pipeline{
//	    Store:      cache.NewStore(paths.CacheStore()),
//	    Toolchain:  &toolchain.Exec{},
//	    Integrator: &external.Integrator{Fetcher: &toolchain.Git{}, Toolchain: &toolchain.Exec{}, WorkDir: work},
//	    Assembler:  &assemble.Assembler{Installer: installer},
//	}
//
//	result, err := p.Run(ctx, pipeline.Options{
//	    Manifest: m,
//	    Root:     ".",
//	    Output:   "dist",
//	    WorkDir:  work,
//	})
package pipeline
