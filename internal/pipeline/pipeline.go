package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emberworks/kilnd/internal/assemble"
	"github.com/emberworks/kilnd/internal/build"
	"github.com/emberworks/kilnd/internal/cache"
	"github.com/emberworks/kilnd/internal/external"
	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/plan"
	"github.com/emberworks/kilnd/internal/toolchain"
)

// Wires the five pipeline stages together.
//
// The primary toolchain and the integrator's toolchain are distinct
// instances: the two build scopes share no cache or state and converge
// only at assembly.
type Pipeline struct {
	Store      *cache.Store         // Shared dependency cache store.
	Toolchain  toolchain.Toolchain  // Primary build chain's compiler.
	Integrator *external.Integrator // Isolated external component sub-pipeline.
	Assembler  *assemble.Assembler  // Runtime image assembler.
}

// Controls one pipeline invocation.
type Options struct {
	Manifest *manifest.Manifest // Project manifest to build.
	Root     string             // Source root and build context, where the manifest lives.
	Output   string             // Directory for the assembled image.
	WorkDir  string             // Scratch directory for intermediate artifacts.
}

// Returned after a successful pipeline invocation.
type Result struct {
	Invocation string                // Invocation ID.
	Plan       *plan.BuildPlan       // Generated build plan.
	Primary    *build.Artifact       // Primary application artifact.
	Components []*external.Component // Integrated external components.
	Image      *assemble.Result      // Assembled runtime image.
}

// Runs the pipeline end-to-end.
//
// The primary chain (planning, dependency caching, application building)
// and the external component branch run concurrently; they share no inputs.
// Assembly is the single join point and starts only after both branches
// complete. Any stage failure is fatal: the error names the failing stage,
// no image is published, and nothing is retried. Cancellation before
// assembly also publishes nothing, though cache entries populated by the
// dependency stage remain for future reuse.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	invocation := uuid.NewString()[:8]
	m := opts.Manifest

	slog.Info("pipeline started",
		"invocation", invocation,
		"project", m.Project,
		"dependencies", len(m.Dependencies),
		"external", len(m.External),
	)

	var (
		primary    *build.Artifact
		components []*external.Component
		buildPlan  *plan.BuildPlan
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		buildPlan, primary, err = p.runPrimary(gctx, invocation, opts)
		return err
	})

	g.Go(func() error {
		var err error
		components, err = p.runExternal(gctx, invocation, m.External)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Both branches are done; refuse to publish if the invocation was
	// cancelled while they were finishing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.advance(invocation, StateApplicationBuilding, StateAssembling)

	image, err := p.Assembler.Assemble(ctx, assembleInputs(m, opts.Root, primary, components), opts.Output)
	if err != nil {
		return nil, p.fail(invocation, StateAssembling, err)
	}

	p.advance(invocation, StateAssembling, StateDone)
	slog.Info("pipeline done", "invocation", invocation, "image", image.Path)

	return &Result{
		Invocation: invocation,
		Plan:       buildPlan,
		Primary:    primary,
		Components: components,
		Image:      image,
	}, nil
}

// Runs the primary chain: planning, dependency caching, application
// building. Each stage strictly precedes the next.
func (p *Pipeline) runPrimary(ctx context.Context, invocation string, opts Options) (*plan.BuildPlan, *build.Artifact, error) {
	m := opts.Manifest

	buildPlan, err := plan.Generate(m)
	if err != nil {
		return nil, nil, p.fail(invocation, StatePlanning, err)
	}
	p.advance(invocation, StatePlanning, StateDependencyCaching)

	deps := &build.DependencyBuilder{Store: p.Store, Toolchain: p.Toolchain}
	entry, err := deps.Build(ctx, buildPlan, m.Build, opts.Root)
	if err != nil {
		return nil, nil, p.fail(invocation, StateDependencyCaching, err)
	}
	p.advance(invocation, StateDependencyCaching, StateApplicationBuilding)

	app := &build.ApplicationBuilder{Toolchain: p.Toolchain}
	output := filepath.Join(opts.WorkDir, "application")
	primary, err := app.Build(ctx, m.Project, entry, m.Build, opts.Root, output)
	if err != nil {
		return nil, nil, p.fail(invocation, StateApplicationBuilding, err)
	}

	return buildPlan, primary, nil
}

// Runs the external branch: every declared component is fetched and built
// through the isolated integrator.
func (p *Pipeline) runExternal(ctx context.Context, invocation string, specs []manifest.ExternalComponent) ([]*external.Component, error) {
	components := make([]*external.Component, 0, len(specs))

	for _, spec := range specs {
		component, err := p.Integrator.Integrate(ctx, spec)
		if err != nil {
			return nil, p.fail(invocation, StateExternalIntegrating, err)
		}
		components = append(components, component)
	}

	return components, nil
}

// Records a forward state transition.
func (p *Pipeline) advance(invocation string, from, to State) {
	if !ValidTransition(from, to) {
		slog.Warn("invalid pipeline transition", "invocation", invocation, "from", from, "to", to)
		return
	}
	slog.Debug("pipeline state", "invocation", invocation, "from", from, "to", to)
}

// Records a stage failure and wraps the error with the failing stage.
func (p *Pipeline) fail(invocation string, stage State, err error) error {
	slog.Error("pipeline stage failed", "invocation", invocation, "stage", stage, "error", err)
	return &Failure{Stage: stage, Err: err}
}

// Collects the assembler inputs from both branches.
func assembleInputs(m *manifest.Manifest, root string, primary *build.Artifact, components []*external.Component) assemble.Inputs {
	artifacts := map[string]build.Artifact{
		primary.Name: *primary,
	}

	var retained []assemble.RetainedSource

	for _, component := range components {
		artifacts[component.Artifact.Name] = component.Artifact
	}

	for _, spec := range m.External {
		if spec.RetainSource == "" {
			continue
		}
		for _, component := range components {
			if component.Artifact.Name == spec.Name {
				retained = append(retained, assemble.RetainedSource{
					Dest: spec.RetainSource,
					Dir:  component.SourceDir,
				})
			}
		}
	}

	return assemble.Inputs{
		Project:    m.Project,
		Image:      m.Image,
		Artifacts:  artifacts,
		ContextDir: root,
		Retained:   retained,
	}
}
