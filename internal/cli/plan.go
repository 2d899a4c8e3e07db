package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/plan"
)

// Represents the 'kilnd plan' command.
type PlanCmd struct {
	Root     string `arg:"" optional:"" default:"." help:"Project root directory."`
	Manifest string `short:"f" default:"kiln.yaml" help:"Manifest path relative to the root."`
}

// Executes the plan command.
//
// Generates the build plan without building anything and prints the
// fingerprint and the canonical dependency closure.
func (c *PlanCmd) Run(ctx context.Context) error {
	m, err := manifest.Load(filepath.Join(c.Root, c.Manifest))
	if err != nil {
		return err
	}

	p, err := plan.Generate(m)
	if err != nil {
		return err
	}

	fmt.Printf("project:     %s\n", m.Project)
	fmt.Printf("fingerprint: %s\n", p.Fingerprint)
	fmt.Printf("dependencies:\n")
	for _, dep := range p.Dependencies {
		line := fmt.Sprintf("  %s %s", dep.Name, dep.Version)
		if len(dep.Features) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(dep.Features, ", "))
		}
		fmt.Println(line)
	}

	return nil
}
