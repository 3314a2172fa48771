package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/registry"
	"github.com/dukex/dataflow/pkg/store"
	cli "github.com/urfave/cli/v3"
)

var errInvalidProject = errors.New("project document is invalid")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a project document",
		Flags:   []cli.Flag{fileFlag()},
		Action: func(_ context.Context, command *cli.Command) error {
			s, err := newSession(command, "validate")
			if err != nil {
				return err
			}

			doc, err := loadDocument(command.String("file"))
			if err != nil {
				return err
			}

			return validateDocument(os.Stdout, s.registry, doc)
		},
	}
}

// validateDocument reports unknown modules and cycles, then prints the
// execution waves of a valid document.
func validateDocument(w io.Writer, reg *registry.Registry, doc *models.ProjectDocument) error {
	fmt.Fprintf(w, "Project: %s (%s)\n", doc.Name, doc.ID)

	if err := store.RegisterDocumentModules(reg, doc); err != nil {
		fmt.Fprintf(w, "  INVALID: %v\n", err)

		return errInvalidProject
	}

	invalid := 0

	for _, node := range doc.Nodes {
		if !reg.Contains(node.ModuleID) {
			fmt.Fprintf(w, "  INVALID: node %s uses unknown module %s\n", node.ID, node.ModuleID)

			invalid++
		}
	}

	g, err := graph.FromProject(&doc.Project, reg)
	if err != nil {
		fmt.Fprintf(w, "  INVALID: %v\n", err)

		return errInvalidProject
	}

	plan, err := engine.PlanAll(g)
	if err != nil {
		fmt.Fprintf(w, "  INVALID: %v\n", err)

		return errInvalidProject
	}

	if invalid > 0 {
		return errInvalidProject
	}

	fmt.Fprintf(w, "  VALID: %d nodes, %d edges\n", len(doc.Nodes), len(doc.Edges))

	for i, wave := range plan.Waves {
		fmt.Fprintf(w, "  wave %d: %v\n", i, wave)
	}

	return nil
}
