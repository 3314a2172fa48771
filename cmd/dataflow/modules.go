package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

func NewModulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "modules",
		Aliases: []string{"m"},
		Usage:   "List the available modules",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only list modules of this category",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			s, err := newSession(command, "modules")
			if err != nil {
				return err
			}

			return listModules(os.Stdout, s.registry, models.Category(command.String("category")))
		},
	}
}

func listModules(w io.Writer, reg *registry.Registry, category models.Category) error {
	modules := reg.List()
	if category != "" {
		modules = reg.ListByCategory(category)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tNAME\tINPUTS\tOUTPUTS\tBUILT-IN")

	for def := range modules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n",
			def.ID, def.Category, def.Name, len(def.Inputs), len(def.Outputs), def.IsBuiltIn)
	}

	return tw.Flush()
}
