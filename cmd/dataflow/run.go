package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/store"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run a project document and print the node results as JSON",
		Flags: append([]cli.Flag{
			fileFlag(),
			&cli.StringFlag{
				Name:  "node",
				Usage: "Run this node and its downstream nodes instead of the whole project",
			},
			&cli.BoolFlag{
				Name:  "only",
				Usage: "With --node, run only that node using cached upstream results",
			},
		}, runtimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := newSession(command, "run")
			if err != nil {
				return err
			}

			project, err := s.open(ctx, command.String("file"))
			if err != nil {
				return err
			}

			results, runErr := runProject(ctx, project, command.String("node"), command.Bool("only"))

			if err := writeResults(os.Stdout, results); err != nil {
				return err
			}

			return runErr
		},
	}
}

// runProject runs the whole project, a node with its downstream nodes, or
// only a node. Running only a node first runs the project so the node's
// upstream results exist.
func runProject(ctx context.Context, s *store.Store, nodeID string, only bool) (map[string]*models.ExecutionResult, error) {
	switch {
	case nodeID == "":
		return s.RunAll(ctx)
	case only:
		if _, err := s.RunAll(ctx); err != nil {
			return nil, err
		}

		return s.RunNodeOnly(ctx, nodeID)
	default:
		return s.RunNode(ctx, nodeID)
	}
}

func writeResults(w io.Writer, results map[string]*models.ExecutionResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	return nil
}

// failedNodes lists the nodes whose result is an error, sorted.
func failedNodes(results map[string]*models.ExecutionResult) []string {
	var failed []string

	for id, result := range results {
		if result.Status == models.NodeStatusError {
			failed = append(failed, id)
		}
	}

	slices.Sort(failed)

	return failed
}
