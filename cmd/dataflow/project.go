package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/dataflow/pkg/cmd"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/registry"
	"github.com/dukex/dataflow/pkg/store"
	"github.com/dukex/dataflow/pkg/workspace"
	cli "github.com/urfave/cli/v3"
)

func fileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Project document to load",
		Required: true,
	}
}

func runtimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "node-timeout",
			Usage:   "Maximum time a node may run, 0 disables the limit",
			Sources: cli.EnvVars("NODE_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-concurrency",
			Usage:   "Maximum nodes executed at once within a wave",
			Value:   8,
			Sources: cli.EnvVars("MAX_CONCURRENCY"),
		},
	}
}

// loadDocument reads and validates a project document from path.
func loadDocument(path string) (*models.ProjectDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project document: %w", err)
	}

	return store.DecodeDocument(data)
}

// session bundles what a command needs to work on a single project.
type session struct {
	logger    *slog.Logger
	registry  *registry.Registry
	workspace *workspace.Workspace
}

func newSession(command *cli.Command, module string, opts ...workspace.Option) (*session, error) {
	logger := slog.With("module", module)

	reg, err := cmd.NewRegistry(logger, command.String("modules-path"))
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if command.IsSet("node-timeout") {
		timeout = command.Duration("node-timeout")
	}

	runner := cmd.NewRunner(logger, reg, timeout, command.Int("max-concurrency"))

	return &session{
		logger:    logger,
		registry:  reg,
		workspace: workspace.New(reg, runner, logger, opts...),
	}, nil
}

func (s *session) open(ctx context.Context, path string) (*store.Store, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}

	return s.workspace.Import(ctx, doc)
}
