// Package main provides the dataflow command line tool for running,
// validating and scheduling project documents.
package main

import (
	"context"
	"os"

	"github.com/dukex/dataflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "dataflow"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Run, validate and schedule dataflow projects",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "modules-path",
				Usage:   "Directory with user module definitions",
				Sources: cli.EnvVars("MODULES_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewModulesCommand(),
			NewValidateCommand(),
			NewScheduleCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule(serviceName).Error("Command failed", "error", err)
		os.Exit(1)
	}
}
