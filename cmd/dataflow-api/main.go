package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/dataflow/pkg/cmd"
	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/log"
	"github.com/dukex/dataflow/pkg/otelhelper"
	"github.com/dukex/dataflow/pkg/workspace"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort        = 9091
	defaultConcurrency = 8
	serviceName        = "dataflow-api"
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Build and run dataflow projects over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file path, postgres:// or redis://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus for run events (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "modules-path",
				Usage:   "Directory with user module definitions",
				Sources: cli.EnvVars("MODULES_PATH"),
			},
			&cli.DurationFlag{
				Name:    "node-timeout",
				Usage:   "Maximum time a node may run, 0 disables the limit",
				Sources: cli.EnvVars("NODE_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-concurrency",
				Usage:   "Maximum nodes executed at once within a wave",
				Value:   defaultConcurrency,
				Sources: cli.EnvVars("MAX_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export run traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	logger := log.Setup(command.String("log-level"), command.String("log-format")).With("module", "api")

	logger.InfoContext(ctx, "Initializing Dataflow API")

	registry, err := cmd.NewRegistry(logger, command.String("modules-path"))
	if err != nil {
		return err
	}

	var runnerOpts []engine.RunnerOption

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return err
		}

		runnerOpts = append(runnerOpts, engine.WithTracer(tracer))
	}

	runner := cmd.NewRunner(
		logger,
		registry,
		command.Duration("node-timeout"),
		command.Int("max-concurrency"),
		runnerOpts...,
	)

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := persistence.Close(closeCtx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	opts := []workspace.Option{workspace.WithPersistence(persistence)}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	if eventBus != nil {
		defer func() {
			if err := eventBus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		opts = append(opts, workspace.WithPublisher(eventBus))
	}

	ws := workspace.New(registry, runner, logger, opts...)

	return NewAPI(logger, ws, registry).Start(command.Int("port"))
}
