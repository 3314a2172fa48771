package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/dataflow/pkg/cmd"
	"github.com/dukex/dataflow/pkg/store"
	"github.com/dukex/dataflow/pkg/workspace"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

var errCronRequired = errors.New("cron expression is required")

func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "schedule",
		Aliases: []string{"s"},
		Usage:   "Run a project document on a cron schedule",
		Flags: append([]cli.Flag{
			fileFlag(),
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Standard cron expression, e.g. '*/5 * * * *'",
				Required: true,
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
		}, runtimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With("module", "schedule")

			var opts []workspace.Option

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

			s, err := newSession(command, "schedule", opts...)
			if err != nil {
				return err
			}

			project, err := s.open(ctx, command.String("file"))
			if err != nil {
				return err
			}

			scheduler, err := NewScheduler(command.String("cron"), project, s.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := scheduler.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			scheduler.Stop()

			return nil
		},
	}
}

// Scheduler runs a whole project every time its cron expression fires.
type Scheduler struct {
	CronExpr string
	project  *store.Store
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewScheduler(cronExpr string, project *store.Store, logger *slog.Logger) (*Scheduler, error) {
	if cronExpr == "" {
		return nil, errCronRequired
	}

	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	return &Scheduler{
		CronExpr: cronExpr,
		project:  project,
		logger: logger.With(
			"cron", cronExpr,
			"project_id", project.ID(),
		),
	}, nil
}

// Start schedules the runs. A tick that fires while the previous run is
// still executing is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler")

	logger := cronLogger{s.logger}

	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	if _, err := s.cron.AddFunc(s.CronExpr, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule %q: %w", s.CronExpr, err)
	}

	s.cron.Start()

	return nil
}

// Tick runs the whole project once.
func (s *Scheduler) Tick(ctx context.Context) {
	s.logger.InfoContext(ctx, "Cron job triggered")

	results, err := s.project.RunAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled run failed", "error", err)

		return
	}

	failed := failedNodes(results)
	if len(failed) > 0 {
		s.logger.WarnContext(ctx, "Scheduled run finished with failures", "failed", failed)

		return
	}

	s.logger.InfoContext(ctx, "Scheduled run finished", "nodes", len(results))
}

// Stop stops scheduling and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// cronLogger reports cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
