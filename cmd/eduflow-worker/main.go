package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dandpb/jung-edu-app-sub012/pkg/cmd"
	"github.com/dandpb/jung-edu-app-sub012/pkg/engine"
	"github.com/dandpb/jung-edu-app-sub012/pkg/log"
	"github.com/dandpb/jung-edu-app-sub012/pkg/otelhelper"
)

func main() {
	root := &cli.Command{
		Name:                  "eduflow-worker",
		Usage:                 "Run workflow executions delivered over the event bus",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "lock-url",
				Usage:   "Lock backend URL (defaults to the persistence backend)",
				Sources: cli.EnvVars("LOCK_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing step handler plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "concurrency",
				Usage:   "Wave concurrency preset (high, medium, low)",
				Value:   engine.ConcurrencyMedium,
				Sources: cli.EnvVars("CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("eduflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing eduflow worker")

			if command.Bool("enable-tracing") {
				if _, err := otelhelper.NewTracer(ctx, "eduflow-worker"); err != nil {
					logger.ErrorContext(ctx, "Failed to set up tracing", "error", err)
				}
			}

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			locks := cmd.NewLockRepository(command.String("lock-url"), persistence)

			eng := engine.NewEngine(logger, persistence, locks, registry, eventBus, engine.Config{
				WorkerID:    workerID,
				Concurrency: command.String("concurrency"),
			})

			worker := NewWorkerManager(workerID, eng, eventBus, logger)

			return worker.Start(ctx)
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
