package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dandpb/jung-edu-app-sub012/pkg/cmd"
	"github.com/dandpb/jung-edu-app-sub012/pkg/log"
)

func main() {
	logger := log.WithModule("eduflow-janitor")

	root := &cli.Command{
		Name:                  "eduflow-janitor",
		Usage:                 "Periodic maintenance: lock expiry, snapshot compaction, orphan recovery",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "schedule",
				Usage:   "Cron schedule for the maintenance sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("JANITOR_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "keep-snapshots",
				Usage:   "Snapshots to keep per terminal execution (audit snapshots always survive)",
				Value:   3,
				Sources: cli.EnvVars("KEEP_SNAPSHOTS"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "How long an execution may sit without progress before orphan recovery",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("STALE_AFTER"),
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

			logger.InfoContext(ctx, "Initializing eduflow janitor")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			locks := cmd.NewLockRepository(command.String("lock-url"), persistence)

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			janitor := NewJanitor(logger, persistence, locks, eventBus,
				command.Int("keep-snapshots"), command.Duration("stale-after"))

			return janitor.Start(ctx, command.String("schedule"))
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
