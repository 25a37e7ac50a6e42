package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/sbpm/pkg/cmd"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func CollectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Store event-log records published on the event bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or file://path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("eventlog-collector")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "sbpm-eventlog", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			collector := eventlog.NewCollector(store.EventLogRepository(), logger)

			err = collector.Register(eventBus)
			if err != nil {
				return fmt.Errorf("failed to register collector: %w", err)
			}

			err = eventBus.Subscribe(ctx)
			if err != nil {
				return fmt.Errorf("failed to subscribe to event bus: %w", err)
			}

			logger.InfoContext(ctx, "Collecting event log")
			<-ctx.Done()
			logger.Info("Shutting down event-log collector")

			return nil
		},
	}
}
