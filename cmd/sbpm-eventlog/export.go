package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/sbpm/pkg/cmd"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the event log as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres://... or file://path)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Read records from the redis stream instead of the store",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:  "redis-stream",
				Usage: "Redis stream holding event-log records",
				Value: eventlog.DefaultRedisStream,
			},
			&cli.Int64Flag{
				Name:  "redis-limit",
				Usage: "Maximum number of stream entries read",
				Value: 100000,
			},
			&cli.Int64Flag{
				Name:  "process-model-id",
				Usage: "Only export records of this process model",
			},
			&cli.Int64Flag{
				Name:  "case-id",
				Usage: "Only export records of this process instance",
			},
			&cli.StringFlag{
				Name:  "resource",
				Usage: "Only export records of this subject model",
			},
			&cli.BoolFlag{
				Name:  "deduplicate",
				Usage: "Keep only the first row of each distinct activity",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, stdout when empty",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("eventlog-export")

			filter := persistence.EventLogFilter{
				CaseID:         command.Int64("case-id"),
				ProcessModelID: command.Int64("process-model-id"),
				Resource:       command.String("resource"),
			}

			var (
				records []*models.EventLogRecord
				err     error
			)

			switch {
			case command.String("redis-url") != "":
				records, err = readFromRedis(ctx, command.String("redis-url"), command.String("redis-stream"),
					command.Int64("redis-limit"), filter)
			case command.String("database-url") != "":
				records, err = readFromStore(ctx, command.String("database-url"), filter)
			default:
				return errors.New("either --database-url or --redis-url is required")
			}

			if err != nil {
				return err
			}

			if command.Bool("deduplicate") {
				records = eventlog.Deduplicate(records)
			}

			out := command.Root().Writer
			if path := command.String("output"); path != "" {
				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer file.Close()

				out = file
			}

			err = writeRecords(out, records)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Event log exported", "records", len(records))

			return nil
		},
	}
}

func readFromStore(ctx context.Context, databaseURL string, filter persistence.EventLogFilter) ([]*models.EventLogRecord, error) {
	logger := log.WithModule("eventlog-export")

	store, err := cmd.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	return eventlog.NewCollector(store.EventLogRepository(), logger).Records(ctx, filter)
}

func readFromRedis(ctx context.Context, redisURL, stream string, limit int64,
	filter persistence.EventLogFilter,
) ([]*models.EventLogRecord, error) {
	client, err := cmd.NewRedisClient(redisURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	all, err := eventlog.ReadRedisStream(ctx, client, stream, limit)
	if err != nil {
		return nil, err
	}

	return filterRecords(all, filter), nil
}

func filterRecords(records []*models.EventLogRecord, filter persistence.EventLogFilter) []*models.EventLogRecord {
	matched := make([]*models.EventLogRecord, 0, len(records))

	for _, record := range records {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}

	return matched
}

func writeRecords(w io.Writer, records []*models.EventLogRecord) error {
	err := eventlog.WriteCSV(w, records)
	if err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}

	return nil
}
