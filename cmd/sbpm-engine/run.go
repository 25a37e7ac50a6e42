package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/sbpm/pkg/actor"
	"github.com/dukex/sbpm/pkg/cmd"
	"github.com/dukex/sbpm/pkg/config"
	"github.com/dukex/sbpm/pkg/engine"
	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/otelhelper"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort     = 9092
	shutdownTimeout = 15 * time.Second
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the process engine and its HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or file://path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used by the redis event-log sink",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine YAML configuration",
				Sources: cli.EnvVars("SBPM_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "worker-id",
				Usage:   "Identifier stamped on published events",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces with the OTLP HTTP exporter",
				Sources: cli.EnvVars("SBPM_TRACING"),
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
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			cfg, err := config.LoadEngineConfigOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = cfg.WorkerID
			}

			if workerID == "" {
				workerID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("sbpm-engine").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing sbpm engine")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, err := newTracer(ctx, command.Bool("tracing"), logger)
			if err != nil {
				return err
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "sbpm-engine", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			// The in-memory bus never leaves the process, so its records are collected here.
			if command.String("event-bus") != "kafka" {
				err = collectInProcess(ctx, store, eventBus, logger)
				if err != nil {
					return err
				}
			}

			var redisClient *redis.Client
			if redisURL := command.String("redis-url"); redisURL != "" {
				redisClient, err = cmd.NewRedisClient(redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := redisClient.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()
			}

			sink, err := cmd.NewEventLogSink(cfg.EventLog, eventBus, redisClient, workerID, logger)
			if err != nil {
				return err
			}

			eng, err := engine.New(ctx, store, engine.Options{
				Publisher: eventBus,
				Sink:      sink,
				Policy:    eventlog.PolicyByName(cfg.EventLog.MessageTypePolicy),
				Logger:    logger,
				Tracer:    tracer,
				WorkerID:  workerID,
				Actors: actor.Config{
					MailboxSize: cfg.Actors.MailboxSize,
					IdleTimeout: cfg.Actors.IdleTimeout,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create engine: %w", err)
			}

			var sweeper *engine.Sweeper
			if cfg.Sweeper.Enabled {
				sweeper, err = engine.NewSweeper(eng, cfg.Sweeper.Schedule, logger)
				if err != nil {
					return err
				}

				err = sweeper.Start(ctx)
				if err != nil {
					return err
				}
			}

			app := NewAPI(logger, eng, cfg.HTTP.RequestTimeout).App()

			listenErr := make(chan error, 1)

			go func() {
				listenErr <- app.Listen(":" + strconv.Itoa(command.Int("port")))
			}()

			select {
			case <-ctx.Done():
				logger.Info("Shutting down sbpm engine")
			case err = <-listenErr:
				if err != nil {
					logger.Error("API server stopped", "error", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return shutdown(shutdownCtx, logger, app.ShutdownWithContext, sweeper, eng, sink, err)
		},
	}
}

// shutdown stops the HTTP server first so no new message reaches the engine,
// then drains the actors and flushes pending event-log records.
func shutdown(ctx context.Context, logger *slog.Logger, stopServer func(context.Context) error, sweeper *engine.Sweeper,
	eng *engine.Engine, sink *eventlog.AsyncSink, cause error,
) error {
	errs := []error{cause}

	if err := stopServer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop API server: %w", err))
	}

	if sweeper != nil {
		if err := sweeper.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := eng.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop engine: %w", err))
	}

	if err := sink.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush event log: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("Shutdown finished with errors", "error", err)
	}

	return err
}

func collectInProcess(ctx context.Context, store persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) error {
	collector := eventlog.NewCollector(store.EventLogRepository(), logger)

	err := collector.Register(bus)
	if err != nil {
		return fmt.Errorf("failed to register event-log collector: %w", err)
	}

	err = bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe event-log collector: %w", err)
	}

	return nil
}

// nolint:ireturn // tracers are only exposed as the OpenTelemetry interface
func newTracer(ctx context.Context, enabled bool, logger *slog.Logger) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NoopTracer(), nil
	}

	tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "sbpm-engine")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	go func() {
		<-ctx.Done()

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := shutdownTracer(flushCtx); err != nil {
			logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}()

	return tracer, nil
}
