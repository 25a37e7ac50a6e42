package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/sbpm/pkg/config"
	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return redis.NewClient(options), nil
}

// NewEventLogSink builds the sinks enabled in cfg behind an AsyncSink, so
// delivery never delays a task. A nil client disables the redis sink.
func NewEventLogSink(cfg config.EventLogConfig, bus eventbus.EventPublisher, client *redis.Client, workerID string,
	logger *slog.Logger,
) (*eventlog.AsyncSink, error) {
	sinks := make(eventlog.MultiSink, 0, len(cfg.Sinks))

	if cfg.HasSink(config.SinkBus) {
		sinks = append(sinks, eventlog.NewBusSink(bus, workerID))
	}

	if cfg.HasSink(config.SinkRedis) {
		if client == nil {
			return nil, fmt.Errorf("event log sink %q needs REDIS_URL", config.SinkRedis)
		}

		sinks = append(sinks, eventlog.NewRedisSink(client, cfg.RedisStream, cfg.RedisMaxLen))
	}

	return eventlog.NewAsyncSink(sinks, logger, cfg.QueueSize, cfg.DeliveryTimeout), nil
}
