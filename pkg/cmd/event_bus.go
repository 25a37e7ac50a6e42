// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/sbpm/pkg/channels/gochannel"
	"github.com/dukex/sbpm/pkg/channels/kafka"
	"github.com/dukex/sbpm/pkg/eventbus"
)

// NewEventBus creates the event bus for provider: "kafka" or "gochannel".
func NewEventBus(provider string, brokers string, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
