package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/sbpm/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "event_bus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	event := events.New(eventType)
	if event == nil {
		eb.logger.WarnContext(ctx, "unknown event type", "event_type", eventType)
		msg.Nack()

		return
	}

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "failed to decode event", "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	err = handler(ctx, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "event handler failed", "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
