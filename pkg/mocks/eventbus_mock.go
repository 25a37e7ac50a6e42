// Package mocks provides testify mocks of the engine's collaborators.
package mocks

import (
	"context"

	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// MockTeller is a mock implementation of messages.Teller interface.
type MockTeller struct {
	mock.Mock
}

func (m *MockTeller) Tell(ctx context.Context, env messages.Envelope) error {
	args := m.Called(ctx, env)

	return args.Error(0)
}
