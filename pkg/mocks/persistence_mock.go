package mocks

import (
	"context"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockEventLogRepository is a mock implementation of persistence.EventLogRepository interface.
type MockEventLogRepository struct {
	mock.Mock
}

func (m *MockEventLogRepository) SaveEventLogRecord(ctx context.Context, record *models.EventLogRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockEventLogRepository) EventLogRecords(ctx context.Context, filter persistence.EventLogFilter) ([]*models.EventLogRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.EventLogRecord), args.Error(1)
}

// MockSink is a mock implementation of eventlog.Sink interface.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Emit(ctx context.Context, record *models.EventLogRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}
