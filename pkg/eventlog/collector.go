package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
)

// Collector persists the records published on the event bus and answers
// event-log queries.
type Collector struct {
	repository persistence.EventLogRepository
	logger     *slog.Logger
}

func NewCollector(repository persistence.EventLogRepository, logger *slog.Logger) *Collector {
	return &Collector{
		repository: repository,
		logger:     logger.With("module", "event_log_collector"),
	}
}

// Register installs the collector's handler on the bus. The caller starts the subscription.
func (c *Collector) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.EventLogRecordedEvent, c.handle)
}

func (c *Collector) handle(ctx context.Context, event any) error {
	recorded, ok := event.(*events.EventLogRecorded)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	return c.Emit(ctx, &recorded.Record)
}

// Emit stores a record directly, making the collector usable as an in-process Sink.
func (c *Collector) Emit(ctx context.Context, record *models.EventLogRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}

	stored := *record
	stored.ID = 0

	err := c.repository.SaveEventLogRecord(ctx, &stored)
	if err != nil {
		return fmt.Errorf("failed to store event log record: %w", err)
	}

	c.logger.DebugContext(ctx, "event log record stored", "id", stored.ID, "case_id", stored.CaseID, "activity", stored.Activity)

	return nil
}

// ByProcessModelAndResource returns the records of one subject model across all cases of a process model.
func (c *Collector) ByProcessModelAndResource(ctx context.Context, processModelID int64, resource string) ([]*models.EventLogRecord, error) {
	return c.repository.EventLogRecords(ctx, persistence.EventLogFilter{ProcessModelID: processModelID, Resource: resource})
}

// Records returns the records matching filter.
func (c *Collector) Records(ctx context.Context, filter persistence.EventLogFilter) ([]*models.EventLogRecord, error) {
	return c.repository.EventLogRecords(ctx, filter)
}
