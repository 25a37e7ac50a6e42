package eventlog

import (
	"context"
	"strconv"

	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/models"
)

// BusSink publishes records as EventLogRecorded events, keyed by case.
type BusSink struct {
	publisher eventbus.EventPublisher
	workerID  string
}

func NewBusSink(publisher eventbus.EventPublisher, workerID string) *BusSink {
	return &BusSink{publisher: publisher, workerID: workerID}
}

func (s *BusSink) Emit(ctx context.Context, record *models.EventLogRecord) error {
	return s.publisher.Publish(ctx, strconv.FormatInt(record.CaseID, 10), events.NewEventLogRecorded(*record, s.workerID))
}
