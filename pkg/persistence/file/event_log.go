package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
)

// EventLogRepository stores event-log records as individual documents.
// Records are written immediately, outside of any process transaction.
type EventLogRepository struct {
	persistence *Persistence
}

// SaveEventLogRecord assigns an ID when missing and stores the record.
func (r *EventLogRepository) SaveEventLogRecord(_ context.Context, record *models.EventLogRecord) error {
	if record.ID == 0 {
		record.ID = r.persistence.nextID()
	}

	data, err := encode(record)
	if err != nil {
		return err
	}

	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	err = r.persistence.writeDocument(collectionEventLogs, record.ID, data)
	if err != nil {
		return persistence.NewStoreError("SaveEventLogRecord", err)
	}

	return nil
}

// EventLogRecords returns the records matching filter ordered by ID.
func (r *EventLogRepository) EventLogRecords(_ context.Context, filter persistence.EventLogFilter) ([]*models.EventLogRecord, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	ids, err := r.persistence.committedIDs(collectionEventLogs)
	if err != nil {
		return nil, persistence.NewStoreError("EventLogRecords", err)
	}

	records := make([]*models.EventLogRecord, 0, len(ids))

	for _, id := range ids {
		data, err := r.persistence.readCommitted(collectionEventLogs, id)
		if err != nil {
			return nil, persistence.NewStoreError("EventLogRecords", err)
		}

		if data == nil {
			continue
		}

		var record models.EventLogRecord

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, persistence.NewStoreError("EventLogRecords", fmt.Errorf("failed to decode record %d: %w", id, err))
		}

		if filter.Matches(&record) {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	return records, nil
}
