package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
)

// EventLogRepository handles event-log database operations.
type EventLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventLogRepository creates a new event-log repository.
func NewEventLogRepository(db *sql.DB, logger *slog.Logger) *EventLogRepository {
	return &EventLogRepository{db: db, logger: logger}
}

// SaveEventLogRecord inserts a record and assigns its ID.
func (r *EventLogRepository) SaveEventLogRecord(ctx context.Context, record *models.EventLogRecord) error {
	query := `
		INSERT INTO event_logs (case_id, process_model_id, timestamp, activity, resource, state_type, message_type, recipient, sender)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		record.CaseID, record.ProcessModelID, record.Timestamp, record.Activity, record.Resource,
		record.StateType, record.MessageType, record.Recipient, record.Sender,
	).Scan(&record.ID)
	if err != nil {
		return persistence.NewStoreError("SaveEventLogRecord", err)
	}

	return nil
}

// EventLogRecords returns the records matching filter ordered by ID.
func (r *EventLogRepository) EventLogRecords(ctx context.Context, filter persistence.EventLogFilter) ([]*models.EventLogRecord, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.CaseID != 0 {
		args = append(args, filter.CaseID)
		conditions = append(conditions, fmt.Sprintf("case_id = $%d", len(args)))
	}

	if filter.ProcessModelID != 0 {
		args = append(args, filter.ProcessModelID)
		conditions = append(conditions, fmt.Sprintf("process_model_id = $%d", len(args)))
	}

	if filter.Resource != "" {
		args = append(args, filter.Resource)
		conditions = append(conditions, fmt.Sprintf("resource = $%d", len(args)))
	}

	query := `
		SELECT id, case_id, process_model_id, timestamp, activity, resource, state_type, message_type, recipient, sender
		FROM event_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("EventLogRecords", err)
	}
	defer rows.Close()

	records := make([]*models.EventLogRecord, 0)

	for rows.Next() {
		var record models.EventLogRecord

		err := rows.Scan(&record.ID, &record.CaseID, &record.ProcessModelID, &record.Timestamp, &record.Activity,
			&record.Resource, &record.StateType, &record.MessageType, &record.Recipient, &record.Sender)
		if err != nil {
			return nil, persistence.NewStoreError("EventLogRecords", err)
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("EventLogRecords", err)
	}

	return records, nil
}
