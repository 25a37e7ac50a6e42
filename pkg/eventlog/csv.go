package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dukex/sbpm/pkg/models"
)

// CSVHeader is the column layout consumed by the diagram augmentation tool.
var CSVHeader = []string{"EventId", "CaseId", "Timestamp", "Activity", "Resource", "State", "MessageType", "Recipient", "Sender"}

const csvDelimiter = ';'

// WriteCSV writes records with a header line, separated by ';'.
func WriteCSV(w io.Writer, records []*models.EventLogRecord) error {
	writer := csv.NewWriter(w)
	writer.Comma = csvDelimiter

	err := writer.Write(CSVHeader)
	if err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, record := range records {
		err := writer.Write([]string{
			strconv.FormatInt(record.ID, 10),
			strconv.FormatInt(record.CaseID, 10),
			record.Timestamp,
			record.Activity,
			record.Resource,
			record.StateType,
			record.MessageType,
			record.Recipient,
			record.Sender,
		})
		if err != nil {
			return fmt.Errorf("failed to write csv record %d: %w", record.ID, err)
		}
	}

	writer.Flush()

	return writer.Error()
}

// ReadCSV parses a log written by WriteCSV. EventId, CaseId, Timestamp,
// Activity, Resource and State are mandatory; the message columns may be empty.
func ReadCSV(r io.Reader) ([]*models.EventLogRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = csvDelimiter
	reader.FieldsPerRecord = len(CSVHeader)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty event log")
		}

		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	for i, column := range CSVHeader {
		if header[i] != column {
			return nil, fmt.Errorf("unexpected csv column %d: got %q, want %q", i+1, header[i], column)
		}
	}

	records := make([]*models.EventLogRecord, 0)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		record, err := parseRow(row)
		if err != nil {
			line, _ := reader.FieldPos(0)

			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		records = append(records, record)
	}

	return records, nil
}

func parseRow(row []string) (*models.EventLogRecord, error) {
	eventID, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid EventId %q: %w", row[0], err)
	}

	caseID, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CaseId %q: %w", row[1], err)
	}

	for i := 2; i <= 5; i++ {
		if row[i] == "" {
			return nil, fmt.Errorf("column %s is required", CSVHeader[i])
		}
	}

	return &models.EventLogRecord{
		ID:          eventID,
		CaseID:      caseID,
		Timestamp:   row[2],
		Activity:    row[3],
		Resource:    row[4],
		StateType:   row[5],
		MessageType: row[6],
		Recipient:   row[7],
		Sender:      row[8],
	}, nil
}

type dedupKey struct {
	activity    string
	state       string
	messageType string
	recipient   string
	sender      string
}

// Deduplicate keeps the first record of every (activity, state, message
// type, recipient, sender) combination, preserving order.
func Deduplicate(records []*models.EventLogRecord) []*models.EventLogRecord {
	seen := make(map[dedupKey]bool, len(records))
	unique := make([]*models.EventLogRecord, 0, len(records))

	for _, record := range records {
		key := dedupKey{
			activity:    record.Activity,
			state:       record.StateType,
			messageType: record.MessageType,
			recipient:   record.Recipient,
			sender:      record.Sender,
		}

		if seen[key] {
			continue
		}

		seen[key] = true
		unique = append(unique, record)
	}

	return unique
}
