package models

import "time"

// EventLogTimestampLayout renders timestamps as dd.MM.yyyy HH:mm.
const EventLogTimestampLayout = "02.01.2006 15:04"

// EventLogRecord is one entry of the process-mining event log.
type EventLogRecord struct {
	ID             int64  `json:"id,omitempty"`
	CaseID         int64  `json:"case_id"`
	ProcessModelID int64  `json:"process_model_id"`
	Timestamp      string `json:"timestamp"`
	Activity       string `json:"activity"`
	Resource       string `json:"resource"`
	StateType      string `json:"state_type"`
	MessageType    string `json:"message_type"`
	Recipient      string `json:"recipient,omitempty"`
	Sender         string `json:"sender,omitempty"`
}

// FormatEventLogTimestamp formats t in the event-log layout.
func FormatEventLogTimestamp(t time.Time) string {
	return t.Format(EventLogTimestampLayout)
}
