// Package eventlog builds process-mining records for subject state changes and
// delivers them, best effort, to the event-log collector.
package eventlog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/sbpm/pkg/models"
)

// Sink receives event-log records. Delivery is best effort: callers log a
// returned error and carry on.
type Sink interface {
	Emit(ctx context.Context, record *models.EventLogRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record *models.EventLogRecord) error

func (f SinkFunc) Emit(ctx context.Context, record *models.EventLogRecord) error {
	return f(ctx, record)
}

// Discard is a sink that drops every record.
var Discard Sink = SinkFunc(func(context.Context, *models.EventLogRecord) error { return nil })

// MessageTypePolicy derives the message type of a record from the message
// flows attached to the state.
type MessageTypePolicy func(flows []models.MessageFlow) string

// JoinAll names every distinct business object of the flows, in flow order,
// joined with "|". A single flow carrying a single business object yields
// that name and no flow yields "".
func JoinAll(flows []models.MessageFlow) string {
	seen := make(map[string]bool)
	names := make([]string, 0)

	for _, flow := range flows {
		for _, bom := range flow.BusinessObjectModels {
			if seen[bom.Name] {
				continue
			}

			seen[bom.Name] = true
			names = append(names, bom.Name)
		}
	}

	return strings.Join(names, "|")
}

// SingleFlowOnly names the first business object only when the state has
// exactly one flow, and "" otherwise.
func SingleFlowOnly(flows []models.MessageFlow) string {
	if len(flows) != 1 || len(flows[0].BusinessObjectModels) == 0 {
		return ""
	}

	return flows[0].BusinessObjectModels[0].Name
}

// PolicyByName resolves a configured policy name. Unknown names fall back to JoinAll.
func PolicyByName(name string) MessageTypePolicy {
	if strings.EqualFold(name, "single_flow_only") {
		return SingleFlowOnly
	}

	return JoinAll
}

// NewRecord builds the record for a subject of instanceID entering state at t.
// Recipient lists the receiving subject models of a SEND state and Sender
// the sending subject models of a RECEIVE state.
func NewRecord(pm *models.ProcessModel, instanceID int64, subjectModel models.SubjectModel, state models.State,
	at time.Time, policy MessageTypePolicy,
) *models.EventLogRecord {
	if policy == nil {
		policy = JoinAll
	}

	flows := stateFlows(pm, state)

	record := &models.EventLogRecord{
		CaseID:         instanceID,
		ProcessModelID: pm.ID,
		Timestamp:      models.FormatEventLogTimestamp(at),
		Activity:       state.Name,
		Resource:       subjectModel.Name,
		StateType:      string(state.FunctionType),
		MessageType:    policy(flows),
	}

	switch state.FunctionType {
	case models.StateFunctionTypeSend:
		record.Recipient = counterparts(pm, flows, func(flow models.MessageFlow) int64 { return flow.ReceiverStateID })
	case models.StateFunctionTypeReceive:
		record.Sender = counterparts(pm, flows, func(flow models.MessageFlow) int64 { return flow.SenderStateID })
	case models.StateFunctionTypeFunction, models.StateFunctionTypeEnd:
	}

	return record
}

// stateFlows returns the flows a state sends (SEND) or receives (RECEIVE).
func stateFlows(pm *models.ProcessModel, state models.State) []models.MessageFlow {
	flows := make([]models.MessageFlow, 0)

	for _, flow := range pm.MessageFlowsOf(state.ID) {
		switch {
		case state.FunctionType == models.StateFunctionTypeSend && flow.SenderStateID == state.ID,
			state.FunctionType == models.StateFunctionTypeReceive && flow.ReceiverStateID == state.ID:
			flows = append(flows, flow)
		}
	}

	return flows
}

func counterparts(pm *models.ProcessModel, flows []models.MessageFlow, endpoint func(models.MessageFlow) int64) string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(flows))

	for _, flow := range flows {
		_, subjectModel, ok := pm.StateByID(endpoint(flow))
		if !ok || seen[subjectModel.Name] {
			continue
		}

		seen[subjectModel.Name] = true
		names = append(names, subjectModel.Name)
	}

	return strings.Join(names, "|")
}

// Deliver hands record to sink and logs a failure instead of returning it.
func Deliver(ctx context.Context, sink Sink, logger *slog.Logger, record *models.EventLogRecord) {
	err := sink.Emit(ctx, record)
	if err != nil {
		logger.WarnContext(ctx, "event log delivery failed",
			"case_id", record.CaseID,
			"activity", record.Activity,
			"error", err)
	}
}

// MultiSink fans a record out to several sinks. Every sink is tried.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, record *models.EventLogRecord) error {
	var errs []error

	for _, sink := range m {
		err := sink.Emit(ctx, record)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
