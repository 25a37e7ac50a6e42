package eventlog_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/sbpm/pkg/channels/gochannel"
	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_StoresPublishedRecords(t *testing.T) {
	store, err := file.NewPersistence(t.TempDir(), testLogger())
	require.NoError(t, err)

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, testLogger())
	t.Cleanup(func() { _ = bus.Close() })

	collector := eventlog.NewCollector(store.EventLogRepository(), testLogger())
	require.NoError(t, collector.Register(bus))
	require.NoError(t, bus.Subscribe(t.Context()))

	sink := eventlog.NewBusSink(bus, "engine-1")

	for _, record := range sampleRecords() {
		record.ProcessModelID = 3
		require.NoError(t, sink.Emit(t.Context(), record))
	}

	assert.Eventually(t, func() bool {
		records, err := collector.Records(t.Context(), persistence.EventLogFilter{})

		return err == nil && len(records) == len(sampleRecords())
	}, 2*time.Second, 10*time.Millisecond)

	customer, err := collector.ByProcessModelAndResource(t.Context(), 3, "Customer")
	require.NoError(t, err)
	require.Len(t, customer, 3)

	for _, record := range customer {
		assert.Equal(t, "Customer", record.Resource)
	}

	var buf bytes.Buffer
	require.NoError(t, eventlog.WriteCSV(&buf, eventlog.Deduplicate(customer)))

	exported, err := eventlog.ReadCSV(&buf)
	require.NoError(t, err)
	assert.Len(t, exported, 2)
}

func TestCollector_EmitDirect(t *testing.T) {
	store, err := file.NewPersistence(t.TempDir(), testLogger())
	require.NoError(t, err)

	collector := eventlog.NewCollector(store.EventLogRepository(), testLogger())

	record := &models.EventLogRecord{ID: 99, CaseID: 1, ProcessModelID: 1, Activity: "Review", Resource: "Reviewer", StateType: "FUNCTION"}
	require.NoError(t, collector.Emit(t.Context(), record))
	assert.Equal(t, int64(99), record.ID, "the caller's record is not modified")

	records, err := collector.Records(t.Context(), persistence.EventLogFilter{CaseID: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEqual(t, int64(99), records[0].ID)
}
