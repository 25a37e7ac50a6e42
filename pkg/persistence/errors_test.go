package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("not found error matches sentinel", func(t *testing.T) {
		err := persistence.NewNotFoundError(persistence.EntityProcessInstance, 42)

		assert.True(t, persistence.IsNotFound(err))
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		assert.Equal(t, "process instance 42 not found", err.Error())
	})

	t.Run("not found survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("failed to load: %w", persistence.NewNotFoundError(persistence.EntitySubject, 7))

		assert.True(t, persistence.IsNotFound(err))

		var notFound *persistence.NotFoundError
		assert.True(t, errors.As(err, &notFound))
		assert.Equal(t, persistence.EntitySubject, notFound.Entity)
		assert.Equal(t, int64(7), notFound.ID)
	})

	t.Run("store error contains context", func(t *testing.T) {
		cause := errors.New("disk full")
		err := persistence.NewStoreError("SaveSubject", cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "SaveSubject")
		assert.Contains(t, err.Error(), "disk full")
		assert.False(t, persistence.IsNotFound(err))
	})
}

func TestEventLogFilter_Matches(t *testing.T) {
	t.Parallel()

	record := &models.EventLogRecord{CaseID: 1, ProcessModelID: 2, Resource: "Customer"}

	tests := []struct {
		name   string
		filter persistence.EventLogFilter
		want   bool
	}{
		{name: "empty filter", filter: persistence.EventLogFilter{}, want: true},
		{name: "matching model and resource", filter: persistence.EventLogFilter{ProcessModelID: 2, Resource: "Customer"}, want: true},
		{name: "other resource", filter: persistence.EventLogFilter{Resource: "Supplier"}, want: false},
		{name: "other case", filter: persistence.EventLogFilter{CaseID: 3}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.filter.Matches(record))
		})
	}
}
