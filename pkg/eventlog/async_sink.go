package eventlog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/sbpm/pkg/models"
)

// ErrSinkFull is returned when the async queue cannot take a record.
var ErrSinkFull = errors.New("event log queue full")

// ErrSinkClosed is returned for records emitted after Close.
var ErrSinkClosed = errors.New("event log sink closed")

// AsyncSink hands records to a background worker so emitters never block on
// the downstream sink. Records that do not fit the queue are dropped.
type AsyncSink struct {
	next    Sink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan *models.EventLogRecord
	closed bool
	done   chan struct{}
}

// NewAsyncSink starts the worker. Each delivery to next is bounded by timeout.
func NewAsyncSink(next Sink, logger *slog.Logger, queueSize int, timeout time.Duration) *AsyncSink {
	if queueSize <= 0 {
		queueSize = 256
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	s := &AsyncSink{
		next:    next,
		logger:  logger.With("module", "event_log_sink"),
		timeout: timeout,
		queue:   make(chan *models.EventLogRecord, queueSize),
		done:    make(chan struct{}),
	}

	go s.run()

	return s
}

func (s *AsyncSink) Emit(ctx context.Context, record *models.EventLogRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}

	copied := *record

	select {
	case s.queue <- &copied:
		return nil
	default:
		s.logger.WarnContext(ctx, "dropping event log record", "case_id", record.CaseID, "activity", record.Activity)

		return ErrSinkFull
	}
}

// Close stops accepting records and waits until the queued ones were delivered.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)

	for record := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		Deliver(ctx, s.next, s.logger, record)
		cancel()
	}
}
