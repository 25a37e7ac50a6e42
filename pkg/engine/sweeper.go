package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the completion sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically asks every running instance to check its completion,
// so an instance whose completion trigger was lost still finishes.
type Sweeper struct {
	engine   *Engine
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSweeper creates a sweeper. An empty schedule uses DefaultSweepSchedule.
func NewSweeper(engine *Engine, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule '%s': %w", schedule, err)
	}

	return &Sweeper{
		engine:   engine,
		schedule: schedule,
		logger:   logger.With("module", "completion_sweeper"),
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		_, err := s.Sweep(s.ctx)
		if err != nil {
			s.logger.ErrorContext(s.ctx, "completion sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "completion sweeper started", "schedule", s.schedule, "entry_id", entryID)

	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		s.logger.InfoContext(ctx, "completion sweeper stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep tells a CheckCompletion to every running instance and returns how many were told.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var running []*models.ProcessInstance

	err := persistence.WithTx(ctx, s.engine.Store(), func(tx persistence.Tx) error {
		var err error

		running, err = tx.ProcessInstancesByState(ctx, models.ProcessInstanceStateRunning)

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list running process instances: %w", err)
	}

	told := 0

	for _, instance := range running {
		err := s.engine.Tell(ctx, messages.NewEnvelope(messages.CheckCompletion{ProcessInstanceID: instance.ID}, messages.NoReply))
		if err != nil {
			return told, fmt.Errorf("failed to request completion check of %d: %w", instance.ID, err)
		}

		told++
	}

	s.logger.DebugContext(ctx, "completion sweep done", "running", len(running))

	return told, nil
}
