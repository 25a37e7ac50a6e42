// Package postgresql provides the PostgreSQL persistence implementation for process models and instances.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/persistence/sqlbase"
	"github.com/dukex/sbpm/pkg/txsync"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	eventLogRepo *EventLogRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger.With("module", "postgres_persistence"),
		eventLogRepo: NewEventLogRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// BeginTx opens a READ COMMITTED database transaction.
func (p *Persistence) BeginTx(ctx context.Context) (persistence.Tx, error) {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, persistence.NewStoreError("BeginTx", err)
	}

	return &tx{
		tx:     sqlTx,
		logger: p.logger,
		outbox: txsync.NewOutbox(p.logger),
	}, nil
}

// EventLogRepository returns the event-log repository.
func (p *Persistence) EventLogRepository() persistence.EventLogRepository {
	return p.eventLogRepo
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
