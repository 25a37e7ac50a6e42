package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/txsync"
)

const processInstanceColumns = `id, process_model_id, state, start_user_id, created_at, finished_at`

// processModelDefinition is the JSONB payload of process_models.definition.
type processModelDefinition struct {
	SubjectModels []models.SubjectModel `json:"subject_models"`
	MessageFlows  []models.MessageFlow  `json:"message_flows"`
}

type scanner interface {
	Scan(dest ...any) error
}

type tx struct {
	tx     *sql.Tx
	logger *slog.Logger
	outbox *txsync.Outbox
	done   bool
}

func (t *tx) ProcessModelByID(ctx context.Context, id int64) (*models.ProcessModel, error) {
	query := `
		SELECT id, name, description, version, state, starter_subject_model_id, definition, created_at
		FROM process_models
		WHERE id = $1
	`

	var (
		pm         models.ProcessModel
		definition []byte
	)

	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&pm.ID, &pm.Name, &pm.Description, &pm.Version, &pm.State,
		&pm.StarterSubjectModelID, &definition, &pm.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNotFoundError(persistence.EntityProcessModel, id)
		}

		return nil, persistence.NewStoreError("ProcessModelByID", err)
	}

	var def processModelDefinition

	err = json.Unmarshal(definition, &def)
	if err != nil {
		return nil, persistence.NewStoreError("ProcessModelByID", fmt.Errorf("failed to unmarshal definition: %w", err))
	}

	pm.SubjectModels = def.SubjectModels
	pm.MessageFlows = def.MessageFlows

	return &pm, nil
}

func (t *tx) SaveProcessModel(ctx context.Context, pm *models.ProcessModel) error {
	definition, err := json.Marshal(processModelDefinition{
		SubjectModels: pm.SubjectModels,
		MessageFlows:  pm.MessageFlows,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal process model definition: %w", err)
	}

	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now().UTC()
	}

	if pm.ID == 0 {
		query := `
			INSERT INTO process_models (name, description, version, state, starter_subject_model_id, definition, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`

		err = t.tx.QueryRowContext(ctx, query,
			pm.Name, pm.Description, pm.Version, pm.State, pm.StarterSubjectModelID, definition, pm.CreatedAt,
		).Scan(&pm.ID)
		if err != nil {
			return persistence.NewStoreError("SaveProcessModel", err)
		}

		return nil
	}

	query := `
		INSERT INTO process_models (id, name, description, version, state, starter_subject_model_id, definition, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			starter_subject_model_id = EXCLUDED.starter_subject_model_id,
			definition = EXCLUDED.definition
	`

	_, err = t.tx.ExecContext(ctx, query,
		pm.ID, pm.Name, pm.Description, pm.Version, pm.State, pm.StarterSubjectModelID, definition, pm.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("SaveProcessModel", err)
	}

	// Explicit ids bypass the sequence; move it past them.
	_, err = t.tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('process_models', 'id'), GREATEST((SELECT MAX(id) FROM process_models), 1))`)
	if err != nil {
		return persistence.NewStoreError("SaveProcessModel", err)
	}

	return nil
}

func (t *tx) ProcessInstanceByID(ctx context.Context, id int64) (*models.ProcessInstance, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+processInstanceColumns+` FROM process_instances WHERE id = $1`, id)

	return t.processInstance(row, "ProcessInstanceByID", id)
}

func (t *tx) LockProcessInstance(ctx context.Context, id int64) (*models.ProcessInstance, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+processInstanceColumns+` FROM process_instances WHERE id = $1 FOR UPDATE`, id)

	return t.processInstance(row, "LockProcessInstance", id)
}

func (t *tx) processInstance(row *sql.Row, op string, id int64) (*models.ProcessInstance, error) {
	pi, err := scanProcessInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNotFoundError(persistence.EntityProcessInstance, id)
		}

		return nil, persistence.NewStoreError(op, err)
	}

	return pi, nil
}

func (t *tx) SaveProcessInstance(ctx context.Context, pi *models.ProcessInstance) error {
	if pi.CreatedAt.IsZero() {
		pi.CreatedAt = time.Now().UTC()
	}

	if pi.ID == 0 {
		query := `
			INSERT INTO process_instances (process_model_id, state, start_user_id, created_at, finished_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`

		err := t.tx.QueryRowContext(ctx, query,
			pi.ProcessModelID, pi.State, pi.StartUserID, pi.CreatedAt, pi.FinishedAt,
		).Scan(&pi.ID)
		if err != nil {
			return persistence.NewStoreError("SaveProcessInstance", err)
		}

		return nil
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE process_instances SET state = $2, start_user_id = $3, finished_at = $4 WHERE id = $1`,
		pi.ID, pi.State, pi.StartUserID, pi.FinishedAt,
	)
	if err != nil {
		return persistence.NewStoreError("SaveProcessInstance", err)
	}

	return requireAffected(result, persistence.EntityProcessInstance, pi.ID)
}

func (t *tx) ProcessInstancesByState(ctx context.Context, state models.ProcessInstanceState) ([]*models.ProcessInstance, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+processInstanceColumns+` FROM process_instances WHERE state = $1 ORDER BY id`, state)
	if err != nil {
		return nil, persistence.NewStoreError("ProcessInstancesByState", err)
	}
	defer rows.Close()

	instances := make([]*models.ProcessInstance, 0)

	for rows.Next() {
		pi, err := scanProcessInstance(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ProcessInstancesByState", err)
		}

		instances = append(instances, pi)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("ProcessInstancesByState", err)
	}

	return instances, nil
}

func (t *tx) SubjectByID(ctx context.Context, id int64) (*models.Subject, error) {
	var s models.Subject

	err := t.tx.QueryRowContext(ctx,
		`SELECT id, process_instance_id, subject_model_id, user_id FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.ProcessInstanceID, &s.SubjectModelID, &s.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNotFoundError(persistence.EntitySubject, id)
		}

		return nil, persistence.NewStoreError("SubjectByID", err)
	}

	return &s, nil
}

func (t *tx) SubjectsByProcessInstance(ctx context.Context, processInstanceID int64) ([]*models.Subject, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, process_instance_id, subject_model_id, user_id FROM subjects WHERE process_instance_id = $1 ORDER BY id`,
		processInstanceID,
	)
	if err != nil {
		return nil, persistence.NewStoreError("SubjectsByProcessInstance", err)
	}
	defer rows.Close()

	subjects := make([]*models.Subject, 0)

	for rows.Next() {
		var s models.Subject

		err := rows.Scan(&s.ID, &s.ProcessInstanceID, &s.SubjectModelID, &s.UserID)
		if err != nil {
			return nil, persistence.NewStoreError("SubjectsByProcessInstance", err)
		}

		subjects = append(subjects, &s)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("SubjectsByProcessInstance", err)
	}

	return subjects, nil
}

func (t *tx) SaveSubject(ctx context.Context, subject *models.Subject) error {
	if subject.ID == 0 {
		err := t.tx.QueryRowContext(ctx,
			`INSERT INTO subjects (process_instance_id, subject_model_id, user_id) VALUES ($1, $2, $3) RETURNING id`,
			subject.ProcessInstanceID, subject.SubjectModelID, subject.UserID,
		).Scan(&subject.ID)
		if err != nil {
			return persistence.NewStoreError("SaveSubject", err)
		}

		return nil
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE subjects SET user_id = $2 WHERE id = $1`, subject.ID, subject.UserID)
	if err != nil {
		return persistence.NewStoreError("SaveSubject", err)
	}

	return requireAffected(result, persistence.EntitySubject, subject.ID)
}

func (t *tx) CurrentSubjectState(ctx context.Context, subjectID int64) (*models.SubjectState, error) {
	query := `
		SELECT id, subject_id, process_instance_id, state_id, created_at
		FROM subject_states
		WHERE subject_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var s models.SubjectState

	err := t.tx.QueryRowContext(ctx, query, subjectID).Scan(
		&s.ID, &s.SubjectID, &s.ProcessInstanceID, &s.StateID, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNotFoundError(persistence.EntitySubjectState, subjectID)
		}

		return nil, persistence.NewStoreError("CurrentSubjectState", err)
	}

	return &s, nil
}

func (t *tx) AppendSubjectState(ctx context.Context, state *models.SubjectState) error {
	if state.ID != 0 {
		return fmt.Errorf("subject state %d already stored, records are append-only", state.ID)
	}

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}

	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO subject_states (subject_id, process_instance_id, state_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		state.SubjectID, state.ProcessInstanceID, state.StateID, state.CreatedAt,
	).Scan(&state.ID)
	if err != nil {
		return persistence.NewStoreError("AppendSubjectState", err)
	}

	return nil
}

func (t *tx) AfterCommit(effect txsync.Effect) error {
	if t.done {
		return txsync.ErrFinished
	}

	return t.outbox.Stage(effect)
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return persistence.ErrTxDone
	}

	t.done = true

	err := t.tx.Commit()
	if err != nil {
		t.outbox.Discard()

		return persistence.NewStoreError("Commit", err)
	}

	t.outbox.Flush(ctx)

	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}

	t.done = true

	if dropped := t.outbox.Discard(); dropped > 0 {
		t.logger.DebugContext(ctx, "discarded post-commit effects", "count", dropped)
	}

	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return persistence.NewStoreError("Rollback", err)
	}

	return nil
}

func scanProcessInstance(row scanner) (*models.ProcessInstance, error) {
	var (
		pi         models.ProcessInstance
		finishedAt sql.NullTime
	)

	err := row.Scan(&pi.ID, &pi.ProcessModelID, &pi.State, &pi.StartUserID, &pi.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		at := finishedAt.Time
		pi.FinishedAt = &at
	}

	return &pi, nil
}

func requireAffected(result sql.Result, entity string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("RowsAffected", err)
	}

	if affected == 0 {
		return persistence.NewNotFoundError(entity, id)
	}

	return nil
}
