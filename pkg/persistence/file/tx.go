package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/txsync"
)

// tx buffers writes per collection until commit. It is used by one goroutine at a time.
type tx struct {
	persistence *Persistence
	outbox      *txsync.Outbox
	writes      map[string]map[int64][]byte
	held        []int64
	done        bool
}

func (t *tx) ProcessModelByID(_ context.Context, id int64) (*models.ProcessModel, error) {
	return load[models.ProcessModel](t, collectionProcessModels, persistence.EntityProcessModel, id)
}

func (t *tx) SaveProcessModel(_ context.Context, pm *models.ProcessModel) error {
	if pm.ID == 0 {
		pm.ID = t.persistence.nextID()
	}

	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now().UTC()
	}

	return t.stage(collectionProcessModels, pm.ID, pm)
}

func (t *tx) ProcessInstanceByID(_ context.Context, id int64) (*models.ProcessInstance, error) {
	return load[models.ProcessInstance](t, collectionProcessInstances, persistence.EntityProcessInstance, id)
}

func (t *tx) LockProcessInstance(ctx context.Context, id int64) (*models.ProcessInstance, error) {
	if t.done {
		return nil, persistence.ErrTxDone
	}

	if !t.holds(id) {
		err := t.persistence.locks.acquire(ctx, id)
		if err != nil {
			return nil, err
		}

		t.held = append(t.held, id)
	}

	return t.ProcessInstanceByID(ctx, id)
}

func (t *tx) SaveProcessInstance(_ context.Context, pi *models.ProcessInstance) error {
	if pi.ID == 0 {
		pi.ID = t.persistence.nextID()
	}

	if pi.CreatedAt.IsZero() {
		pi.CreatedAt = time.Now().UTC()
	}

	return t.stage(collectionProcessInstances, pi.ID, pi)
}

func (t *tx) ProcessInstancesByState(_ context.Context, state models.ProcessInstanceState) ([]*models.ProcessInstance, error) {
	return list(t, collectionProcessInstances, func(pi *models.ProcessInstance) bool {
		return pi.State == state
	})
}

func (t *tx) SubjectByID(_ context.Context, id int64) (*models.Subject, error) {
	return load[models.Subject](t, collectionSubjects, persistence.EntitySubject, id)
}

func (t *tx) SubjectsByProcessInstance(_ context.Context, processInstanceID int64) ([]*models.Subject, error) {
	return list(t, collectionSubjects, func(s *models.Subject) bool {
		return s.ProcessInstanceID == processInstanceID
	})
}

func (t *tx) SaveSubject(_ context.Context, subject *models.Subject) error {
	if subject.ID == 0 {
		subject.ID = t.persistence.nextID()
	}

	return t.stage(collectionSubjects, subject.ID, subject)
}

func (t *tx) CurrentSubjectState(_ context.Context, subjectID int64) (*models.SubjectState, error) {
	states, err := list(t, collectionSubjectStates, func(s *models.SubjectState) bool {
		return s.SubjectID == subjectID
	})
	if err != nil {
		return nil, err
	}

	if len(states) == 0 {
		return nil, persistence.NewNotFoundError(persistence.EntitySubjectState, subjectID)
	}

	return states[len(states)-1], nil
}

func (t *tx) AppendSubjectState(_ context.Context, state *models.SubjectState) error {
	if state.ID != 0 {
		return fmt.Errorf("subject state %d already stored, records are append-only", state.ID)
	}

	state.ID = t.persistence.nextID()

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}

	return t.stage(collectionSubjectStates, state.ID, state)
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

	err := t.publish()

	t.releaseLocks()

	if err != nil {
		t.outbox.Discard()

		return persistence.NewStoreError("Commit", err)
	}

	t.outbox.Flush(ctx)

	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}

	t.done = true
	t.writes = nil

	t.releaseLocks()

	if dropped := t.outbox.Discard(); dropped > 0 {
		t.persistence.logger.Debug("discarded post-commit effects", "count", dropped)
	}

	return nil
}

// pendingDocument is a staged write on its way to the committed store.
type pendingDocument struct {
	collection string
	id         int64
	tmp        string
	previous   []byte
	published  bool
}

// publish makes every buffered write visible or none of them. All documents
// are written to temporary files before the first rename, and a failed rename
// restores the documents already replaced.
func (t *tx) publish() error {
	t.persistence.mu.Lock()
	defer t.persistence.mu.Unlock()

	pending, err := t.prepare()
	if err != nil {
		return err
	}

	for _, doc := range pending {
		doc.previous, err = t.persistence.readCommitted(doc.collection, doc.id)
		if err == nil {
			err = os.Rename(doc.tmp, t.persistence.documentPath(doc.collection, doc.id))
			if err != nil {
				err = fmt.Errorf("failed to publish %s %d: %w", doc.collection, doc.id, err)
			}
		}

		if err != nil {
			t.undo(pending)

			return err
		}

		doc.published = true
	}

	return nil
}

// prepare writes every buffered document to a temporary file in collection
// and id order.
func (t *tx) prepare() ([]*pendingDocument, error) {
	names := make([]string, 0, len(t.writes))
	for collection := range t.writes {
		names = append(names, collection)
	}

	sort.Strings(names)

	var pending []*pendingDocument

	for _, collection := range names {
		documents := t.writes[collection]

		ids := make([]int64, 0, len(documents))
		for id := range documents {
			ids = append(ids, id)
		}

		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			tmp, err := t.persistence.writeTemp(collection, id, documents[id])
			if err != nil {
				t.undo(pending)

				return nil, err
			}

			pending = append(pending, &pendingDocument{collection: collection, id: id, tmp: tmp})
		}
	}

	return pending, nil
}

// undo removes leftover temporary files and puts back the documents a failed
// publish already replaced.
func (t *tx) undo(pending []*pendingDocument) {
	logger := t.persistence.logger

	for _, doc := range pending {
		if !doc.published {
			_ = os.Remove(doc.tmp)

			continue
		}

		var err error
		if doc.previous == nil {
			err = os.Remove(t.persistence.documentPath(doc.collection, doc.id))
		} else {
			err = t.persistence.writeDocument(doc.collection, doc.id, doc.previous)
		}

		if err != nil {
			logger.Error("failed to restore document after failed commit",
				"collection", doc.collection, "id", doc.id, "error", err)
		}
	}
}

func (t *tx) stage(collection string, id int64, v any) error {
	if t.done {
		return persistence.ErrTxDone
	}

	data, err := encode(v)
	if err != nil {
		return err
	}

	if t.writes[collection] == nil {
		t.writes[collection] = make(map[int64][]byte)
	}

	t.writes[collection][id] = data

	return nil
}

func (t *tx) holds(id int64) bool {
	for _, held := range t.held {
		if held == id {
			return true
		}
	}

	return false
}

func (t *tx) releaseLocks() {
	for _, id := range t.held {
		t.persistence.locks.release(id)
	}

	t.held = nil
}

// document returns the transaction's own write when present, otherwise the committed document.
func (t *tx) document(collection string, id int64) ([]byte, error) {
	if data, ok := t.writes[collection][id]; ok {
		return data, nil
	}

	t.persistence.mu.RLock()
	defer t.persistence.mu.RUnlock()

	return t.persistence.readCommitted(collection, id)
}

func load[T any](t *tx, collection, entity string, id int64) (*T, error) {
	if t.done {
		return nil, persistence.ErrTxDone
	}

	data, err := t.document(collection, id)
	if err != nil {
		return nil, persistence.NewStoreError("load "+entity, err)
	}

	if data == nil {
		return nil, persistence.NewNotFoundError(entity, id)
	}

	var v T

	err = json.Unmarshal(data, &v)
	if err != nil {
		return nil, persistence.NewStoreError("decode "+entity, err)
	}

	return &v, nil
}

// list decodes every visible document of a collection that satisfies keep, ordered by id.
func list[T any](t *tx, collection string, keep func(*T) bool) ([]*T, error) {
	if t.done {
		return nil, persistence.ErrTxDone
	}

	documents, err := t.snapshot(collection)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(documents))
	for id := range documents {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*T, 0)

	for _, id := range ids {
		var v T

		err := json.Unmarshal(documents[id], &v)
		if err != nil {
			return nil, persistence.NewStoreError("decode "+collection, err)
		}

		if keep(&v) {
			result = append(result, &v)
		}
	}

	return result, nil
}

func (t *tx) snapshot(collection string) (map[int64][]byte, error) {
	t.persistence.mu.RLock()

	ids, err := t.persistence.committedIDs(collection)
	if err != nil {
		t.persistence.mu.RUnlock()

		return nil, persistence.NewStoreError("list "+collection, err)
	}

	documents := make(map[int64][]byte, len(ids))

	for _, id := range ids {
		data, err := t.persistence.readCommitted(collection, id)
		if err != nil {
			t.persistence.mu.RUnlock()

			return nil, persistence.NewStoreError("list "+collection, err)
		}

		if data != nil {
			documents[id] = data
		}
	}

	t.persistence.mu.RUnlock()

	for id, data := range t.writes[collection] {
		documents[id] = data
	}

	return documents, nil
}
