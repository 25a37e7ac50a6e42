// Package file provides a file-based persistence implementation for process models and instances.
//
// Every entity is a JSON document under <root>/<collection>/<id>.json.
// Transactions buffer their writes in memory. Commit writes every document to
// a temporary file first and then renames them into place, restoring the
// previous documents if a rename fails, so other transactions only ever
// observe fully committed transactions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/txsync"
)

const (
	collectionProcessModels    = "process_models"
	collectionProcessInstances = "process_instances"
	collectionSubjects         = "subjects"
	collectionSubjectStates    = "subject_states"
	collectionEventLogs        = "event_logs"
)

var collections = []string{
	collectionProcessModels,
	collectionProcessInstances,
	collectionSubjects,
	collectionSubjectStates,
	collectionEventLogs,
}

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root   string
	logger *slog.Logger

	// mu guards the committed documents: readers hold it shared, commits exclusively.
	mu       sync.RWMutex
	sequence atomic.Int64
	locks    *instanceLocks

	eventLogs *EventLogRepository
}

// NewPersistence opens (and creates if needed) a file store rooted at root.
func NewPersistence(root string, logger *slog.Logger) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if logger == nil {
		logger = slog.Default()
	}

	p := &Persistence{
		root:   cleanRoot,
		logger: logger.With("module", "file_persistence"),
		locks:  newInstanceLocks(),
	}

	var maxID int64

	for _, collection := range collections {
		err := os.MkdirAll(filepath.Join(cleanRoot, collection), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", collection, err)
		}

		ids, err := p.committedIDs(collection)
		if err != nil {
			return nil, err
		}

		if len(ids) > 0 && ids[len(ids)-1] > maxID {
			maxID = ids[len(ids)-1]
		}
	}

	p.sequence.Store(maxID)
	p.eventLogs = &EventLogRepository{persistence: p}

	return p, nil
}

// BeginTx opens a new unit of work.
func (fp *Persistence) BeginTx(_ context.Context) (persistence.Tx, error) {
	return &tx{
		persistence: fp,
		outbox:      txsync.NewOutbox(fp.logger),
		writes:      make(map[string]map[int64][]byte),
	}, nil
}

// EventLogRepository returns the event-log repository of the store.
func (fp *Persistence) EventLogRepository() persistence.EventLogRepository {
	return fp.eventLogs
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) nextID() int64 {
	return fp.sequence.Add(1)
}

func (fp *Persistence) documentPath(collection string, id int64) string {
	return filepath.Join(fp.root, collection, strconv.FormatInt(id, 10)+".json")
}

// readCommitted returns the committed document, or nil when it does not exist.
// Callers hold fp.mu.
func (fp *Persistence) readCommitted(collection string, id int64) ([]byte, error) {
	data, err := os.ReadFile(fp.documentPath(collection, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s %d: %w", collection, id, err)
	}

	return data, nil
}

// committedIDs lists the ids stored in a collection in ascending order.
func (fp *Persistence) committedIDs(collection string) ([]int64, error) {
	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(fp.root, collection)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", collection, err)
	}

	ids := make([]int64, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id, err := strconv.ParseInt(strings.TrimSuffix(file, ".json"), 10, 64)
		if err != nil {
			fp.logger.Warn("ignoring unexpected file", "collection", collection, "file", file)

			continue
		}

		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// writeDocument replaces a document atomically. Callers hold fp.mu exclusively.
func (fp *Persistence) writeDocument(collection string, id int64, data []byte) error {
	tmp, err := fp.writeTemp(collection, id, data)
	if err != nil {
		return err
	}

	err = os.Rename(tmp, fp.documentPath(collection, id))
	if err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to publish %s %d: %w", collection, id, err)
	}

	return nil
}

// writeTemp writes data to a temporary file next to the document and returns
// its path. The file is not visible to readers until it is renamed.
func (fp *Persistence) writeTemp(collection string, id int64, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Join(fp.root, collection), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write %s %d: %w", collection, id, err)
	}

	return tmp.Name(), nil
}

func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	return data, nil
}

// instanceLocks hands out one exclusive lock per process instance. Locks are
// channels so waiting honors context cancellation.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[int64]chan struct{})}
}

func (l *instanceLocks) acquire(ctx context.Context, id int64) error {
	l.mu.Lock()

	lock, ok := l.locks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		l.locks[id] = lock
	}

	l.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to lock process instance %d: %w", id, ctx.Err())
	}
}

func (l *instanceLocks) release(id int64) {
	l.mu.Lock()
	lock := l.locks[id]
	l.mu.Unlock()

	<-lock
}
