package dispatch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/sbpm/pkg/messages"
)

// probes are representative messages of every kind, used to detect factories
// that would compete for the same messages.
var probes = []messages.Message{
	messages.StartProcess{},
	messages.InitializeSubject{},
	messages.AdvanceSubject{},
	messages.CheckCompletion{},
}

// Registry holds the task factories and selects the single one accepting a message.
type Registry struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	factories []TaskFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("module", "dispatch_registry"),
	}
}

// Register adds a factory. Factory IDs must be unique. Overlap with an
// existing factory is allowed but logged, since routing such messages fails.
func (r *Registry) Register(factory TaskFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.factories {
		if existing.ID() == factory.ID() {
			return fmt.Errorf("task factory %q already registered", factory.ID())
		}

		for _, probe := range probes {
			if existing.CanHandle(probe) && factory.CanHandle(probe) {
				r.logger.Warn("task factories overlap",
					"kind", probe.Kind(),
					"factory", factory.ID(),
					"existing", existing.ID())
			}
		}
	}

	r.factories = append(r.factories, factory)

	return nil
}

// Route returns the only factory accepting msg. It fails with ErrNoTask when
// none does and with an AmbiguousDispatchError when several do.
//
// nolint:ireturn // factories are registered by interface
func (r *Registry) Route(msg messages.Message) (TaskFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []TaskFactory

	for _, factory := range r.factories {
		if factory.CanHandle(msg) {
			matches = append(matches, factory)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoTask, msg.Kind())
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, 0, len(matches))
		for _, factory := range matches {
			candidates = append(candidates, factory.ID())
		}

		return nil, &AmbiguousDispatchError{Kind: msg.Kind(), Candidates: candidates}
	}
}

// FactoryIDs returns the registered factory IDs in registration order.
func (r *Registry) FactoryIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for _, factory := range r.factories {
		ids = append(ids, factory.ID())
	}

	return ids
}
