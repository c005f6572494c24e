package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// Built-in stage names.
const (
	StageWhitelistCheck     = "WhitelistCheck"
	StageContentSafetyCheck = "ContentSafetyCheck"
	StageRateLimit          = "RateLimit"
	StageSessionStatusCheck = "SessionStatusCheck"
	StageWakingCheck        = "WakingCheck"
	StageProcess            = "Process"
	StageResultDecorate     = "ResultDecorate"
	StageRespond            = "Respond"
)

// DefaultOrder is the built-in chain.
var DefaultOrder = []string{
	StageWhitelistCheck,
	StageContentSafetyCheck,
	StageRateLimit,
	StageSessionStatusCheck,
	StageWakingCheck,
	StageProcess,
	StageResultDecorate,
	StageRespond,
}

// StageFactory builds a stage instance.
type StageFactory func() ports.Stage

// Registry maps stage names to factories. It is populated explicitly at
// startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StageFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StageFactory)}
}

// Register adds a factory. Registering a name twice is an error.
func (r *Registry) Register(name string, factory StageFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("stage %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// IsRegistered checks if a stage name has a factory.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns all registered stage names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named stages in order. An empty list means
// DefaultOrder.
func (r *Registry) Build(names []string) ([]ports.Stage, error) {
	if len(names) == 0 {
		names = DefaultOrder
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stages := make([]ports.Stage, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("building pipeline: %w",
				domain.ErrNotFound(domain.ErrorCodeUnknownStage, fmt.Sprintf("stage %q is not registered", name)))
		}
		stages = append(stages, factory())
	}
	return stages, nil
}
