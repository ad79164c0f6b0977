package runner

import (
	"sync"

	"github.com/p0s/takopi/internal/model"
)

// Registry is the process-wide keyed registry of runners named in spec §9
// ("Dynamic dispatch over runners / transports... concrete variants
// registered in a keyed registry"). Guarded by a coarse mutex held only
// during O(1) map operations, per spec §5.
type Registry struct {
	mu      sync.Mutex
	runners map[model.EngineID]Runner
	order   []model.EngineID
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: map[model.EngineID]Runner{}}
}

// Register adds r under its EngineID. Registration order is preserved and
// used as the Auto-Router's stable tie-breaking order (spec §4.7/§8).
func (reg *Registry) Register(r Runner) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id := r.EngineID()
	if _, exists := reg.runners[id]; !exists {
		reg.order = append(reg.order, id)
	}
	reg.runners[id] = r
}

// Get looks up a runner by engine id.
func (reg *Registry) Get(id model.EngineID) (Runner, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.runners[id]
	return r, ok
}

// Ordered returns runners in stable registration order.
func (reg *Registry) Ordered() []Runner {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]Runner, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.runners[id])
	}
	return out
}

// Len reports how many runners are registered.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.runners)
}
