package agents

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry binds each agent identifier to exactly one capability
// implementation. The binding is process-wide static configuration:
// agents are registered once at startup and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	agents map[AgentID]Agent
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[AgentID]Agent),
		logger: logger,
	}
}

// Register binds an agent to its identifier. Registering outside the closed
// identifier set or rebinding an identifier is a configuration error.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("registry: nil agent")
	}
	id := a.ID()
	if !id.Valid() {
		return fmt.Errorf("registry: unknown agent id %q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("registry: agent %q already registered", id)
	}
	r.agents[id] = a
	r.logger.Info("Registered agent", zap.String("agent_id", id.String()))
	return nil
}

// Get returns the agent bound to id.
func (r *Registry) Get(id AgentID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns the registered identifiers in canonical order.
func (r *Registry) IDs() []AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentID, 0, len(r.agents))
	for _, id := range AllAgentIDs() {
		if _, ok := r.agents[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
