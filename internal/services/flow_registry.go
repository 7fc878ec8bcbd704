package services

import (
	"sync"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
)

// FlowRegistry keeps in-progress login flows between HTTP requests.
// Flows idle for longer than the TTL are treated as gone.
type FlowRegistry struct {
	mu           sync.Mutex
	flows        map[string]*LoginFlow
	orchestrator *LoginOrchestrator
	ttl          time.Duration
	now          func() time.Time
}

// NewFlowRegistry creates a registry of flows built by orchestrator
func NewFlowRegistry(orchestrator *LoginOrchestrator, ttl time.Duration) *FlowRegistry {
	return &FlowRegistry{
		flows:        make(map[string]*LoginFlow),
		orchestrator: orchestrator,
		ttl:          ttl,
		now:          time.Now,
	}
}

// Start creates and registers a new flow
func (r *FlowRegistry) Start(client models.ClientContext) *LoginFlow {
	flow := r.orchestrator.NewFlow(client)

	r.mu.Lock()
	r.flows[flow.ID()] = flow
	r.mu.Unlock()

	return flow
}

// Get returns a live flow or models.ErrFlowNotFound
func (r *FlowRegistry) Get(id string) (*LoginFlow, error) {
	r.mu.Lock()
	flow, ok := r.flows[id]
	r.mu.Unlock()

	if !ok {
		return nil, models.ErrFlowNotFound
	}
	if r.expired(flow) {
		r.Remove(id)
		return nil, models.ErrFlowNotFound
	}
	return flow, nil
}

// Remove forgets a flow
func (r *FlowRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.flows, id)
	r.mu.Unlock()
}

// Sweep removes expired flows and returns how many were dropped
func (r *FlowRegistry) Sweep() int {
	r.mu.Lock()
	candidates := make([]*LoginFlow, 0, len(r.flows))
	for _, flow := range r.flows {
		candidates = append(candidates, flow)
	}
	r.mu.Unlock()

	removed := 0
	for _, flow := range candidates {
		if r.expired(flow) {
			r.Remove(flow.ID())
			removed++
		}
	}
	return removed
}

// Len returns the number of registered flows
func (r *FlowRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func (r *FlowRegistry) expired(flow *LoginFlow) bool {
	return r.ttl > 0 && !r.now().Before(flow.LastActivity().Add(r.ttl))
}
