package agents

import (
	"context"
	"sync"

	"github.com/sentinelai/sentinel/pkg/router"
)

// Request is one dispatched command plus the recent-activity context
// the agent should read before acting.
type Request struct {
	SessionID string
	Command   string
	Context   string
}

// Response is what an agent hands back: the text to speak and the
// capabilities it actually invoked while handling the request.
type Response struct {
	Speech       string
	Capabilities []string
}

// CapabilitySet is a worker agent: a named bundle of capabilities
// behind a single Handle entry point.
type CapabilitySet interface {
	Name() string
	Capabilities() []string
	Handle(ctx context.Context, req Request) (Response, error)
}

// Registry maps routing labels to capability sets.
type Registry struct {
	mu     sync.RWMutex
	agents map[router.Label]CapabilitySet
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[router.Label]CapabilitySet)}
}

func (r *Registry) Register(label router.Label, cs CapabilitySet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[label] = cs
}

func (r *Registry) Lookup(label router.Label) (CapabilitySet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.agents[label]
	return cs, ok
}

// Labels returns the registered labels in no particular order.
func (r *Registry) Labels() []router.Label {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]router.Label, 0, len(r.agents))
	for l := range r.agents {
		out = append(out, l)
	}
	return out
}

// dedupe keeps the first occurrence of each capability, preserving
// first-seen order.
func dedupe(caps []string) []string {
	seen := make(map[string]struct{}, len(caps))
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
