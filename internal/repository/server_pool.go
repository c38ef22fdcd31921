package repository

import (
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
)

// ServerPool holds the static set of backend descriptors. The set is
// fixed at construction; only availability and in-flight counters change
// at runtime. Registration order is preserved because both round-robin
// cycling and the least-connections tie-break depend on it.
type ServerPool struct {
	backends []*domain.Backend
	byID     map[string]*domain.Backend
}

// NewServerPool creates a pool from the configured backends, preserving
// their registration order.
func NewServerPool(backends []*domain.Backend) *ServerPool {
	byID := make(map[string]*domain.Backend, len(backends))
	for _, b := range backends {
		byID[b.Identity] = b
	}
	return &ServerPool{
		backends: backends,
		byID:     byID,
	}
}

// List returns all backends in registration order. The returned slice
// must not be mutated by callers.
func (p *ServerPool) List() []*domain.Backend {
	return p.backends
}

// Available returns the currently available backends in registration order.
func (p *ServerPool) Available() []*domain.Backend {
	available := make([]*domain.Backend, 0, len(p.backends))
	for _, b := range p.backends {
		if b.IsAvailable() {
			available = append(available, b)
		}
	}
	return available
}

// FindByIdentity returns the backend with the given identity, or false
// if the identity was never registered.
func (p *ServerPool) FindByIdentity(identity string) (*domain.Backend, bool) {
	b, ok := p.byID[identity]
	return b, ok
}

// SetAvailable updates a backend's availability. Unknown identities are
// a no-op.
func (p *ServerPool) SetAvailable(identity string, available bool) {
	if b, ok := p.byID[identity]; ok {
		b.SetAvailable(available)
	}
}

// IncrementInFlight increments the in-flight count for a backend.
// Unknown identities are a no-op.
func (p *ServerPool) IncrementInFlight(identity string) {
	if b, ok := p.byID[identity]; ok {
		b.IncrementInFlight()
	}
}

// DecrementInFlight decrements the in-flight count for a backend.
// Unknown identities are a no-op.
func (p *ServerPool) DecrementInFlight(identity string) {
	if b, ok := p.byID[identity]; ok {
		b.DecrementInFlight()
	}
}

// Count returns the total number of registered backends.
func (p *ServerPool) Count() int {
	return len(p.backends)
}
