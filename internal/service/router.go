package service

import (
	"fmt"
	"sync/atomic"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/errors"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/repository"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

// SelectionStrategy defines the interface for backend selection policies
type SelectionStrategy interface {
	// SelectBackend selects a backend from the currently available set
	SelectBackend(available []*domain.Backend) (*domain.Backend, error)
	// Name returns the strategy name
	Name() string
}

// RoundRobinStrategy implements round-robin selection over the available
// set. The cursor is shared process-wide state meaning "next index into
// whatever is currently available"; when the available set changes
// between calls the cursor may skip or repeat a backend, which is an
// accepted approximation.
type RoundRobinStrategy struct {
	cursor uint64
}

// NewRoundRobinStrategy creates a new round-robin strategy
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// SelectBackend selects the next backend using round-robin
func (s *RoundRobinStrategy) SelectBackend(available []*domain.Backend) (*domain.Backend, error) {
	if len(available) == 0 {
		return nil, fmt.Errorf("no backends available")
	}

	next := atomic.AddUint64(&s.cursor, 1)
	return available[(next-1)%uint64(len(available))], nil
}

// Name returns the strategy name
func (s *RoundRobinStrategy) Name() string {
	return string(domain.RoundRobinStrategy)
}

// LeastConnectionsStrategy selects the backend with the fewest in-flight
// requests. Ties go to the backend registered earliest, so the scan must
// keep registration order and take the first minimum.
type LeastConnectionsStrategy struct{}

// NewLeastConnectionsStrategy creates a new least-connections strategy
func NewLeastConnectionsStrategy() *LeastConnectionsStrategy {
	return &LeastConnectionsStrategy{}
}

// SelectBackend selects the backend with the least in-flight requests
func (s *LeastConnectionsStrategy) SelectBackend(available []*domain.Backend) (*domain.Backend, error) {
	if len(available) == 0 {
		return nil, fmt.Errorf("no backends available")
	}

	selected := available[0]
	min := selected.InFlight()
	for _, b := range available[1:] {
		if n := b.InFlight(); n < min {
			selected = b
			min = n
		}
	}
	return selected, nil
}

// Name returns the strategy name
func (s *LeastConnectionsStrategy) Name() string {
	return string(domain.LeastConnectionsStrategy)
}

// Router selects a target backend for each request, honoring sticky
// affinity before falling back to the configured policy.
type Router struct {
	pool     *repository.ServerPool
	codec    *AffinityCodec
	strategy SelectionStrategy
	logger   *logger.Logger

	stickyHits    int64
	policySelects int64
	unavailable   int64
}

// NewRouter creates a router with the configured selection strategy
func NewRouter(
	strategy domain.Strategy,
	pool *repository.ServerPool,
	codec *AffinityCodec,
	log *logger.Logger,
) (*Router, error) {
	r := &Router{
		pool:   pool,
		codec:  codec,
		logger: log.RouterLogger(),
	}

	switch strategy {
	case domain.RoundRobinStrategy, "":
		r.strategy = NewRoundRobinStrategy()
	case domain.LeastConnectionsStrategy:
		r.strategy = NewLeastConnectionsStrategy()
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidStrategy, "router",
			fmt.Sprintf("unsupported selection strategy: %s", strategy))
	}

	r.logger.Infof("Selection strategy set to: %s", r.strategy.Name())
	return r, nil
}

// Select picks a backend for a request. If the affinity token decodes to
// a known, currently available backend that backend wins (sticky
// override) and fresh=false. Otherwise the configured policy runs over
// the available set and fresh=true, signaling the caller to attach a new
// affinity token to the response.
//
// An empty available set is the normal no-backend outcome, surfaced as
// a NO_BACKENDS_AVAILABLE error for the boundary to map to 503.
func (r *Router) Select(affinityToken string) (backend *domain.Backend, fresh bool, err error) {
	if affinityToken != "" {
		if identity, ok := r.codec.Decode(affinityToken); ok {
			if b, found := r.pool.FindByIdentity(identity); found && b.IsAvailable() {
				atomic.AddInt64(&r.stickyHits, 1)
				r.logger.WithField("backend", b.Identity).Debug("Sticky affinity honored")
				return b, false, nil
			}
		}
		// Invalid token or bound backend gone: fall through to policy.
	}

	available := r.pool.Available()
	if len(available) == 0 {
		atomic.AddInt64(&r.unavailable, 1)
		return nil, false, errors.NewError(errors.ErrCodeNoBackends, "router",
			"no available backends in pool")
	}

	b, err := r.strategy.SelectBackend(available)
	if err != nil {
		atomic.AddInt64(&r.unavailable, 1)
		return nil, false, errors.NewErrorWithCause(errors.ErrCodeNoBackends, "router",
			"strategy failed to select a backend", err)
	}

	atomic.AddInt64(&r.policySelects, 1)
	r.logger.WithField("backend", b.Identity).
		WithField("strategy", r.strategy.Name()).
		Debug("Selected backend for request")
	return b, true, nil
}

// EncodeAffinity produces a fresh affinity token for a backend identity.
func (r *Router) EncodeAffinity(identity string) (string, error) {
	return r.codec.Encode(identity)
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"strategy":          r.strategy.Name(),
		"sticky_hits":       atomic.LoadInt64(&r.stickyHits),
		"policy_selections": atomic.LoadInt64(&r.policySelects),
		"unavailable":       atomic.LoadInt64(&r.unavailable),
	}
}
