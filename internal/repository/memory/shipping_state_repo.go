package memoryrepo

import (
	"context"
	"sync"

	"shipzone-sync/internal/domain"
)

type shippingStateRepository struct {
	mu     sync.RWMutex
	states map[string]*domain.ShippingState
}

// NewShippingStateRepository keeps state in process memory. Values are
// cloned on the way in and out so callers never share zone trees.
func NewShippingStateRepository() domain.ShippingStateRepository {
	return &shippingStateRepository{
		states: make(map[string]*domain.ShippingState),
	}
}

func (r *shippingStateRepository) Get(ctx context.Context, siteID string) (*domain.ShippingState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[siteID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return st.Clone(), nil
}

func (r *shippingStateRepository) Save(ctx context.Context, state *domain.ShippingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.SiteID] = state.Clone()
	return nil
}
