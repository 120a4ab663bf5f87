package services

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by Refresh when a newer refresh for the same
// owner started before this one finished. Its result was not committed.
var ErrSuperseded = errors.New("refresh superseded by a newer one")

// ViewRefresher recomputes a per-owner view and keeps the last committed
// one. Overlapping refreshes resolve last-write-wins by start order: only
// the most recently started refresh may commit.
type ViewRefresher[T any] struct {
	load func(ctx context.Context, ownerID string) (T, error)

	mu  sync.Mutex
	seq uint64
	// pending holds only owners with a refresh in flight.
	pending map[string]*pendingRefresh
	views   map[string]T
}

type pendingRefresh struct {
	latest   uint64
	inflight int
}

func NewViewRefresher[T any](load func(ctx context.Context, ownerID string) (T, error)) *ViewRefresher[T] {
	return &ViewRefresher[T]{
		load:    load,
		pending: make(map[string]*pendingRefresh),
		views:   make(map[string]T),
	}
}

// Refresh loads a fresh view of owner and commits it unless superseded.
// A failed load leaves the committed view untouched.
func (r *ViewRefresher[T]) Refresh(ctx context.Context, ownerID string) (T, error) {
	r.mu.Lock()
	p, ok := r.pending[ownerID]
	if !ok {
		p = &pendingRefresh{}
		r.pending[ownerID] = p
	}
	r.seq++
	gen := r.seq
	p.latest = gen
	p.inflight++
	r.mu.Unlock()

	v, err := r.load(ctx, ownerID)

	r.mu.Lock()
	defer r.mu.Unlock()
	superseded := p.latest != gen
	if p.inflight--; p.inflight == 0 {
		delete(r.pending, ownerID)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	if superseded {
		return v, ErrSuperseded
	}
	r.views[ownerID] = v
	return v, nil
}

// Current returns the last committed view of owner.
func (r *ViewRefresher[T]) Current(ownerID string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[ownerID]
	return v, ok
}

// Forget drops the committed view of owner, for example on sign-out.
// Refreshes still in flight are superseded.
func (r *ViewRefresher[T]) Forget(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[ownerID]; ok {
		r.seq++
		p.latest = r.seq
	}
	delete(r.views, ownerID)
}

// tracked reports how many owners hold refresher state.
func (r *ViewRefresher[T]) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending) + len(r.views)
}
