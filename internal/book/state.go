// Package book holds the latest order book snapshot shared between the feed
// and the estimator.
package book

import (
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// UpdateHandler is called after each publish with the new snapshot.
type UpdateHandler func(*domain.OrderbookSnapshot)

// State is a single-writer, multi-reader holder of the current snapshot.
// Publish swaps a pointer, so readers see either the previous snapshot or
// the new one in full. Snapshots must not be modified after Publish.
type State struct {
	current atomic.Pointer[domain.OrderbookSnapshot]
	version atomic.Uint64

	mu       sync.Mutex
	nextID   uint64
	handlers atomic.Pointer[[]subscriber]
}

type subscriber struct {
	id uint64
	fn UpdateHandler
}

// NewState returns an empty State.
func NewState() *State {
	s := &State{}
	s.handlers.Store(&[]subscriber{})
	return s
}

// Publish replaces the current snapshot and then calls every subscriber, in
// registration order, on the calling goroutine. A nil snapshot is ignored.
func (s *State) Publish(snap *domain.OrderbookSnapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
	s.version.Add(1)

	for _, sub := range *s.handlers.Load() {
		sub.fn(snap)
	}
}

// Current returns the latest snapshot, or false before the first Publish.
func (s *State) Current() (*domain.OrderbookSnapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// Version counts publishes so far.
func (s *State) Version() uint64 {
	return s.version.Load()
}

// Subscribe registers fn for every later publish and returns a function that
// removes it. Handlers run inline with the feed, so they must not block.
func (s *State) Subscribe(fn UpdateHandler) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	old := *s.handlers.Load()
	next := make([]subscriber, len(old), len(old)+1)
	copy(next, old)
	next = append(next, subscriber{id: id, fn: fn})
	s.handlers.Store(&next)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *State) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.handlers.Load()
	next := make([]subscriber, 0, len(old))
	for _, sub := range old {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	s.handlers.Store(&next)
}
