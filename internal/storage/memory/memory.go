// Package memory provides an in-process origin: a shared key-value space
// where every attached Store behaves like a separate execution context.
package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/feed"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("memory store closed")

// Origin is the shared backing space.
type Origin struct {
	mu       sync.Mutex
	data     map[string][]byte
	contexts map[*Store]struct{}
}

// NewOrigin creates an empty Origin.
func NewOrigin() *Origin {
	return &Origin{
		data:     make(map[string][]byte),
		contexts: make(map[*Store]struct{}),
	}
}

// Attach creates a new context bound to the origin.
func (o *Origin) Attach() *Store {
	s := &Store{origin: o, feed: feed.New()}

	o.mu.Lock()
	o.contexts[s] = struct{}{}
	o.mu.Unlock()

	return s
}

// broadcast runs under o.mu so every context observes one global write order.
func (o *Origin) broadcast(from *Store, ev model.ChangeEvent) {
	for s := range o.contexts {
		if s == from {
			continue
		}
		s.feed.Publish(ev)
	}
}

var _ model.KeyValueStore = (*Store)(nil)

// Store is one context's view of an Origin.
type Store struct {
	origin *Origin
	feed   *feed.Feed

	mu     sync.Mutex
	closed bool
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.isClosed() {
		return nil, false, ErrClosed
	}

	s.origin.mu.Lock()
	defer s.origin.mu.Unlock()

	v, ok := s.origin.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores value and notifies the other contexts.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.origin.mu.Lock()
	defer s.origin.mu.Unlock()

	s.origin.data[key] = bytes.Clone(value)
	s.origin.broadcast(s, model.ChangeEvent{Key: key, NewValue: bytes.Clone(value), Present: true})
	return nil
}

// Remove deletes key and notifies the other contexts.
func (s *Store) Remove(_ context.Context, key string) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.origin.mu.Lock()
	defer s.origin.mu.Unlock()

	if _, ok := s.origin.data[key]; !ok {
		return nil
	}
	delete(s.origin.data, key)
	s.origin.broadcast(s, model.ChangeEvent{Key: key, Present: false})
	return nil
}

// Watch streams writes made through other contexts of the same origin.
func (s *Store) Watch(ctx context.Context) (<-chan model.ChangeEvent, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.feed.Subscribe(ctx), nil
}

// Watchers returns the number of active Watch subscriptions.
func (s *Store) Watchers() int {
	return s.feed.Subscribers()
}

// Close detaches the context from its origin.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.origin.mu.Lock()
	delete(s.origin.contexts, s)
	s.origin.mu.Unlock()

	s.feed.Close()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
