// Package session keeps the identity session of one context in memory,
// persists it as a single value and converges it with other contexts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/metrics"
	"github.com/dtroode/puricare-client/internal/model"
)

// State is the readiness of a Store.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener is called with every session value applied to a Store.
type Listener func(model.Session)

// Store owns the session of one context.
//
// Reads are served from memory. Replace and Clear write through to the
// key-value store; Apply only changes memory and is used for values that
// another context already persisted.
type Store struct {
	kv      model.KeyValueStore
	key     string
	logger  *logger.Logger
	metrics *metrics.Metrics

	// writeMu orders mutations and listener calls within this context.
	writeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	current   model.Session
	listeners map[int]Listener
	nextID    int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewStore creates an uninitialized store persisting under model.SessionKey.
func NewStore(kv model.KeyValueStore, logger *logger.Logger, metrics *metrics.Metrics) *Store {
	return &Store{
		kv:        kv,
		key:       model.SessionKey,
		logger:    logger,
		metrics:   metrics,
		listeners: make(map[int]Listener),
		ready:     make(chan struct{}),
	}
}

// Get returns a copy of the current session.
func (s *Store) Get() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// State returns the readiness state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the persisted session has been loaded, even if it
// turned out to be empty.
func (s *Store) Ready() bool {
	return s.State() == StateReady
}

// Readiness returns a channel closed once the store becomes ready.
func (s *Store) Readiness() <-chan struct{} {
	return s.ready
}

// Load reads the persisted session. A missing, unreadable or corrupt value
// loads as the empty session; the store is ready afterwards either way.
func (s *Store) Load(ctx context.Context) model.Session {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.state == StateUninitialized {
		s.state = StateLoading
	}
	s.mu.Unlock()

	next := s.read(ctx)
	s.set(next)
	s.markReady()
	s.notify(next)

	return next.Clone()
}

// Bootstrap prepares the store on startup. With forceReauth the persisted
// session is removed before anything is read, so a stale identity can never
// be observed.
func (s *Store) Bootstrap(ctx context.Context, forceReauth bool) model.Session {
	if !forceReauth {
		return s.Load(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.remove(ctx)
	s.set(model.Session{})
	s.markReady()
	s.notify(model.Session{})

	return model.Session{}
}

// Replace swaps the session in memory and persists it as one value.
// Persistence failures are logged; the in-memory value stays replaced.
func (s *Store) Replace(ctx context.Context, next model.Session) {
	next = next.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.set(next)
	s.persist(ctx, next)
	s.notify(next)
}

// Clear signs out: the in-memory session becomes empty and the persisted
// key is removed.
func (s *Store) Clear(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.set(model.Session{})
	s.remove(ctx)
	s.notify(model.Session{})
}

// Apply sets the in-memory session without persisting it.
func (s *Store) Apply(next model.Session) {
	next = next.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.set(next)
	s.notify(next)
}

// Subscribe registers fn for every applied session and returns a function
// removing it. fn runs synchronously and must not mutate the store.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) read(ctx context.Context) model.Session {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("failed to read persisted session", "error", err)
		return model.Session{}
	}
	if !ok {
		return model.Session{}
	}

	sess, err := decodeSession(data)
	if err != nil {
		s.logger.Warn("discarding persisted session", "error", err)
		return model.Session{}
	}
	return sess
}

func (s *Store) persist(ctx context.Context, sess model.Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		s.metrics.SessionWrite(metrics.ResultError)
		s.logger.Error("failed to encode session", "error", err)
		return
	}

	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.metrics.SessionWrite(metrics.ResultError)
		s.logger.Error("failed to persist session", "error", err)
		return
	}
	s.metrics.SessionWrite(metrics.ResultOK)
}

func (s *Store) remove(ctx context.Context) {
	if err := s.kv.Remove(ctx, s.key); err != nil {
		s.metrics.SessionWrite(metrics.ResultError)
		s.logger.Error("failed to remove persisted session", "error", err)
		return
	}
	s.metrics.SessionWrite(metrics.ResultOK)
}

func (s *Store) set(next model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
}

func (s *Store) markReady() {
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Store) notify(sess model.Session) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(sess.Clone())
	}
}

func decodeSession(data []byte) (model.Session, error) {
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return model.Session{}, fmt.Errorf("%w: %w", model.ErrPersistParse, err)
	}
	return sess, nil
}
