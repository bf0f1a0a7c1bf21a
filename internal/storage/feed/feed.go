// Package feed fans change events out to watchers. Every subscriber gets its
// own unbounded FIFO, so a slow reader never blocks a writer and events are
// delivered in publish order.
package feed

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/dtroode/puricare-client/internal/model"
)

// Feed is a multi-subscriber event stream.
type Feed struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// New creates an empty Feed.
func New() *Feed {
	return &Feed{subs: make(map[*subscriber]struct{})}
}

// Subscribe returns a channel receiving every event published after the call.
// The channel is closed when ctx is done or the feed is closed.
func (f *Feed) Subscribe(ctx context.Context) <-chan model.ChangeEvent {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan model.ChangeEvent),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.out)
		return sub.out
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.run(ctx, f)
	return sub.out
}

// Publish enqueues ev for every current subscriber.
func (f *Feed) Publish(ev model.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		sub.push(ev)
	}
}

// Subscribers returns the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close terminates all subscriptions. Later subscriptions get a closed channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		close(sub.done)
	}
	f.subs = map[*subscriber]struct{}{}
}

func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
}

type subscriber struct {
	mu      sync.Mutex
	pending []model.ChangeEvent
	wake    chan struct{}
	out     chan model.ChangeEvent
	done    chan struct{}
}

func (s *subscriber) push(ev model.ChangeEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) next() (model.ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return model.ChangeEvent{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

func (s *subscriber) run(ctx context.Context, f *Feed) {
	defer close(s.out)
	defer f.remove(s)

	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- ev:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Versions remembers the last known content of each key. Backends whose
// change feed can't tell who made a write use it to drop echoes of their own
// writes and repeated notifications for the same content.
type Versions struct {
	mu   sync.Mutex
	seen map[string]version
}

type version struct {
	present bool
	sum     [sha256.Size]byte
}

// NewVersions creates an empty Versions set.
func NewVersions() *Versions {
	return &Versions{seen: make(map[string]version)}
}

// Record stores the current content of key.
func (v *Versions) Record(key string, value []byte, present bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen[key] = newVersion(value, present)
}

// Changed records the content and reports whether it differs from what was
// last recorded for key.
func (v *Versions) Changed(key string, value []byte, present bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := newVersion(value, present)
	prev, ok := v.seen[key]
	v.seen[key] = next
	return !ok || prev != next
}

func newVersion(value []byte, present bool) version {
	if !present {
		return version{}
	}
	return version{present: true, sum: sha256.Sum256(value)}
}
