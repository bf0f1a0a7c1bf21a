package session

import (
	"context"
	"fmt"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/metrics"
	"github.com/dtroode/puricare-client/internal/model"
)

// Sync applies session changes persisted by other contexts to a Store.
type Sync struct {
	store   *Store
	key     string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewSync creates a Sync feeding store.
func NewSync(store *Store, logger *logger.Logger, metrics *metrics.Metrics) *Sync {
	return &Sync{
		store:   store,
		key:     model.SessionKey,
		logger:  logger,
		metrics: metrics,
	}
}

// OnExternalChange handles one change event. Events for other keys are
// ignored. A removed or unreadable value signs this context out.
func (s *Sync) OnExternalChange(ev model.ChangeEvent) {
	if ev.Key != s.key {
		s.metrics.SyncEvent(metrics.ResultIgnored)
		return
	}

	if !ev.Present {
		s.store.Apply(model.Session{})
		s.metrics.SyncEvent(metrics.ResultCleared)
		s.logger.Debug("session removed by another context")
		return
	}

	sess, err := decodeSession(ev.NewValue)
	if err != nil {
		s.store.Apply(model.Session{})
		s.metrics.SyncEvent(metrics.ResultCleared)
		s.logger.Warn("external session unreadable, signing out", "error", err)
		return
	}

	s.store.Apply(sess)
	s.metrics.SyncEvent(metrics.ResultApplied)
	s.logger.Debug("session updated by another context", "authenticated", sess.Authenticated())
}

// Watch subscribes to kv's change feed. Subscribing before the store loads
// means a write landing during the initial read is still delivered.
func (s *Sync) Watch(ctx context.Context, kv model.KeyValueStore) (<-chan model.ChangeEvent, error) {
	events, err := kv.Watch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to watch session changes: %w", err)
	}
	return events, nil
}

// Attach watches kv and then bootstraps the store. The returned feed must be
// passed to Consume.
func (s *Sync) Attach(ctx context.Context, kv model.KeyValueStore, forceReauth bool) (<-chan model.ChangeEvent, model.Session, error) {
	events, err := s.Watch(ctx, kv)
	if err != nil {
		return nil, model.Session{}, err
	}
	return events, s.store.Bootstrap(ctx, forceReauth), nil
}

// Consume feeds OnExternalChange from events until ctx is done or the feed
// ends.
func (s *Sync) Consume(ctx context.Context, events <-chan model.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.OnExternalChange(ev)
		}
	}
}

// Run watches kv and consumes the feed. The store should already be loaded;
// use Attach when it is not.
func (s *Sync) Run(ctx context.Context, kv model.KeyValueStore) error {
	events, err := s.Watch(ctx, kv)
	if err != nil {
		return err
	}
	return s.Consume(ctx, events)
}
