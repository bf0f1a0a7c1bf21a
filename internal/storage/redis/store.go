// Package redis stores values in Redis and propagates changes through a
// pub/sub channel. Every write is a MULTI/EXEC of the value update and the
// notification, so subscribers never see a notification for a write that
// didn't happen.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/feed"
)

// redisAPI is the subset of Redis used by the store; it allows tests to run
// without a server.
type redisAPI interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetAndPublish(ctx context.Context, key string, value []byte, channel string, message []byte) error
	DelAndPublish(ctx context.Context, key string, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error)
	Close() error
}

type clientWrapper struct{ c *goredis.Client }

func (w clientWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	return w.c.Get(ctx, key).Bytes()
}

func (w clientWrapper) SetAndPublish(ctx context.Context, key string, value []byte, channel string, message []byte) error {
	_, err := w.c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, value, 0)
		p.Publish(ctx, channel, message)
		return nil
	})
	return err
}

func (w clientWrapper) DelAndPublish(ctx context.Context, key string, channel string, message []byte) error {
	_, err := w.c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, key)
		p.Publish(ctx, channel, message)
		return nil
	})
	return err
}

func (w clientWrapper) Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error) {
	ps := w.c.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no write is missed after Watch returns.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, ps.Close, nil
}

func (w clientWrapper) Close() error {
	return w.c.Close()
}

// message is the pub/sub payload. It carries the whole value so receivers
// don't need a second round trip.
type message struct {
	Sender  string `json:"sender"`
	Key     string `json:"key"`
	Present bool   `json:"present"`
	Value   []byte `json:"value,omitempty"`
}

// Config configures the Redis store.
type Config struct {
	// Namespace prefixes every key, scoping the store to one origin.
	Namespace string
	// Channel is the pub/sub channel prefix; the namespace is appended.
	Channel string
}

var _ model.KeyValueStore = (*Store)(nil)

// Store is a Redis-backed key-value store.
type Store struct {
	api       redisAPI
	namespace string
	channel   string
	contextID string
	logger    *logger.Logger
	feed      *feed.Feed

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a store using a real Redis client.
func New(client *goredis.Client, cfg Config, logger *logger.Logger) *Store {
	return NewWithAPI(clientWrapper{c: client}, cfg, logger)
}

// NewWithAPI allows injecting a fake Redis (used in tests).
func NewWithAPI(api redisAPI, cfg Config, logger *logger.Logger) *Store {
	return &Store{
		api:       api,
		namespace: cfg.Namespace,
		channel:   cfg.Channel + ":" + cfg.Namespace,
		contextID: uuid.NewString(),
		logger:    logger,
		feed:      feed.New(),
	}
}

func (s *Store) redisKey(key string) string {
	return s.namespace + ":" + key
}

// Get reads key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.api.Get(ctx, s.redisKey(key))
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return v, true, nil
}

// Set replaces key and announces the new value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	msg, err := json.Marshal(message{Sender: s.contextID, Key: key, Present: true, Value: value})
	if err != nil {
		return fmt.Errorf("failed to encode change message: %w", err)
	}
	if err := s.api.SetAndPublish(ctx, s.redisKey(key), value, s.channel, msg); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key and announces the removal.
func (s *Store) Remove(ctx context.Context, key string) error {
	msg, err := json.Marshal(message{Sender: s.contextID, Key: key, Present: false})
	if err != nil {
		return fmt.Errorf("failed to encode change message: %w", err)
	}
	if err := s.api.DelAndPublish(ctx, s.redisKey(key), s.channel, msg); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Watch subscribes to the change channel on first use.
func (s *Store) Watch(ctx context.Context) (<-chan model.ChangeEvent, error) {
	if err := s.startSubscriber(); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx), nil
}

func (s *Store) startSubscriber() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	payloads, closeFn, err := s.api.Subscribe(ctx, s.channel)
	if err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		defer func() {
			if err := closeFn(); err != nil {
				s.logger.Warn("failed to close redis subscription", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-payloads:
				if !ok {
					return
				}
				s.handle(p)
			}
		}
	}()
	return nil
}

func (s *Store) handle(payload string) {
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.logger.Warn("dropping malformed change message", "error", err)
		return
	}
	if msg.Sender == s.contextID {
		return
	}

	ev := model.ChangeEvent{Key: msg.Key, Present: msg.Present}
	if msg.Present {
		ev.NewValue = msg.Value
	}
	s.feed.Publish(ev)
}

// Close stops the subscriber and closes the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.mu.Unlock()

	s.feed.Close()
	return s.api.Close()
}
