// Package postgres stores values in a kv_entries table and propagates
// changes with LISTEN/NOTIFY. The notification only names the key: NOTIFY
// payloads are size-limited, so listeners read the value back.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/feed"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const retryDelay = time.Second

// Listener delivers NOTIFY payloads for one channel.
type Listener interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Config configures the PostgreSQL store.
type Config struct {
	Origin  string
	Channel string
}

type notification struct {
	Sender  string `json:"sender"`
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Present bool   `json:"present"`
}

var _ model.KeyValueStore = (*Store)(nil)

// Store implements model.KeyValueStore on PostgreSQL.
type Store struct {
	db        *sql.DB
	listener  Listener
	origin    string
	channel   string
	contextID string
	logger    *logger.Logger
	feed      *feed.Feed

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a PostgreSQL store. listener may be nil if Watch is never used.
func New(db *sql.DB, listener Listener, cfg Config, logger *logger.Logger) *Store {
	return &Store{
		db:        db,
		listener:  listener,
		origin:    cfg.Origin,
		channel:   cfg.Channel,
		contextID: uuid.NewString(),
		logger:    logger,
		feed:      feed.New(),
	}
}

// Get reads key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := psq.Select("value").
		From("kv_entries").
		Where(sq.Eq{"origin": s.origin, "key": key}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building select query: %w", err)
	}

	var value []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key and notifies listeners in the same transaction.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query, args, err := psq.Insert("kv_entries").
		Columns("origin", "key", "value", "updated_at").
		Values(s.origin, key, value, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (origin, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert query: %w", err)
	}

	return s.writeAndNotify(ctx, key, true, query, args)
}

// Remove deletes key and notifies listeners in the same transaction.
func (s *Store) Remove(ctx context.Context, key string) error {
	query, args, err := psq.Delete("kv_entries").
		Where(sq.Eq{"origin": s.origin, "key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}

	return s.writeAndNotify(ctx, key, false, query, args)
}

func (s *Store) writeAndNotify(ctx context.Context, key string, present bool, query string, args []any) error {
	payload, err := json.Marshal(notification{Sender: s.contextID, Origin: s.origin, Key: key, Present: present})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", s.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify change of %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %q: %w", key, err)
	}
	return nil
}

// Watch starts the listener on first use.
func (s *Store) Watch(ctx context.Context) (<-chan model.ChangeEvent, error) {
	if s.listener == nil {
		return nil, errors.New("postgres store has no listener")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		lctx, cancel := context.WithCancel(context.Background())
		if err := s.listener.Listen(lctx, s.channel); err != nil {
			cancel()
			return nil, err
		}
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.listen(lctx)
	}

	return s.feed.Subscribe(ctx), nil
}

func (s *Store) listen(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if err := s.listener.Close(context.Background()); err != nil {
			s.logger.Warn("failed to close listener", "error", err)
		}
	}()

	for {
		payload, err := s.listener.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("waiting for notification failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		s.handle(ctx, payload)
	}
}

func (s *Store) handle(ctx context.Context, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.Warn("dropping malformed notification", "error", err)
		return
	}
	if n.Sender == s.contextID || n.Origin != s.origin {
		return
	}

	// Read the current value rather than trusting the notification order.
	value, present, err := s.Get(ctx, n.Key)
	if err != nil {
		s.logger.Warn("failed to read changed key", "key", n.Key, "error", err)
		return
	}
	s.feed.Publish(model.ChangeEvent{Key: n.Key, NewValue: value, Present: present})
}

// Close stops the listener. The *sql.DB is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.mu.Unlock()

	s.feed.Close()
	return nil
}
