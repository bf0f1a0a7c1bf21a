// Package file persists each key as one JSON file inside an origin directory
// and uses fsnotify to observe writes made by other processes.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/feed"
)

const (
	fileSuffix = ".json"
	tempPrefix = ".tmp-"
)

var _ model.KeyValueStore = (*Store)(nil)

// Store is a directory-backed key-value store.
type Store struct {
	dir    string
	logger *logger.Logger

	// writeMu orders this process's writes against re-reads of watch events.
	writeMu  sync.Mutex
	versions *feed.Versions
	feed     *feed.Feed

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New opens (creating if needed) the origin directory.
func New(dir string, logger *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	return &Store{
		dir:      dir,
		logger:   logger,
		versions: feed.NewVersions(),
		feed:     feed.New(),
	}, nil
}

// Get reads the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return data, true, nil
}

// Set replaces the value of key. The file is written to a temporary name
// and renamed into place, so readers never see a partial value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %q: %w", key, err)
	}

	s.versions.Record(key, value, true)
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("failed to replace %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(_ context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.versions.Record(key, nil, false)
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Watch starts the directory watcher on first use and subscribes to it.
func (s *Store) Watch(ctx context.Context) (<-chan model.ChangeEvent, error) {
	if err := s.startWatcher(); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx), nil
}

// Close stops the watcher and ends all subscriptions.
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
		<-s.done
		s.watcher = nil
	}
	s.feed.Close()
	return err
}

func (s *Store) startWatcher() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	s.watcher = w
	s.done = make(chan struct{})
	go s.loop(w, s.done)
	return nil
}

func (s *Store) loop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file store watcher error", "dir", s.dir, "error", err)
		}
	}
}

func (s *Store) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	key, ok := keyFromFile(filepath.Base(ev.Name))
	if !ok {
		return
	}

	// The event only says "something happened"; the file is the truth.
	s.writeMu.Lock()
	value, present, err := s.Get(context.Background(), key)
	if err != nil {
		s.writeMu.Unlock()
		s.logger.Warn("failed to read changed key", "key", key, "error", err)
		return
	}
	changed := s.versions.Changed(key, value, present)
	s.writeMu.Unlock()
	if !changed {
		return
	}

	s.feed.Publish(model.ChangeEvent{Key: key, NewValue: value, Present: present})
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileSuffix)
}

func keyFromFile(name string) (string, bool) {
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}
	return key, true
}
