package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
)

// Queue is the persisted list of devices registered locally and not yet
// confirmed by the backend. The list is always read and written whole.
type Queue struct {
	kv     model.KeyValueStore
	key    string
	logger *logger.Logger

	mu sync.Mutex
}

// NewQueue creates a queue stored under model.ProvisionalDevicesKey.
func NewQueue(kv model.KeyValueStore, logger *logger.Logger) *Queue {
	return &Queue{kv: kv, key: model.ProvisionalDevicesKey, logger: logger}
}

// List returns the queued devices in registration order. A missing,
// unreadable or corrupt list is empty.
func (q *Queue) List(ctx context.Context) []model.DeviceRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Append adds rec after the existing entries.
func (q *Queue) Append(ctx context.Context, rec model.DeviceRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	devices := q.load(ctx)
	for _, d := range devices {
		if d.ID == rec.ID {
			return fmt.Errorf("%w: %q", model.ErrIDCollision, rec.ID)
		}
	}
	return q.save(ctx, append(devices, rec))
}

// Remove deletes the device with id.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	devices := q.load(ctx)
	for i, d := range devices {
		if d.ID == id {
			return q.save(ctx, append(devices[:i], devices[i+1:]...))
		}
	}
	return fmt.Errorf("device %q: %w", id, model.ErrNotFound)
}

func (q *Queue) load(ctx context.Context) []model.DeviceRecord {
	data, ok, err := q.kv.Get(ctx, q.key)
	if err != nil {
		q.logger.Warn("failed to read provisional devices", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var devices []model.DeviceRecord
	if err := json.Unmarshal(data, &devices); err != nil {
		q.logger.Warn("discarding provisional devices",
			"error", fmt.Errorf("%w: %w", model.ErrPersistParse, err))
		return nil
	}
	return devices
}

func (q *Queue) save(ctx context.Context, devices []model.DeviceRecord) error {
	if devices == nil {
		devices = []model.DeviceRecord{}
	}
	data, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("failed to encode provisional devices: %w", err)
	}
	if err := q.kv.Set(ctx, q.key, data); err != nil {
		return fmt.Errorf("failed to persist provisional devices: %w", err)
	}
	return nil
}
