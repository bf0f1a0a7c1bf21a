package model

import "context"

// Keys used in the persisted key-value store.
const (
	SessionKey            = "purecare_auth"
	ProvisionalDevicesKey = "puricare_mock_devices"
	WelcomeKey            = "purecare_welcome"
)

// KeyValueStore is the durable, origin-scoped store shared by all contexts.
// Values are always written and removed as a whole.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// Watch streams changes made by other contexts. The channel is closed
	// when ctx is done or the store is closed.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
	Close() error
}

// ChangeEvent describes an external mutation of one key.
type ChangeEvent struct {
	Key      string
	NewValue []byte
	// Present is false when the key was removed.
	Present bool
}
