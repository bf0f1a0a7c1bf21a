package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/testutil"
)

// fakeRedis is an in-memory redisAPI shared by several stores, mimicking one
// server with several connected clients.
type fakeRedis struct {
	mu       sync.Mutex
	data     map[string][]byte
	subs     map[string][]chan string
	getErr   error
	writeErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, subs: map[string][]chan string{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) publish(channel string, message []byte) {
	for _, ch := range f.subs[channel] {
		ch <- string(message)
	}
}

func (f *fakeRedis) SetAndPublish(_ context.Context, key string, value []byte, channel string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.data[key] = value
	f.publish(channel, message)
	return nil
}

func (f *fakeRedis) DelAndPublish(_ context.Context, key string, channel string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.data, key)
	f.publish(channel, message)
	return nil
}

func (f *fakeRedis) Subscribe(_ context.Context, channel string) (<-chan string, func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan string, 16)
	f.subs[channel] = append(f.subs[channel], ch)
	return ch, func() error { return nil }, nil
}

func (f *fakeRedis) Close() error { return nil }

func newStore(api redisAPI) *Store {
	return NewWithAPI(api, Config{Namespace: "home", Channel: "puricare"}, testutil.MakeNoopLogger())
}

func TestStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	api := newFakeRedis()
	s := newStore(api)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	assert.Equal(t, []byte("v"), api.data["home:k"])

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Remove(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	api := newFakeRedis()
	api.getErr = errors.New("conn refused")
	api.writeErr = errors.New("readonly")
	s := newStore(api)

	_, _, err := s.Get(ctx, "k")
	assert.ErrorContains(t, err, "conn refused")
	assert.ErrorContains(t, s.Set(ctx, "k", []byte("v")), "readonly")
	assert.ErrorContains(t, s.Remove(ctx, "k"), "readonly")
}

func TestStore_WatchBetweenContexts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := newFakeRedis()
	a, b := newStore(api), newStore(api)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	aEvents, err := a.Watch(ctx)
	require.NoError(t, err)
	bEvents, err := b.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, model.SessionKey, []byte(`{"idToken":"t1"}`)))
	require.NoError(t, a.Remove(ctx, model.SessionKey))

	for _, want := range []model.ChangeEvent{
		{Key: model.SessionKey, NewValue: []byte(`{"idToken":"t1"}`), Present: true},
		{Key: model.SessionKey, Present: false},
	} {
		select {
		case ev := <-bEvents:
			assert.Equal(t, want, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}

	select {
	case ev := <-aEvents:
		t.Fatalf("writer received its own event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_HandleDropsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newStore(newFakeRedis())
	events := s.feed.Subscribe(ctx)

	s.handle("{not json")
	msg, err := json.Marshal(message{Sender: "other", Key: "k", Present: true, Value: []byte("v")})
	require.NoError(t, err)
	s.handle(string(msg))

	select {
	case ev := <-events:
		assert.Equal(t, "k", ev.Key)
		assert.Equal(t, []byte("v"), ev.NewValue)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
