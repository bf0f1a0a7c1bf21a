//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/redis"
	"github.com/dtroode/puricare-client/internal/testutil"
)

var addr string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		panic(err)
	}
	addr = fmt.Sprintf("%s:%s", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newStore(t *testing.T, origin string) *redis.Store {
	t.Helper()
	s := redis.New(goredis.NewClient(&goredis.Options{Addr: addr}),
		redis.Config{Namespace: origin, Channel: "puricare:changes"}, testutil.MakeNoopLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_TwoContexts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := newStore(t, "https://app.example")
	b := newStore(t, "https://app.example")
	other := newStore(t, "https://other.example")

	events, err := b.Watch(ctx)
	require.NoError(t, err)
	own, err := a.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, other.Set(ctx, model.SessionKey, []byte(`{"idToken":"x"}`)))
	require.NoError(t, a.Set(ctx, model.SessionKey, []byte(`{"idToken":"t1"}`)))

	select {
	case ev := <-events:
		assert.Equal(t, model.SessionKey, ev.Key)
		assert.True(t, ev.Present)
		assert.JSONEq(t, `{"idToken":"t1"}`, string(ev.NewValue))
	case <-ctx.Done():
		t.Fatal("no event for set")
	}

	require.NoError(t, a.Remove(ctx, model.SessionKey))
	select {
	case ev := <-events:
		assert.False(t, ev.Present)
	case <-ctx.Done():
		t.Fatal("no event for remove")
	}

	select {
	case ev := <-own:
		t.Fatalf("writer received its own change: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	_, ok, err := b.Get(ctx, model.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := other.Get(ctx, model.SessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"idToken":"x"}`, string(v))
}
