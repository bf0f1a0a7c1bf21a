package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/file"
	"github.com/dtroode/puricare-client/internal/storage/memory"
	"github.com/dtroode/puricare-client/internal/testutil"
)

func TestSync_OnExternalChange(t *testing.T) {
	signedIn := model.NewSession("t0", model.Profile{Name: strPtr("Park")})

	tests := []struct {
		name  string
		event model.ChangeEvent
		want  model.Session
	}{
		{
			name:  "other key ignored",
			event: model.ChangeEvent{Key: model.ProvisionalDevicesKey, NewValue: []byte(`[]`), Present: true},
			want:  signedIn,
		},
		{
			name:  "removed key clears",
			event: model.ChangeEvent{Key: model.SessionKey},
			want:  model.Session{},
		},
		{
			name:  "unparsable value clears",
			event: model.ChangeEvent{Key: model.SessionKey, NewValue: []byte("{oops"), Present: true},
			want:  model.Session{},
		},
		{
			name:  "new session applied",
			event: model.ChangeEvent{Key: model.SessionKey, NewValue: []byte(`{"idToken":"t1","profile":{"name":"Kim"}}`), Present: true},
			want:  model.NewSession("t1", model.Profile{Name: strPtr("Kim")}),
		},
		{
			name:  "null value is the empty session",
			event: model.ChangeEvent{Key: model.SessionKey, NewValue: []byte(`null`), Present: true},
			want:  model.Session{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := &failingKV{Store: memory.NewOrigin().Attach()}
			store := NewStore(kv, testutil.MakeNoopLogger(), nil)
			store.Apply(signedIn)

			NewSync(store, testutil.MakeNoopLogger(), nil).OnExternalChange(tt.event)

			assert.Equal(t, tt.want, store.Get())
			assert.Empty(t, kv.calls, "external changes must not be written back")
		})
	}
}

func TestSync_LastAppliedWins(t *testing.T) {
	store := NewStore(memory.NewOrigin().Attach(), testutil.MakeNoopLogger(), nil)
	syncer := NewSync(store, testutil.MakeNoopLogger(), nil)

	for _, v := range []string{
		`{"idToken":"t1","profile":null}`,
		`{"idToken":"t2","profile":null}`,
		`{"idToken":"t3","profile":null}`,
	} {
		syncer.OnExternalChange(model.ChangeEvent{Key: model.SessionKey, NewValue: []byte(v), Present: true})
	}

	assert.Equal(t, "t3", *store.Get().Token)
}

func runSync(t *testing.T, store *Store, kv model.KeyValueStore) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSync(store, testutil.MakeNoopLogger(), nil).Run(ctx, kv) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSync_TwoContextsConverge(t *testing.T) {
	ctx := context.Background()
	origin := memory.NewOrigin()
	kvA, kvB := origin.Attach(), origin.Attach()

	a := NewStore(kvA, testutil.MakeNoopLogger(), nil)
	b := NewStore(kvB, testutil.MakeNoopLogger(), nil)
	a.Load(ctx)
	b.Load(ctx)
	runSync(t, b, kvB)
	require.Eventually(t, func() bool { return kvB.Watchers() > 0 }, time.Second, 5*time.Millisecond)

	want := model.NewSession("t1", model.Profile{Name: strPtr("Kim")})
	a.Replace(ctx, want)

	assert.Eventually(t, func() bool {
		got := b.Get()
		return got.Token != nil && *got.Token == "t1" && got.DisplayName() == "Kim"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, b.Get())

	a.Clear(ctx)
	assert.Eventually(t, func() bool { return b.Get().IsEmpty() }, time.Second, 5*time.Millisecond)
}

func TestSync_TwoProcessesShareDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kvA, err := file.New(dir, testutil.MakeNoopLogger())
	require.NoError(t, err)
	kvB, err := file.New(dir, testutil.MakeNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = kvA.Close()
		_ = kvB.Close()
	})

	a := NewStore(kvA, testutil.MakeNoopLogger(), nil)
	b := NewStore(kvB, testutil.MakeNoopLogger(), nil)
	b.Load(ctx)

	events, err := kvB.Watch(ctx)
	require.NoError(t, err)
	syncer := NewSync(b, testutil.MakeNoopLogger(), nil)

	a.Replace(ctx, model.NewSession("t1", model.Profile{Name: strPtr("Kim")}))

	deadline := time.After(3 * time.Second)
	for b.Get().DisplayName() != "Kim" {
		select {
		case ev := <-events:
			syncer.OnExternalChange(ev)
		case <-deadline:
			t.Fatal("b never observed a's session")
		}
	}
	assert.Equal(t, "t1", *b.Get().Token)
}

func TestSync_RunStopsOnCancel(t *testing.T) {
	kv := memory.NewOrigin().Attach()
	store := NewStore(kv, testutil.MakeNoopLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSync(store, testutil.MakeNoopLogger(), nil).Run(ctx, kv) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

// racingKV runs onGet once, right after the first read returns, to land a
// write from another context between the read and any later subscription.
type racingKV struct {
	*memory.Store
	once  sync.Once
	onGet func()
}

func (r *racingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := r.Store.Get(ctx, key)
	r.once.Do(r.onGet)
	return v, ok, err
}

func TestSync_AttachCatchesWriteDuringLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin := memory.NewOrigin()
	a := NewStore(origin.Attach(), testutil.MakeNoopLogger(), nil)
	a.Load(ctx)

	kvB := &racingKV{Store: origin.Attach()}
	kvB.onGet = func() {
		a.Replace(ctx, model.NewSession("t1", model.Profile{Name: strPtr("Kim")}))
	}
	b := NewStore(kvB, testutil.MakeNoopLogger(), nil)
	syncer := NewSync(b, testutil.MakeNoopLogger(), nil)

	events, loaded, err := syncer.Attach(ctx, kvB, false)
	require.NoError(t, err)
	assert.False(t, loaded.Authenticated(), "the read happened before a's write")

	done := make(chan error, 1)
	go func() { done <- syncer.Consume(ctx, events) }()

	assert.Eventually(t, func() bool {
		got := b.Get()
		return got.Token != nil && *got.Token == "t1"
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSync_AttachForcedReauth(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewOrigin().Attach()
	require.NoError(t, kv.Set(ctx, model.SessionKey, []byte(`{"idToken":"old"}`)))

	store := NewStore(kv, testutil.MakeNoopLogger(), nil)
	_, loaded, err := NewSync(store, testutil.MakeNoopLogger(), nil).Attach(ctx, kv, true)
	require.NoError(t, err)

	assert.True(t, loaded.IsEmpty())
	assert.True(t, store.Ready())
	_, ok, err := kv.Get(ctx, model.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
