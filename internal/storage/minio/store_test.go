package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/testutil"
)

// fakeMinio implements minioAPI for testing without network. Several stores
// may share one fake to act as separate contexts of the same bucket.
type fakeMinio struct {
	mu sync.Mutex

	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      bool

	objects   map[string][]byte
	putErr    error
	getErr    error
	removeErr error

	listeners []chan notification.Info
}

func newFakeMinio() *fakeMinio {
	return &fakeMinio{bucketExists: true, objects: map[string][]byte{}}
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}
func (f *fakeMinio) MakeBucket(_ context.Context, _ string, _ minioLib.MakeBucketOptions) error {
	if f.makeBucketErr != nil {
		return f.makeBucketErr
	}
	f.madeBucket = true
	return nil
}
func (f *fakeMinio) PutObject(_ context.Context, _ string, name string, r io.Reader, _ int64, _ minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	if f.putErr != nil {
		return minioLib.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minioLib.UploadInfo{}, err
	}
	f.mu.Lock()
	f.objects[name] = data
	f.mu.Unlock()
	f.notify(name)
	return minioLib.UploadInfo{Key: name, Size: int64(len(data))}, nil
}
func (f *fakeMinio) GetObject(_ context.Context, _ string, name string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	data, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		return io.NopCloser(errReader{minioLib.ErrorResponse{Code: "NoSuchKey"}}), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
func (f *fakeMinio) RemoveObject(_ context.Context, _ string, name string, _ minioLib.RemoveObjectOptions) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	delete(f.objects, name)
	f.mu.Unlock()
	f.notify(name)
	return nil
}
func (f *fakeMinio) ListenBucketNotification(_ context.Context, _, _, _ string, _ []string) <-chan notification.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan notification.Info, 16)
	f.listeners = append(f.listeners, ch)
	return ch
}

func (f *fakeMinio) notify(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ev notification.Event
	ev.S3.Object.Key = name
	for _, ch := range f.listeners {
		ch <- notification.Info{Records: []notification.Event{ev}}
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func newStore(t *testing.T, api *fakeMinio) *Store {
	t.Helper()
	s, err := NewWithAPI(context.Background(), api, Config{Bucket: "b", Namespace: "app.example"}, testutil.MakeNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewWithAPI(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Bucket: "bucket", Namespace: "ns"}

	t.Run("bucket exists", func(t *testing.T) {
		api := newFakeMinio()
		s, err := NewWithAPI(ctx, api, cfg, testutil.MakeNoopLogger())
		require.NoError(t, err)
		assert.Equal(t, "bucket", s.bucket)
		assert.False(t, api.madeBucket)
	})

	t.Run("creates bucket", func(t *testing.T) {
		api := newFakeMinio()
		api.bucketExists = false
		_, err := NewWithAPI(ctx, api, cfg, testutil.MakeNoopLogger())
		require.NoError(t, err)
		assert.True(t, api.madeBucket)
	})

	t.Run("bucket exists error", func(t *testing.T) {
		api := &fakeMinio{bucketExistsErr: errors.New("boom")}
		s, err := NewWithAPI(ctx, api, cfg, testutil.MakeNoopLogger())
		assert.Nil(t, s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure bucket exists")
	})

	t.Run("make bucket error", func(t *testing.T) {
		api := &fakeMinio{makeBucketErr: errors.New("fail")}
		s, err := NewWithAPI(ctx, api, cfg, testutil.MakeNoopLogger())
		assert.Nil(t, s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure bucket exists")
	})
}

func TestStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	api := newFakeMinio()
	s := newStore(t, api)

	_, ok, err := s.Get(ctx, model.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, model.SessionKey, []byte(`{"idToken":"t"}`)))
	assert.Contains(t, api.objects, "app.example/purecare_auth.json")

	v, ok, err := s.Get(ctx, model.SessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"idToken":"t"}`, string(v))

	require.NoError(t, s.Remove(ctx, model.SessionKey))
	_, ok, err = s.Get(ctx, model.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		api := newFakeMinio()
		s := newStore(t, api)
		api.getErr = errors.New("get-fail")
		_, _, err := s.Get(ctx, "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get object")
	})

	t.Run("set", func(t *testing.T) {
		api := newFakeMinio()
		s := newStore(t, api)
		api.putErr = errors.New("put-fail")
		err := s.Set(ctx, "k", []byte("v"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})

	t.Run("remove", func(t *testing.T) {
		api := newFakeMinio()
		s := newStore(t, api)
		api.removeErr = errors.New("remove-fail")
		err := s.Remove(ctx, "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete object")
	})
}

func TestStore_WatchDeliversForeignChangesOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := newFakeMinio()
	a, b := newStore(t, api), newStore(t, api)

	aEvents, err := a.Watch(ctx)
	require.NoError(t, err)
	bEvents, err := b.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "k", []byte("1")))

	select {
	case ev := <-bEvents:
		assert.Equal(t, model.ChangeEvent{Key: "k", NewValue: []byte("1"), Present: true}, ev)
	case <-time.After(time.Second):
		t.Fatal("b did not observe a's write")
	}

	require.NoError(t, a.Remove(ctx, "k"))
	select {
	case ev := <-bEvents:
		assert.Equal(t, "k", ev.Key)
		assert.False(t, ev.Present)
	case <-time.After(time.Second):
		t.Fatal("b did not observe a's removal")
	}

	select {
	case ev := <-aEvents:
		t.Fatalf("a observed its own write: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStore_KeyFromObject(t *testing.T) {
	s := &Store{prefix: "app.example/"}

	tests := []struct {
		object string
		want   string
		ok     bool
	}{
		{object: "app.example/purecare_auth.json", want: "purecare_auth", ok: true},
		{object: "app.example%2Fpuricare_mock_devices.json", want: "puricare_mock_devices", ok: true},
		{object: "other/purecare_auth.json"},
		{object: "app.example/purecare_auth.txt"},
		{object: "app.example/.json"},
	}

	for _, tt := range tests {
		t.Run(tt.object, func(t *testing.T) {
			got, ok := s.keyFromObject(tt.object)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
