package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/memory"
	"github.com/dtroode/puricare-client/internal/testutil"
)

func TestQueue_AppendPreservesExisting(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewOrigin().Attach()
	q := NewQueue(kv, testutil.MakeNoopLogger())

	assert.Empty(t, q.List(ctx))

	require.NoError(t, q.Append(ctx, dev("qr-1", "a")))
	require.NoError(t, q.Append(ctx, dev("serial-2", "b")))
	require.NoError(t, q.Append(ctx, dev("qr-3", "c")))

	assert.Equal(t, []string{"qr-1", "serial-2", "qr-3"}, ids(q.List(ctx)))

	raw, ok, err := kv.Get(ctx, model.ProvisionalDevicesKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"id":"serial-2"`)
}

func TestQueue_SharedAcrossContexts(t *testing.T) {
	ctx := context.Background()
	origin := memory.NewOrigin()
	a := NewQueue(origin.Attach(), testutil.MakeNoopLogger())
	b := NewQueue(origin.Attach(), testutil.MakeNoopLogger())

	require.NoError(t, a.Append(ctx, dev("qr-1", "a")))
	require.NoError(t, b.Append(ctx, dev("qr-2", "b")))

	assert.Equal(t, []string{"qr-1", "qr-2"}, ids(a.List(ctx)))
}

func TestQueue_AppendRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewOrigin().Attach(), testutil.MakeNoopLogger())

	require.NoError(t, q.Append(ctx, dev("qr-1", "a")))
	err := q.Append(ctx, dev("qr-1", "b"))
	assert.ErrorIs(t, err, model.ErrIDCollision)
	assert.Len(t, q.List(ctx), 1)
}

func TestQueue_CorruptListIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewOrigin().Attach()
	require.NoError(t, kv.Set(ctx, model.ProvisionalDevicesKey, []byte(`{"not":"a list"}`)))

	log, buf := testutil.MakeBufferLogger()
	q := NewQueue(kv, log)

	assert.Empty(t, q.List(ctx))
	assert.Contains(t, buf.String(), model.ErrPersistParse.Error())

	require.NoError(t, q.Append(ctx, dev("qr-1", "a")))
	assert.Equal(t, []string{"qr-1"}, ids(q.List(ctx)))
}

func TestQueue_Remove(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewOrigin().Attach(), testutil.MakeNoopLogger())

	for _, id := range []string{"qr-1", "qr-2", "qr-3"} {
		require.NoError(t, q.Append(ctx, dev(id, "")))
	}

	require.NoError(t, q.Remove(ctx, "qr-2"))
	assert.Equal(t, []string{"qr-1", "qr-3"}, ids(q.List(ctx)))

	assert.ErrorIs(t, q.Remove(ctx, "qr-2"), model.ErrNotFound)

	require.NoError(t, q.Remove(ctx, "qr-1"))
	require.NoError(t, q.Remove(ctx, "qr-3"))
	assert.Empty(t, q.List(ctx))
}
