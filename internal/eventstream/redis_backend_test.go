package eventstream

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	backend, err := NewRedisBackend(RedisBackendConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestRedisBackend_TLSAgainstPlaintextServerFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// miniredis speaks plain RESP; requesting TLS proves the option is
	// actually wired into the dial rather than silently ignored.
	_, err = NewRedisBackend(RedisBackendConfig{Addr: mr.Addr(), TLS: true})
	require.Error(t, err)
}

func TestRedisBackend_MirrorThenSinceReturnsOrderedEvents(t *testing.T) {
	backend := newTestRedisBackend(t)
	ctx := context.Background()

	for seq := int64(0); seq < 3; seq++ {
		require.NoError(t, backend.Mirror(ctx, Event{Seq: seq, Source: "message", Kind: "sent", ProjectID: 42}))
	}

	events, err := backend.Since(ctx, 42, -1, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, int64(0), events[0].Seq)
	require.Equal(t, int64(2), events[2].Seq)
}

func TestRedisBackend_SinceExcludesEventsAtOrBeforeCursor(t *testing.T) {
	backend := newTestRedisBackend(t)
	ctx := context.Background()

	for seq := int64(0); seq < 5; seq++ {
		require.NoError(t, backend.Mirror(ctx, Event{Seq: seq, Source: "message", Kind: "sent", ProjectID: 1}))
	}

	events, err := backend.Since(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(3), events[0].Seq)
	require.Equal(t, int64(4), events[1].Seq)
}

func TestRedisBackend_SinceIsolatesByProjectID(t *testing.T) {
	backend := newTestRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Mirror(ctx, Event{Seq: 0, Source: "message", Kind: "sent", ProjectID: 1}))
	require.NoError(t, backend.Mirror(ctx, Event{Seq: 0, Source: "message", Kind: "sent", ProjectID: 2}))

	events, err := backend.Since(ctx, 1, -1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(1), events[0].ProjectID)
}
