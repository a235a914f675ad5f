package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(config.SessionRedisConfig{Addr: mr.Addr()}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStoreRejectsUnreachableAddr(t *testing.T) {
	_, err := NewRedisStore(config.SessionRedisConfig{Addr: "127.0.0.1:0"}, time.Minute)
	assert.Error(t, err)
}

func TestRedisStoreCreateGetRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	row := &catalog.Session{ID: "s1", BundleID: "bundle-1", ExternalMCPSessions: map[string]string{}, LastAccessedAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, row))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "bundle-1", got.BundleID)
}

func TestRedisStoreGetMissingReturnsNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t)
	_, err := store.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreDeleteRemovesKey(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	row := &catalog.Session{ID: "s1", BundleID: "bundle-1", LastAccessedAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, row))

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err := store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreTouchRenewsTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	row := &catalog.Session{ID: "s1", BundleID: "bundle-1", LastAccessedAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, row))

	mr.FastForward(30 * time.Second)
	require.NoError(t, store.TouchSession(ctx, "s1"))
	mr.FastForward(45 * time.Second)

	_, err := store.GetSession(ctx, "s1")
	require.NoError(t, err, "touch should have renewed the TTL past the second fast-forward")
}

func TestRedisStoreUpdateSessionExternalMCPSession(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	row := &catalog.Session{ID: "s1", BundleID: "bundle-1", ExternalMCPSessions: map[string]string{}, LastAccessedAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, row))

	require.NoError(t, store.UpdateSessionExternalMCPSession(ctx, "s1", "server-1", "upstream-abc"))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "upstream-abc", got.ExternalMCPSessions["server-1"])
}

func TestRedisStoreSweepIsNoop(t *testing.T) {
	store, _ := newTestRedisStore(t)
	n, err := store.SweepExpiredSessions(context.Background(), time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
