package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
)

// fakeStore implements only the session-related methods of catalog.Store;
// embedding the nil interface lets it satisfy Store without stubbing every
// unrelated method, matching the teacher's MemoryStore test-double style.
type fakeStore struct {
	catalog.Store
	rows   map[string]*catalog.Session
	swept  int
	cutoff int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*catalog.Session{}}
}

func (f *fakeStore) CreateSession(_ context.Context, s *catalog.Session) error {
	f.rows[s.ID] = s
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*catalog.Session, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, assertNotFound{}
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeStore) TouchSession(_ context.Context, id string) error {
	if row, ok := f.rows[id]; ok {
		row.LastAccessedAt = time.Now()
	}
	return nil
}

func (f *fakeStore) UpdateSessionExternalMCPSession(_ context.Context, sessionID, serverID, upstreamSessionID string) error {
	row, ok := f.rows[sessionID]
	if !ok {
		return assertNotFound{}
	}
	if row.ExternalMCPSessions == nil {
		row.ExternalMCPSessions = map[string]string{}
	}
	row.ExternalMCPSessions[serverID] = upstreamSessionID
	return nil
}

func (f *fakeStore) SweepExpiredSessions(_ context.Context, cutoff int64) (int, error) {
	f.cutoff = cutoff
	n := 0
	for _, row := range f.rows {
		if row.LastAccessedAt.Unix() < cutoff {
			row.Deleted = true
			n++
		}
	}
	f.swept = n
	return n, nil
}

// only finds the single row a test put there; tests that need the row id
// (to poke at it directly) only ever have one session in flight.
func (f *fakeStore) only() *catalog.Session {
	for _, row := range f.rows {
		return row
	}
	return nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func testLogger() *zap.Logger { return zap.NewNop() }

const testSecret = "test-secret-at-least-32-bytes-long!"

func newTestManager(t *testing.T, store Store, ttl time.Duration) *Manager {
	t.Helper()
	mgr, err := NewManager(store, testLogger(), config.SessionConfig{TTL: ttl}, config.JWTConfig{Secret: testSecret, Issuer: "mcp-gateway-test"})
	require.NoError(t, err)
	return mgr
}

func TestNewManagerRejectsEmptySecret(t *testing.T) {
	_, err := NewManager(newFakeStore(), testLogger(), config.SessionConfig{TTL: time.Hour}, config.JWTConfig{})
	assert.ErrorIs(t, err, ErrEmptySessionSecret)
}

func TestNewManagerRejectsWeakSecret(t *testing.T) {
	_, err := NewManager(newFakeStore(), testLogger(), config.SessionConfig{TTL: time.Hour}, config.JWTConfig{Secret: "too-short"})
	assert.ErrorIs(t, err, ErrWeakSessionSecret)
}

func TestCreateAndGet(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Hour)

	sess, err := mgr.Create(context.Background(), "bundle-1")
	require.NoError(t, err)
	assert.False(t, sess.Initialized())
	assert.NotEmpty(t, sess.ID())
	assert.NotEqual(t, store.only().ID, sess.ID(), "wire id must be the signed token, not the storage row id")

	got, err := mgr.Get(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "bundle-1", got.BundleID())
	assert.True(t, got.Initialized())
}

func TestGetRejectsGarbageToken(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Hour)

	_, err := mgr.Get(context.Background(), "not-a-jwt-at-all")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetRejectsTokenFromAnotherSecret(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Hour)
	sess, err := mgr.Create(context.Background(), "bundle-1")
	require.NoError(t, err)

	other, err := NewManager(store, testLogger(), config.SessionConfig{TTL: time.Hour}, config.JWTConfig{Secret: strings.Repeat("z", 32)})
	require.NoError(t, err)

	_, err = other.Get(context.Background(), sess.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Hour)

	_, err := mgr.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetDeletedReturnsNotFound(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Hour)
	sess, err := mgr.Create(context.Background(), "bundle-1")
	require.NoError(t, err)
	store.only().Deleted = true

	_, err = mgr.Get(context.Background(), sess.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteRemovesRow(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Hour)
	sess, err := mgr.Create(context.Background(), "bundle-1")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(context.Background(), sess.ID()))
	assert.Nil(t, store.only())
}

func TestSweepUsesConfiguredTTL(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(t, store, time.Minute)
	sess, err := mgr.Create(context.Background(), "bundle-1")
	require.NoError(t, err)
	store.only().LastAccessedAt = time.Now().Add(-2 * time.Minute)

	n, err := mgr.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_ = sess
}

func TestMarkInitialized(t *testing.T) {
	sess := &Session{row: &catalog.Session{ID: "s1"}}
	assert.False(t, sess.Initialized())
	sess.MarkInitialized()
	assert.True(t, sess.Initialized())
}
