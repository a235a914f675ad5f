// Package session implements the per-bundle Session Manager (C9): gateway
// sessions multiplex N upstream MCP sessions behind one mcp-session-id,
// fanning initialize out to upstreams on first use and reusing upstream
// session ids afterward (§4.4, §4.9), grounded on the teacher's
// internal/mcp/session Store/Connection split but retargeted from
// one-session-per-connection to one-session-per-bundle.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
	"github.com/aci-labs/mcp-gateway/internal/transport"
)

// ErrSessionNotFound mirrors the teacher's session.ErrSessionNotFound.
var ErrSessionNotFound = errors.New("session: not found")

// Store is the subset of catalog.Store the Manager needs, narrow enough
// that backends other than the gorm store (a RedisStore, say) don't have
// to satisfy catalog.Store's full surface. Any catalog.Store value already
// implements this structurally.
type Store interface {
	CreateSession(ctx context.Context, s *catalog.Session) error
	GetSession(ctx context.Context, id string) (*catalog.Session, error)
	DeleteSession(ctx context.Context, id string) error
	TouchSession(ctx context.Context, id string) error
	UpdateSessionExternalMCPSession(ctx context.Context, sessionID, serverID, upstreamSessionID string) error
	SweepExpiredSessions(ctx context.Context, idleSince int64) (int, error)
}

// Session adapts a catalog.Session row to jsonrpc.Session, and tracks
// whether the gateway-level `initialize` handshake has completed this
// process's lifetime (catalog.Session itself has no such bit: it's
// reconstructible state, not persisted, since re-initializing is cheap and
// every gateway instance starts cold).
type Session struct {
	row         *catalog.Session
	token       string // signed mcp-session-id wire value, see tokenSigner
	initialized bool
}

// ID returns the wire-level mcp-session-id: a signed JWT carrying the
// storage row's internal id, not the row id itself, so a forged or garbage
// header value can be rejected before it ever reaches the session store
// (SPEC_FULL.md §4.9).
func (s *Session) ID() string        { return s.token }
func (s *Session) BundleID() string  { return s.row.BundleID }
func (s *Session) Initialized() bool { return s.initialized }
func (s *Session) MarkInitialized()  { s.initialized = true }

// Manager owns gateway session lifecycle and upstream session fan-out.
type Manager struct {
	store  Store
	logger *zap.Logger
	ttl    time.Duration
	tokens *tokenSigner
}

// NewManager builds a Manager backed by store, grounded on the teacher's
// internal/auth/jwt.Service for mcp-session-id signing (cfg.JWT): the same
// empty-secret/weak-secret validation the teacher applies to its own JWTs.
func NewManager(store Store, logger *zap.Logger, cfg config.SessionConfig, jwtCfg config.JWTConfig) (*Manager, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	signer, err := newTokenSigner(jwtCfg.Secret, jwtCfg.Issuer, jwtCfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, logger: logger.Named("session.manager"), ttl: ttl, tokens: signer}, nil
}

// Create starts a New session for bundleID (§3's Session.state machine:
// New on creation, Active once `initialize` completes).
func (m *Manager) Create(ctx context.Context, bundleID string) (*Session, error) {
	id := uuid.NewString()
	row := &catalog.Session{
		ID:                  id,
		BundleID:            bundleID,
		ExternalMCPSessions: map[string]string{},
		LastAccessedAt:      time.Now(),
	}
	if err := m.store.CreateSession(ctx, row); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	token, err := m.tokens.mint(id, bundleID)
	if err != nil {
		return nil, fmt.Errorf("session: sign mcp-session-id: %w", err)
	}
	return &Session{row: row, token: token}, nil
}

// Get verifies token as a mcp-session-id JWT, fast-rejecting ids this
// gateway never issued before touching storage, then loads the session row
// the token names and touches its last-accessed time, restarting its idle
// TTL window (§4.9).
func (m *Manager) Get(ctx context.Context, token string) (*Session, error) {
	claims, err := m.tokens.verify(token)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	row, err := m.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if row.Deleted || row.BundleID != claims.BundleID {
		return nil, ErrSessionNotFound
	}
	if err := m.store.TouchSession(ctx, claims.SessionID); err != nil {
		m.logger.Warn("touch session failed", zap.String("session_id", claims.SessionID), zap.Error(err))
	}
	return &Session{row: row, token: token, initialized: true}, nil
}

// Delete handles an explicit client DELETE (§6): the session and its
// upstream session ids are torn down immediately, not left to the sweep.
// token is the wire-level mcp-session-id; an unverifiable token is treated
// as already gone rather than an error, matching DELETE's idempotent intent.
func (m *Manager) Delete(ctx context.Context, token string) error {
	claims, err := m.tokens.verify(token)
	if err != nil {
		return nil
	}
	if err := m.store.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Sweep soft-deletes sessions idle past the configured TTL (§4.9).
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.ttl).Unix()
	n, err := m.store.SweepExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("session: sweep: %w", err)
	}
	if n > 0 {
		m.logger.Info("swept expired sessions", zap.Int("count", n))
	}
	return n, nil
}

// Upstream returns a transport.Client for server, reusing sess's existing
// upstream session id when one is already recorded (§4.4 reuse), else
// initializing fresh and persisting the new upstream session id under row
// lock (§4.1/§5, the one write that can race in the hot path).
func (m *Manager) Upstream(ctx context.Context, sess *Session, server *catalog.Server, creds *transport.Credentials) (transport.Client, error) {
	existing := sess.row.ExternalMCPSessions[server.ID]

	client, err := transport.New(server, creds, existing)
	if err != nil {
		return nil, fmt.Errorf("session: build transport for server %s: %w", server.Name, err)
	}

	if err := client.Initialize(ctx); err != nil {
		var terminated *transport.SessionTerminatedError
		if !errors.As(err, &terminated) || existing == "" {
			return nil, fmt.Errorf("session: initialize server %s: %w", server.Name, err)
		}

		// §4.4: upstream forgot the session; reinitialize once from
		// scratch before giving up.
		return m.Reinitialize(ctx, sess, server, creds)
	}

	if upstreamID := client.SessionID(); upstreamID != "" && upstreamID != existing {
		if err := m.persistUpstreamID(ctx, sess, server.ID, upstreamID); err != nil {
			m.logger.Warn("persist upstream session id failed",
				zap.String("session_id", sess.row.ID), zap.String("server_id", server.ID), zap.Error(err))
		}
	}

	return client, nil
}

// Reinitialize rebuilds a fresh upstream client for server, discarding any
// previously recorded upstream session id, and persists whatever new id
// the upstream hands back. Upstream's own initialize-time reuse check
// can't observe a mid-session termination (it no-ops once a session id is
// already recorded), so the first sign of one is always a
// *transport.SessionTerminatedError from a later CallTool; dispatchUpstream
// calls this to rebuild and retry that call once, per §4.4.
func (m *Manager) Reinitialize(ctx context.Context, sess *Session, server *catalog.Server, creds *transport.Credentials) (transport.Client, error) {
	client, err := transport.New(server, creds, "")
	if err != nil {
		return nil, fmt.Errorf("session: rebuild transport for server %s: %w", server.Name, err)
	}
	if err := client.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("session: reinitialize server %s: %w", server.Name, err)
	}
	if upstreamID := client.SessionID(); upstreamID != "" {
		if err := m.persistUpstreamID(ctx, sess, server.ID, upstreamID); err != nil {
			m.logger.Warn("persist upstream session id failed",
				zap.String("session_id", sess.row.ID), zap.String("server_id", server.ID), zap.Error(err))
		}
	}
	return client, nil
}

func (m *Manager) persistUpstreamID(ctx context.Context, sess *Session, serverID, upstreamID string) error {
	if err := m.store.UpdateSessionExternalMCPSession(ctx, sess.row.ID, serverID, upstreamID); err != nil {
		return err
	}
	sess.row.ExternalMCPSessions[serverID] = upstreamID
	return nil
}
