// Package credential implements the Credential Manager (C3): resolving
// the AuthConfig for a (server, configuration) pair, fetching or
// refreshing AuthCredentials, and persisting refreshed tokens atomically.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
)

// refreshLockTTL bounds how long a dedup lock can be held before it
// self-expires, so a crashed holder can't wedge every future refresh.
const refreshLockTTL = 10 * time.Second

// refreshDedupWait is how long a request that lost the dedup race waits
// before re-reading the account, trusting the winner to have refreshed it.
const refreshDedupWait = 250 * time.Millisecond

// Failure taxonomy (§4.3).
var (
	ErrConfigMismatch           = errors.New("credential: no auth config matches configuration's auth_type")
	ErrNotConnected             = errors.New("credential: no connected account for this ownership/user")
	ErrTokenExpiredNoRefresh    = errors.New("credential: oauth2 token expired and no refresh_token present")
	ErrReauthenticationRequired = ErrTokenExpiredNoRefresh
)

// ProviderRejectedError wraps a non-2xx response from the token endpoint.
type ProviderRejectedError struct {
	StatusCode int
	Body       string
}

func (e *ProviderRejectedError) Error() string {
	return fmt.Sprintf("credential: token endpoint rejected refresh: status=%d body=%s", e.StatusCode, e.Body)
}

// TransientError wraps a retryable network/5xx failure talking to the
// token endpoint.
type TransientError struct{ Err error }

func (e *TransientError) Error() string {
	return fmt.Sprintf("credential: transient failure: %v", e.Err)
}
func (e *TransientError) Unwrap() error { return e.Err }

// Manager implements C3.
type Manager struct {
	store  catalog.Store
	leeway time.Duration
	redis  *redis.Client
	dedup  bool
}

// NewManager builds a Manager backed by store. rdb may be nil: dedup is
// only attempted when cfg.RefreshDedup is set and rdb is non-nil, so a
// deployment running with Session.Type "memory" (no Redis at all) still
// gets correct, just non-deduplicated, refreshes.
func NewManager(store catalog.Store, cfg config.CredentialConfig, rdb *redis.Client) *Manager {
	leeway := cfg.RefreshLeeway
	if leeway <= 0 {
		leeway = 60 * time.Second
	}
	return &Manager{store: store, leeway: leeway, redis: rdb, dedup: cfg.RefreshDedup && rdb != nil}
}

// ResolveAuthConfig picks the entry from server.AuthConfigs whose Type
// matches configuration.AuthType.
func ResolveAuthConfig(server *catalog.Server, configuration *catalog.Configuration) (*catalog.AuthConfig, error) {
	for i := range server.AuthConfigs {
		if server.AuthConfigs[i].Type == configuration.AuthType {
			return &server.AuthConfigs[i], nil
		}
	}
	return nil, ErrConfigMismatch
}

// GetCredentials implements the selection rule of §4.3 and applies the
// refresh policy before returning.
func (m *Manager) GetCredentials(ctx context.Context, authConfig *catalog.AuthConfig, configurationID string, ownership catalog.Ownership, userID *string) (*catalog.AuthCredentials, error) {
	account, err := m.selectAccount(ctx, configurationID, ownership, userID)
	if err != nil {
		return nil, err
	}

	creds := account.AuthCredentials
	if creds.Type != catalog.AuthOAuth2 || authConfig.Type != catalog.AuthOAuth2 {
		return &creds, nil
	}

	if creds.ExpiresAt == nil || time.Until(*creds.ExpiresAt) > m.leeway {
		return &creds, nil
	}

	if m.dedup {
		lockKey := "mcp-gateway:credential:refresh:" + account.ID
		acquired, lockErr := m.redis.SetNX(ctx, lockKey, 1, refreshLockTTL).Result()
		switch {
		case lockErr != nil:
			// Redis unavailable: fall through to an unlocked refresh rather
			// than blocking the request on a best-effort optimization.
		case !acquired:
			// Another request is already refreshing this account; give it
			// a moment and trust its result instead of hitting the token
			// endpoint again.
			time.Sleep(refreshDedupWait)
			if reread, err := m.selectAccount(ctx, configurationID, ownership, userID); err == nil {
				rc := reread.AuthCredentials
				if rc.ExpiresAt != nil && time.Until(*rc.ExpiresAt) > m.leeway {
					return &rc, nil
				}
			}
			// The other refresher hasn't finished (or failed); fall
			// through and do our own.
		default:
			defer m.redis.Del(context.WithoutCancel(ctx), lockKey)
		}
	}

	refreshed, err := m.refresh(ctx, authConfig, &creds)
	if err != nil {
		return nil, err
	}

	account.AuthCredentials = *refreshed
	if err := m.store.UpdateConnectedAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("credential: persist refreshed token: %w", err)
	}

	return refreshed, nil
}

func (m *Manager) selectAccount(ctx context.Context, configurationID string, ownership catalog.Ownership, userID *string) (*catalog.ConnectedAccount, error) {
	var (
		account *catalog.ConnectedAccount
		err     error
	)
	switch ownership {
	case catalog.OwnershipIndividual:
		if userID == nil {
			return nil, ErrNotConnected
		}
		account, err = m.store.GetIndividualAccount(ctx, *userID, configurationID)
	case catalog.OwnershipShared, catalog.OwnershipOperational:
		account, err = m.store.GetSharedOrOperationalAccount(ctx, configurationID)
	default:
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, ErrNotConnected
	}
	return account, nil
}

// refresh executes the protocol in §4.3 steps 1-4 via golang.org/x/oauth2.
func (m *Manager) refresh(ctx context.Context, authConfig *catalog.AuthConfig, creds *catalog.AuthCredentials) (*catalog.AuthCredentials, error) {
	if creds.RefreshToken == "" {
		return nil, ErrTokenExpiredNoRefresh
	}

	authStyle := oauth2.AuthStyleInHeader
	if authConfig.TokenEndpointAuthMethod == catalog.ClientSecretPost {
		authStyle = oauth2.AuthStyleInParams
	}

	conf := &oauth2.Config{
		ClientID:     authConfig.ClientID,
		ClientSecret: authConfig.ClientSecret,
		Scopes:       []string{authConfig.Scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   authConfig.AuthorizeURL,
			TokenURL:  authConfig.RefreshTokenURL,
			AuthStyle: authStyle,
		},
	}

	token := &oauth2.Token{RefreshToken: creds.RefreshToken}
	src := conf.TokenSource(ctx, token)

	newToken, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &ProviderRejectedError{StatusCode: retrieveErr.Response.StatusCode, Body: string(retrieveErr.Body)}
		}
		return nil, &TransientError{Err: err}
	}

	if newToken.AccessToken == "" {
		return nil, fmt.Errorf("credential: refresh response missing access_token")
	}
	if newToken.Expiry.IsZero() {
		return nil, fmt.Errorf("credential: refresh response missing both expires_at and expires_in")
	}

	refreshToken := creds.RefreshToken
	if newToken.RefreshToken != "" {
		refreshToken = newToken.RefreshToken
	}

	expiresAt := newToken.Expiry
	return &catalog.AuthCredentials{
		Type:         catalog.AuthOAuth2,
		AccessToken:  newToken.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		TokenType:    newToken.TokenType,
	}, nil
}
