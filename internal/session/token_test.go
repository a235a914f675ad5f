package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSignerMintAndVerifyRoundTrip(t *testing.T) {
	signer, err := newTokenSigner(testSecret, "mcp-gateway-test", time.Hour)
	require.NoError(t, err)

	token, err := signer.mint("session-1", "bundle-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := signer.verify(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "bundle-1", claims.BundleID)
}

func TestTokenSignerVerifyRejectsExpired(t *testing.T) {
	signer, err := newTokenSigner(testSecret, "mcp-gateway-test", time.Nanosecond)
	require.NoError(t, err)

	token, err := signer.mint("session-1", "bundle-1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = signer.verify(token)
	assert.Error(t, err)
}

func TestTokenSignerVerifyRejectsWrongSecret(t *testing.T) {
	signer, err := newTokenSigner(testSecret, "mcp-gateway-test", time.Hour)
	require.NoError(t, err)
	token, err := signer.mint("session-1", "bundle-1")
	require.NoError(t, err)

	other, err := newTokenSigner("another-secret-also-32-bytes-long!!", "mcp-gateway-test", time.Hour)
	require.NoError(t, err)

	_, err = other.verify(token)
	assert.Error(t, err)
}

func TestNewTokenSignerValidatesSecret(t *testing.T) {
	_, err := newTokenSigner("", "mcp-gateway-test", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySessionSecret)

	_, err = newTokenSigner("short", "mcp-gateway-test", time.Hour)
	assert.ErrorIs(t, err, ErrWeakSessionSecret)
}
