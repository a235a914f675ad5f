// Package transport implements the Upstream Transport (C4): opening
// streamable-HTTP or SSE MCP client sessions to an upstream server,
// injecting credentials per AuthConfig, and exposing
// initialize/list_tools/call_tool.
package transport

import (
	"context"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
	"github.com/aci-labs/mcp-gateway/pkg/version"
)

// SessionTerminatedError is returned when an upstream call fails with the
// MCP session-terminated sentinel (§4.4/§4.9): code -32600, message
// "Session terminated". Callers recover by reinitializing once.
type SessionTerminatedError struct{ Cause error }

func (e *SessionTerminatedError) Error() string {
	return fmt.Sprintf("transport: upstream session terminated: %v", e.Cause)
}
func (e *SessionTerminatedError) Unwrap() error { return e.Cause }

// Client is the C4 contract consumed by the session manager (C9) and tool
// router (C10).
type Client interface {
	// Initialize opens the upstream session. sessionID, if non-empty, is a
	// previously-obtained upstream session-id: per §4.4 "session id reuse",
	// the client sends it on subsequent requests and skips initialize.
	Initialize(ctx context.Context) error
	// SessionID returns the upstream session-id extracted from the
	// transport, or "" if the upstream didn't assign one.
	SessionID() string
	ListTools(ctx context.Context) ([]mcptypes.ToolSchema, error)
	CallTool(ctx context.Context, name string, arguments []byte) (*mcptypes.CallToolResult, error)
	Close() error
}

// Credentials is what C3 hands to C4 to inject into the upstream request.
type Credentials struct {
	AuthConfig  catalog.AuthConfig
	Credentials catalog.AuthCredentials
}

// New builds a Client for server, reusing sessionID if provided (§4.4).
func New(server *catalog.Server, creds *Credentials, sessionID string) (Client, error) {
	headers, query := injectionFor(creds)

	switch server.Transport {
	case catalog.TransportStreamableHTTP:
		return newStreamableClient(server.URL, headers, query, sessionID)
	case catalog.TransportSSE:
		return newSSEClient(server.URL, headers, query, sessionID)
	default:
		return nil, fmt.Errorf("transport: unsupported transport %q for server %s", server.Transport, server.Name)
	}
}

// injectionFor computes the header/query additions for creds, per §4.4:
// "header for OAuth2/api-key; path never used for auth; query/cookie/body
// allowed for api-key".
func injectionFor(creds *Credentials) (headers map[string]string, query map[string]string) {
	headers = map[string]string{}
	query = map[string]string{}
	if creds == nil {
		return headers, query
	}

	switch creds.AuthConfig.Type {
	case catalog.AuthOAuth2:
		headers[authHeaderName(creds.AuthConfig)] = authHeaderValue(creds.AuthConfig, creds.Credentials.AccessToken)
	case catalog.AuthAPIKey:
		value := creds.AuthConfig.Prefix + creds.Credentials.SecretKey
		switch creds.AuthConfig.Location {
		case catalog.LocationHeader:
			headers[authHeaderName(creds.AuthConfig)] = value
		case catalog.LocationQuery:
			query[creds.AuthConfig.Name] = value
		case catalog.LocationCookie:
			headers["Cookie"] = fmt.Sprintf("%s=%s", creds.AuthConfig.Name, value)
		case catalog.LocationBody:
			// body-located api keys are injected by the caller (virtual REST
			// executor, C6) into the request payload, not here.
		}
	}
	return headers, query
}

func authHeaderName(cfg catalog.AuthConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return "Authorization"
}

func authHeaderValue(cfg catalog.AuthConfig, token string) string {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "Bearer "
	}
	return prefix + token
}

func clientInfo() mcpgo.Implementation {
	return mcpgo.Implementation{Name: "mcp-gateway", Version: version.Get()}
}
