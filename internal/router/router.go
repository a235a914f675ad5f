// Package router implements the Tool Router (C10): SEARCH_TOOLS semantic
// discovery and EXECUTE_TOOL dispatch, the two synthetic tools every
// bundle exposes, grounded on the teacher's internal/core/tool.go
// resolution/dispatch flow.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/credential"
	"github.com/aci-labs/mcp-gateway/internal/embedding"
	"github.com/aci-labs/mcp-gateway/internal/gatewayerr"
	"github.com/aci-labs/mcp-gateway/internal/session"
	"github.com/aci-labs/mcp-gateway/internal/transport"
	"github.com/aci-labs/mcp-gateway/internal/virtualmcp"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

// VirtualExecutor is the C6 surface the router dispatches virtual tools
// through; satisfied by *virtualmcp.Executor.
type VirtualExecutor interface {
	Execute(ctx context.Context, server *catalog.Server, tool *catalog.Tool, auth virtualmcp.AuthToken, arguments []byte) (*mcptypes.CallToolResult, error)
}

// Upstreamer is the C9 surface dispatchUpstream needs; satisfied by
// *session.Manager. Narrowed to an interface (rather than the concrete
// type) so tests can fake a SessionTerminatedError from CallTool without
// standing up a real upstream MCP server.
type Upstreamer interface {
	Upstream(ctx context.Context, sess *session.Session, server *catalog.Server, creds *transport.Credentials) (transport.Client, error)
	Reinitialize(ctx context.Context, sess *session.Session, server *catalog.Server, creds *transport.Credentials) (transport.Client, error)
}

// Router implements C10.
type Router struct {
	store    catalog.Store
	embedder embedding.Adapter
	cred     *credential.Manager
	sessions Upstreamer
	virtual  VirtualExecutor
}

func New(store catalog.Store, embedder embedding.Adapter, cred *credential.Manager, sessions Upstreamer, virtual VirtualExecutor) *Router {
	return &Router{store: store, embedder: embedder, cred: cred, sessions: sessions, virtual: virtual}
}

// SearchToolsParams is the arguments object of a SEARCH_TOOLS call (§4.10).
type SearchToolsParams struct {
	Intent string `json:"intent,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ExecuteToolParams is the arguments object of an EXECUTE_TOOL call (§4.10).
type ExecuteToolParams struct {
	ToolName      string          `json:"tool_name"`
	ToolArguments json.RawMessage `json:"tool_arguments"`
}

// reach is the set of server ids a bundle may use and the tool ids it has
// explicitly disabled, computed once per call per §4.10 step 1-2.
type reach struct {
	serverIDs      []string
	disabledTools  []string
	configurations []catalog.Configuration
}

func (r *Router) computeReach(ctx context.Context, bundle *catalog.Bundle) (*reach, error) {
	rc := &reach{}
	seen := map[string]struct{}{}

	for _, cfgID := range bundle.MCPServerConfigurationIDs {
		cfg, err := r.store.GetConfiguration(ctx, cfgID)
		if err != nil {
			continue // configuration may have been deleted; bundle scrub is eventually consistent
		}
		rc.configurations = append(rc.configurations, *cfg)
		if _, dup := seen[cfg.MCPServerID]; !dup {
			seen[cfg.MCPServerID] = struct{}{}
			rc.serverIDs = append(rc.serverIDs, cfg.MCPServerID)
		}

		if cfg.AllToolsEnabled {
			continue
		}
		serverTools, err := r.store.ListToolsByServer(ctx, cfg.MCPServerID)
		if err != nil {
			return nil, fmt.Errorf("router: list tools for server %s: %w", cfg.MCPServerID, err)
		}
		enabled := map[string]struct{}{}
		for _, id := range cfg.EnabledTools {
			enabled[id] = struct{}{}
		}
		for _, t := range serverTools {
			if _, ok := enabled[t.ID]; !ok {
				rc.disabledTools = append(rc.disabledTools, t.ID)
			}
		}
	}

	return rc, nil
}

// SearchTools implements SEARCH_TOOLS (§4.10).
func (r *Router) SearchTools(ctx context.Context, bundle *catalog.Bundle, params SearchToolsParams) (*mcptypes.CallToolResult, error) {
	rc, err := r.computeReach(ctx, bundle)
	if err != nil {
		return nil, gatewayerr.StorageError(err.Error())
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	var vector []float32
	if params.Intent != "" {
		vectors, err := r.embedder.Embed(ctx, []string{params.Intent})
		if err != nil {
			return nil, gatewayerr.EmbeddingError(err.Error())
		}
		if len(vectors) > 0 {
			vector = vectors[0]
		}
	}

	tools, err := r.store.SearchTools(ctx, catalog.ToolQuery{
		AllowedServerIDs: rc.serverIDs,
		DisabledToolIDs:  rc.disabledTools,
		QueryVector:      vector,
		Limit:            limit,
		Offset:           params.Offset,
	})
	if err != nil {
		return nil, gatewayerr.StorageError(err.Error())
	}

	result := &mcptypes.CallToolResult{}
	for _, t := range tools {
		schema, err := json.Marshal(toolSummary{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		if err != nil {
			continue
		}
		result.Content = append(result.Content, mcptypes.Content{Type: "text", Text: string(schema)})
	}
	return result, nil
}

type toolSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ExecuteTool implements EXECUTE_TOOL (§4.10).
func (r *Router) ExecuteTool(ctx context.Context, sess *session.Session, bundle *catalog.Bundle, params ExecuteToolParams) (*mcptypes.CallToolResult, error) {
	tool, err := r.store.GetToolByName(ctx, params.ToolName)
	if err != nil {
		return nil, gatewayerr.ToolNotFound(params.ToolName)
	}

	cfg, err := r.findConfigurationForServer(ctx, bundle, tool.MCPServerID)
	if err != nil {
		return nil, err
	}

	if !cfg.AllToolsEnabled && !containsID(cfg.EnabledTools, tool.ID) {
		return nil, gatewayerr.ToolNotEnabled(params.ToolName)
	}

	server, err := r.store.GetServer(ctx, tool.MCPServerID)
	if err != nil {
		return nil, gatewayerr.ConfigNotFound(tool.MCPServerID)
	}

	authConfig, err := credential.ResolveAuthConfig(server, cfg)
	if err != nil {
		return nil, gatewayerr.ReauthenticationRequired(err.Error())
	}

	var userID *string
	if bundle.UserID != "" {
		userID = &bundle.UserID
	}
	creds, err := r.cred.GetCredentials(ctx, authConfig, cfg.ID, cfg.ConnectedAccountOwnership, userID)
	if err != nil {
		return nil, classifyCredentialErr(cfg.ID, err)
	}

	if server.Kind == catalog.ServerVirtual {
		return r.dispatchVirtual(ctx, server, tool, authConfig, creds, params.ToolArguments)
	}
	return r.dispatchUpstream(ctx, sess, server, authConfig, creds, tool.Name, params.ToolArguments)
}

func (r *Router) findConfigurationForServer(ctx context.Context, bundle *catalog.Bundle, serverID string) (*catalog.Configuration, error) {
	for _, cfgID := range bundle.MCPServerConfigurationIDs {
		cfg, err := r.store.GetConfiguration(ctx, cfgID)
		if err != nil {
			continue
		}
		if cfg.MCPServerID == serverID {
			return cfg, nil
		}
	}
	return nil, gatewayerr.ServerNotConfigured(serverID)
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func classifyCredentialErr(configurationID string, err error) error {
	switch err {
	case credential.ErrNotConnected:
		return gatewayerr.NotConnected(configurationID)
	case credential.ErrReauthenticationRequired:
		return gatewayerr.ReauthenticationRequired(err.Error())
	default:
		if _, ok := err.(*credential.ProviderRejectedError); ok {
			return gatewayerr.CredentialProviderRejected(err.Error())
		}
		return gatewayerr.UpstreamTransient(err.Error())
	}
}

func (r *Router) dispatchUpstream(ctx context.Context, sess *session.Session, server *catalog.Server, authConfig *catalog.AuthConfig, creds *catalog.AuthCredentials, toolName string, arguments []byte) (*mcptypes.CallToolResult, error) {
	transportCreds := &transport.Credentials{AuthConfig: *authConfig, Credentials: *creds}

	client, err := r.sessions.Upstream(ctx, sess, server, transportCreds)
	if err != nil {
		return nil, gatewayerr.UpstreamTransient(err.Error())
	}
	defer client.Close()

	result, err := client.CallTool(ctx, toolName, arguments)
	if err == nil {
		return result, nil
	}

	if _, ok := err.(*transport.SessionTerminatedError); !ok {
		return nil, gatewayerr.UpstreamPermanent(err.Error())
	}

	// §4.4: the upstream forgot this session. Initialize-time reuse above
	// can't have observed that (it no-ops once a session id is already
	// recorded), so this is the first sign of it; reinitialize once from
	// scratch and retry the same call before surfacing an error.
	retryClient, retryErr := r.sessions.Reinitialize(ctx, sess, server, transportCreds)
	if retryErr != nil {
		return nil, gatewayerr.UpstreamSessionTerminated(err.Error())
	}
	defer retryClient.Close()

	result, err = retryClient.CallTool(ctx, toolName, arguments)
	if err != nil {
		if _, ok := err.(*transport.SessionTerminatedError); ok {
			return nil, gatewayerr.UpstreamSessionTerminated(err.Error())
		}
		return nil, gatewayerr.UpstreamPermanent(err.Error())
	}
	return result, nil
}

func (r *Router) dispatchVirtual(ctx context.Context, server *catalog.Server, tool *catalog.Tool, authConfig *catalog.AuthConfig, creds *catalog.AuthCredentials, arguments []byte) (*mcptypes.CallToolResult, error) {
	auth := authTokenFor(authConfig, creds)
	result, err := r.virtual.Execute(ctx, server, tool, auth, arguments)
	if err != nil {
		return nil, gatewayerr.UpstreamPermanent(err.Error())
	}
	return result, nil
}

// authTokenFor synthesizes the x-virtual-mcp-auth-token payload (§4.6,
// §4.10 step 5) from the resolved AuthConfig/AuthCredentials.
func authTokenFor(authConfig *catalog.AuthConfig, creds *catalog.AuthCredentials) virtualmcp.AuthToken {
	switch authConfig.Type {
	case catalog.AuthOAuth2:
		return virtualmcp.AuthToken{Location: catalog.LocationHeader, Name: "Authorization", Prefix: "Bearer", Token: creds.AccessToken}
	case catalog.AuthAPIKey:
		return virtualmcp.AuthToken{Location: authConfig.Location, Name: authConfig.Name, Prefix: authConfig.Prefix, Token: creds.SecretKey}
	default:
		return virtualmcp.AuthToken{}
	}
}
