package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/gatewayerr"
	"github.com/aci-labs/mcp-gateway/internal/jsonrpc"
	"github.com/aci-labs/mcp-gateway/internal/router"
	"github.com/aci-labs/mcp-gateway/internal/session"
	"github.com/aci-labs/mcp-gateway/internal/virtualmcp"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
	"github.com/aci-labs/mcp-gateway/pkg/version"
)

const sessionIDHeader = "mcp-session-id"

type bundleCtxKey struct{}

// buildEngine registers the fixed method table every bundle session
// speaks (§6): initialize/tools/list/tools/call/notifications/ping.
// Grounded on the teacher's StreamableSession.HandleRequest method switch,
// generalized from one big switch into the engine's per-method table.
func buildEngine(s *Server) *jsonrpc.Engine {
	e := jsonrpc.NewEngine()
	e.Handle(mcptypes.MethodInitialize, s.rpcInitialize)
	e.Handle(mcptypes.MethodToolsList, s.rpcToolsList)
	e.Handle(mcptypes.MethodToolsCall, s.rpcToolsCall)
	e.Handle(mcptypes.MethodNotificationsInitialized, s.rpcNotificationsInitialized)
	e.Handle(mcptypes.MethodPing, s.rpcPing)
	return e
}

func (s *Server) rpcInitialize(ctx context.Context, sess jsonrpc.Session, params json.RawMessage) (any, error) {
	var req mcptypes.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, gatewayerr.InvalidParams("invalid initialize params: " + err.Error())
		}
	}
	sess.MarkInitialized()
	return &mcptypes.InitializeResult{
		ProtocolVersion: req.ProtocolVersion,
		Capabilities:    mcptypes.ServerCapabilities{Tools: mcptypes.ToolsCapability{ListChanged: false}},
		ServerInfo:      mcptypes.Implementation{Name: "mcp-gateway", Version: version.Get()},
	}, nil
}

// rpcToolsList always advertises the same two synthetic tools (§2):
// a bundle's real upstream tools are reachable only through EXECUTE_TOOL,
// never listed directly.
func (s *Server) rpcToolsList(ctx context.Context, sess jsonrpc.Session, params json.RawMessage) (any, error) {
	return &mcptypes.ListToolsResult{Tools: []mcptypes.ToolSchema{searchToolsSchema, executeToolSchema}}, nil
}

func (s *Server) rpcNotificationsInitialized(ctx context.Context, sess jsonrpc.Session, params json.RawMessage) (any, error) {
	return nil, nil
}

func (s *Server) rpcPing(ctx context.Context, sess jsonrpc.Session, params json.RawMessage) (any, error) {
	return map[string]any{}, nil
}

// rpcToolsCall dispatches a tools/call envelope to the router by the
// synthetic tool name (§4.10); the bundle under call is threaded through
// ctx, since jsonrpc.HandlerFunc's signature is method-shaped, not
// gateway-shaped.
func (s *Server) rpcToolsCall(ctx context.Context, sess jsonrpc.Session, params json.RawMessage) (any, error) {
	var call mcptypes.CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, gatewayerr.InvalidParams("invalid tools/call params: " + err.Error())
	}

	bundle, _ := ctx.Value(bundleCtxKey{}).(*catalog.Bundle)
	if bundle == nil {
		return nil, gatewayerr.InvalidRequest("tools/call requires a resolved bundle")
	}

	switch call.Name {
	case mcptypes.ToolSearchTools:
		var p router.SearchToolsParams
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &p); err != nil {
				return nil, gatewayerr.InvalidParams("invalid SEARCH_TOOLS arguments: " + err.Error())
			}
		}
		return s.tools.SearchTools(ctx, bundle, p)

	case mcptypes.ToolExecuteTool:
		var p router.ExecuteToolParams
		if err := json.Unmarshal(call.Arguments, &p); err != nil {
			return nil, gatewayerr.InvalidParams("invalid EXECUTE_TOOL arguments: " + err.Error())
		}
		sessionVal, _ := sess.(*session.Session)
		return s.tools.ExecuteTool(ctx, sessionVal, bundle, p)

	default:
		return nil, gatewayerr.InvalidParams("unknown tool: " + call.Name)
	}
}

var searchToolsSchema = mcptypes.ToolSchema{
	Name:        mcptypes.ToolSearchTools,
	Description: "Search the bundle's reachable tool catalog by intent, returning qualified tool names and input schemas.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"intent": {"type": "string", "description": "Natural-language description of the desired capability."},
			"limit": {"type": "integer", "minimum": 1},
			"offset": {"type": "integer", "minimum": 0}
		}
	}`),
}

var executeToolSchema = mcptypes.ToolSchema{
	Name:        mcptypes.ToolExecuteTool,
	Description: "Invoke a qualified tool (SERVER__TOOL) previously surfaced by SEARCH_TOOLS, with JSON arguments matching its input schema.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"required": ["tool_name", "tool_arguments"],
		"properties": {
			"tool_name": {"type": "string", "pattern": "^[A-Z0-9_]+__[A-Z0-9_]+$"},
			"tool_arguments": {"type": "object"}
		}
	}`),
}

// handleMCPPost is the bundle-addressed JSON-RPC endpoint (§6): resolves
// the bundle from bundle_id, resolves or creates the gateway session from
// mcp-session-id, dispatches through the engine, and renders either a
// JSON-RPC envelope or (for notifications) a bare 202.
func (s *Server) handleMCPPost(c *gin.Context) {
	bundleID := c.Query("bundle_id")
	if bundleID == "" {
		s.writeProtocolError(c, gatewayerr.InvalidRequest("missing bundle_id query parameter"), nil)
		return
	}
	bundle, err := s.store.GetBundle(c.Request.Context(), bundleID)
	if err != nil {
		s.writeProtocolError(c, gatewayerr.BundleNotFound(bundleID), nil)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeProtocolError(c, gatewayerr.ParseError(err.Error()), nil)
		return
	}

	req, err := jsonrpc.ParseRequest(body)
	if err != nil {
		s.writeProtocolError(c, err, nil)
		return
	}

	sess, err := s.resolveSession(c, req, bundleID)
	if err != nil {
		s.writeProtocolError(c, err, req.ID)
		return
	}

	if s.metrics != nil {
		start := time.Now()
		s.metrics.McpReqStart(req.Method)
		defer s.metrics.McpReqDone(req.Method, start)
	}

	ctx := context.WithValue(c.Request.Context(), bundleCtxKey{}, bundle)
	resp := s.rpc.Dispatch(ctx, sess, req)

	if jsonrpc.IsNotification(req) {
		c.Status(http.StatusAccepted)
		return
	}

	if req.Method == mcptypes.MethodInitialize && resp.Error == nil {
		c.Header(sessionIDHeader, sess.ID())
	}
	s.localizeError(c, resp)
	c.JSON(http.StatusOK, resp)
}

// resolveSession implements §4.9's lifecycle: `initialize` creates a
// session if the client sent none (or reuses the one it named, for a
// client that re-initializes mid-session); every other method requires an
// existing, non-expired session.
func (s *Server) resolveSession(c *gin.Context, req *mcptypes.Request, bundleID string) (*session.Session, error) {
	id := c.GetHeader(sessionIDHeader)

	if req.Method == mcptypes.MethodInitialize {
		if id != "" {
			if sess, err := s.sessions.Get(c.Request.Context(), id); err == nil {
				return sess, nil
			}
		}
		return s.sessions.Create(c.Request.Context(), bundleID)
	}

	if id == "" {
		return nil, gatewayerr.InvalidRequest("missing mcp-session-id header")
	}
	sess, err := s.sessions.Get(c.Request.Context(), id)
	if err != nil {
		return nil, gatewayerr.InvalidRequest("unknown or expired session: " + id)
	}
	return sess, nil
}

// handleMCPGet rejects plain GET: this gateway's transport profile (§6)
// doesn't expose an SSE fallback stream, unlike the teacher's dual
// SSE/Streamable-HTTP surface.
func (s *Server) handleMCPGet(c *gin.Context) {
	c.Status(http.StatusMethodNotAllowed)
}

// handleMCPDelete tears a session down immediately (§6), rather than
// leaving it to the idle-TTL sweep.
func (s *Server) handleMCPDelete(c *gin.Context) {
	id := c.GetHeader(sessionIDHeader)
	if id == "" {
		c.Status(http.StatusNoContent)
		return
	}
	if err := s.sessions.Delete(c.Request.Context(), id); err != nil {
		s.logger.Warn("delete session failed", zap.String("session_id", id), zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

// handleVirtualMCPPost is the direct virtual-server surface (§6): it
// dispatches through C6 alone, bypassing the bundle/session/credential
// path the main endpoint's EXECUTE_TOOL uses, authenticating solely off
// the caller-supplied x-virtual-mcp-auth-token header.
func (s *Server) handleVirtualMCPPost(c *gin.Context) {
	serverName := c.Query("server_name")
	if serverName == "" {
		s.writeProtocolError(c, gatewayerr.InvalidRequest("missing server_name query parameter"), nil)
		return
	}

	server, err := s.store.GetServerByName(c.Request.Context(), serverName)
	if err != nil || server.Kind != catalog.ServerVirtual {
		s.writeProtocolError(c, gatewayerr.InvalidParams("unknown virtual server: "+serverName), nil)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeProtocolError(c, gatewayerr.ParseError(err.Error()), nil)
		return
	}
	req, err := jsonrpc.ParseRequest(body)
	if err != nil {
		s.writeProtocolError(c, err, nil)
		return
	}

	sess := &statelessSession{}
	ctx := context.WithValue(c.Request.Context(), virtualAuthCtxKey{}, c.GetHeader(virtualmcp.AuthTokenHeader))
	resp := s.virtualRPC(server).Dispatch(ctx, sess, req)

	if jsonrpc.IsNotification(req) {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// statelessSession satisfies jsonrpc.Session for the virtual endpoint,
// which has no gateway-level session concept of its own (§6): each call
// is a single, directly-authenticated round trip.
type statelessSession struct{ initialized bool }

func (s *statelessSession) ID() string        { return "" }
func (s *statelessSession) Initialized() bool { return s.initialized }
func (s *statelessSession) MarkInitialized()  { s.initialized = true }

// virtualRPC builds a throwaway engine per call rather than one shared
// engine field, since its tools/call handler needs the resolved server
// name in its closure and server_name varies per request.
func (s *Server) virtualRPC(server *catalog.Server) *jsonrpc.Engine {
	e := jsonrpc.NewEngine()
	e.Handle(mcptypes.MethodInitialize, s.rpcInitialize)
	e.Handle(mcptypes.MethodPing, s.rpcPing)
	e.Handle(mcptypes.MethodNotificationsInitialized, s.rpcNotificationsInitialized)
	e.Handle(mcptypes.MethodToolsList, func(ctx context.Context, _ jsonrpc.Session, _ json.RawMessage) (any, error) {
		tools, err := s.store.ListToolsByServer(ctx, server.ID)
		if err != nil {
			return nil, gatewayerr.StorageError(err.Error())
		}
		out := make([]mcptypes.ToolSchema, 0, len(tools))
		for _, t := range tools {
			out = append(out, mcptypes.ToolSchema{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
		return &mcptypes.ListToolsResult{Tools: out}, nil
	})
	e.Handle(mcptypes.MethodToolsCall, func(ctx context.Context, _ jsonrpc.Session, params json.RawMessage) (any, error) {
		return s.dispatchVirtualCall(ctx, server, params)
	})
	return e
}

func (s *Server) dispatchVirtualCall(ctx context.Context, server *catalog.Server, params json.RawMessage) (any, error) {
	var call mcptypes.CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, gatewayerr.InvalidParams("invalid tools/call params: " + err.Error())
	}

	tool, err := s.store.GetToolByName(ctx, call.Name)
	if err != nil || tool.MCPServerID != server.ID {
		return nil, gatewayerr.ToolNotFound(call.Name)
	}

	authHeader, _ := ctx.Value(virtualAuthCtxKey{}).(string)
	auth, err := virtualmcp.DecodeAuthTokenHeader(authHeader)
	if err != nil {
		return nil, gatewayerr.InvalidRequest(err.Error())
	}

	return s.virtual.Execute(ctx, server, tool, auth, call.Arguments)
}

type virtualAuthCtxKey struct{}

// writeProtocolError renders err as a JSON-RPC error envelope for failures
// that happen before (or instead of) engine dispatch — bad bundle_id,
// unparseable frames, session resolution — rather than ones the engine
// itself produced. JSON-RPC errors still ride on HTTP 200 (§7): only
// genuinely wrong HTTP usage (GET /mcp) gets a non-200 status.
func (s *Server) writeProtocolError(c *gin.Context, err error, id any) {
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok {
		gwErr = gatewayerr.New(gatewayerr.KindInternal, mcptypes.CodeInternalError, err.Error())
	}
	resp := gwErr.ToJSONRPC(id)
	s.localizeError(c, resp)
	c.JSON(http.StatusOK, resp)
}

// localizeError prefixes a JSON-RPC error's message with a localized label
// for the client's Accept-Language, leaving data.kind (the stable
// machine-readable discriminator) untouched. A Kind with no bundle entry
// passes through unchanged, so this is a no-op when no translator is
// configured or no locale files were loaded.
func (s *Server) localizeError(c *gin.Context, resp *mcptypes.Response) {
	if s.translator == nil || resp.Error == nil {
		return
	}
	data, ok := resp.Error.Data.(map[string]any)
	if !ok {
		return
	}
	kind, _ := data["kind"].(string)
	if kind == "" {
		return
	}
	lang := s.translator.LanguageFromHeader(c.GetHeader("Accept-Language"))
	label := s.translator.Translate(kind, lang, nil)
	if label != kind {
		resp.Error.Message = label + ": " + resp.Error.Message
	}
}
