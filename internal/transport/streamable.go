package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

type streamableClient struct {
	c         *client.Client
	sessionID string
}

func newStreamableClient(rawURL string, headers, query map[string]string, sessionID string) (Client, error) {
	fullURL, err := withQuery(rawURL, query)
	if err != nil {
		return nil, err
	}

	// §4.4 session-id reuse: when a prior upstream session-id is known,
	// carry it on every request via the MCP session header instead of
	// calling initialize again.
	if sessionID != "" {
		headers = cloneWithSessionHeader(headers, sessionID)
	}

	t, err := mcptransport.NewStreamableHTTP(fullURL, mcptransport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("transport: new streamable-http: %w", err)
	}

	return &streamableClient{c: client.NewClient(t), sessionID: sessionID}, nil
}

func (s *streamableClient) Initialize(ctx context.Context) error {
	if s.sessionID != "" {
		// §4.4 session-id reuse: skip initialize, the transport already
		// carries the upstream session-id on every subsequent request.
		return nil
	}

	req := mcpgo.InitializeRequest{}
	req.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = clientInfo()

	if err := s.c.Start(ctx); err != nil {
		return wrapInitErr(err)
	}
	if _, err := s.c.Initialize(ctx, req); err != nil {
		return wrapInitErr(err)
	}
	s.sessionID = s.c.GetSessionId()
	return nil
}

func (s *streamableClient) SessionID() string { return s.sessionID }

func (s *streamableClient) ListTools(ctx context.Context) ([]mcptypes.ToolSchema, error) {
	res, err := s.c.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, classifyErr(err)
	}
	return convertTools(res.Tools), nil
}

func (s *streamableClient) CallTool(ctx context.Context, name string, arguments []byte) (*mcptypes.CallToolResult, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("transport: invalid tool arguments: %w", err)
		}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		return nil, classifyErr(err)
	}
	return convertResult(res), nil
}

func (s *streamableClient) Close() error { return s.c.Close() }

const mcpSessionHeader = "Mcp-Session-Id"

func cloneWithSessionHeader(headers map[string]string, sessionID string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out[mcpSessionHeader] = sessionID
	return out
}

func withQuery(rawURL string, query map[string]string) (string, error) {
	if len(query) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("transport: invalid upstream url: %w", err)
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func wrapInitErr(err error) error { return fmt.Errorf("transport: initialize: %w", err) }

// classifyErr wraps an upstream JSON-RPC error as SessionTerminatedError
// when it matches the MCP sentinel (§4.9), so the session manager can
// recover by reinitializing once instead of surfacing a generic failure.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), mcptypes.SessionTerminatedMessage) {
		return &SessionTerminatedError{Cause: err}
	}
	return err
}
