package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

type sseClient struct {
	c         *client.Client
	sessionID string
}

func newSSEClient(rawURL string, headers, query map[string]string, sessionID string) (Client, error) {
	fullURL, err := withQuery(rawURL, query)
	if err != nil {
		return nil, err
	}
	if sessionID != "" {
		headers = cloneWithSessionHeader(headers, sessionID)
	}

	t, err := mcptransport.NewSSE(fullURL, mcptransport.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("transport: new sse: %w", err)
	}

	return &sseClient{c: client.NewClient(t), sessionID: sessionID}, nil
}

func (s *sseClient) Initialize(ctx context.Context) error {
	if s.sessionID != "" {
		return nil
	}

	if err := s.c.Start(ctx); err != nil {
		return wrapInitErr(err)
	}

	req := mcpgo.InitializeRequest{}
	req.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = clientInfo()

	if _, err := s.c.Initialize(ctx, req); err != nil {
		return wrapInitErr(err)
	}
	s.sessionID = s.c.GetSessionId()
	return nil
}

func (s *sseClient) SessionID() string { return s.sessionID }

func (s *sseClient) ListTools(ctx context.Context) ([]mcptypes.ToolSchema, error) {
	res, err := s.c.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, classifyErr(err)
	}
	return convertTools(res.Tools), nil
}

func (s *sseClient) CallTool(ctx context.Context, name string, arguments []byte) (*mcptypes.CallToolResult, error) {
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

func (s *sseClient) Close() error { return s.c.Close() }
