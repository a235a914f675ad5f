// Package mcptypes defines the wire types for the MCP JSON-RPC 2.0 profile:
// request/response envelopes, the initialize handshake, and tool schemas.
package mcptypes

import "encoding/json"

const JSONRPCVersion = "2.0"

// Method names dispatched by the JSON-RPC engine (C8).
const (
	MethodInitialize               = "initialize"
	MethodToolsList                = "tools/list"
	MethodToolsCall                = "tools/call"
	MethodNotificationsInitialized = "notifications/initialized"
	MethodPing                     = "ping"
)

// Synthetic tool names every bundle exposes (C10).
const (
	ToolSearchTools = "SEARCH_TOOLS"
	ToolExecuteTool = "EXECUTE_TOOL"
)

type (
	// Request is a single JSON-RPC 2.0 request or notification.
	// A notification has no Id (absent/null); id discrimination happens at
	// the framing layer, not here.
	Request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      any             `json:"id,omitempty"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	// Response is a single JSON-RPC 2.0 response envelope. Exactly one of
	// Result/Error is set.
	Response struct {
		JSONRPC string       `json:"jsonrpc"`
		ID      any          `json:"id"`
		Result  any          `json:"result,omitempty"`
		Error   *ErrorObject `json:"error,omitempty"`
	}

	// ErrorObject is the JSON-RPC 2.0 error shape.
	ErrorObject struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data,omitempty"`
	}

	// InitializeParams is the params object of an `initialize` request.
	InitializeParams struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ClientCapabilities `json:"capabilities"`
		ClientInfo      Implementation     `json:"clientInfo"`
	}

	ClientCapabilities struct {
		Experimental map[string]any `json:"experimental,omitempty"`
		Sampling     map[string]any `json:"sampling,omitempty"`
		Roots        *struct {
			ListChanged bool `json:"listChanged"`
		} `json:"roots,omitempty"`
	}

	Implementation struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Title   string `json:"title,omitempty"`
	}

	ServerCapabilities struct {
		Tools ToolsCapability `json:"tools"`
	}

	ToolsCapability struct {
		ListChanged bool `json:"listChanged"`
	}

	// InitializeResult is the result object of an `initialize` response.
	InitializeResult struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ServerCapabilities `json:"capabilities"`
		ServerInfo      Implementation     `json:"serverInfo"`
		Instructions    string             `json:"instructions"`
	}

	// ToolSchema is how a tool is described to the client, either in
	// tools/list or as a SEARCH_TOOLS hit.
	ToolSchema struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}

	ListToolsResult struct {
		Tools []ToolSchema `json:"tools"`
	}

	// CallToolParams is the params object of a `tools/call` request.
	CallToolParams struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	// Content is one item of a CallToolResult's content array.
	Content struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
		Data string `json:"data,omitempty"`
		MIME string `json:"mimeType,omitempty"`
	}

	// CallToolResult is the result object of a `tools/call` response, or
	// the value wrapped into one when a tool call fails with isError=true
	// instead of a JSON-RPC error.
	CallToolResult struct {
		Content           []Content      `json:"content"`
		IsError           bool           `json:"isError"`
		StructuredContent map[string]any `json:"structuredContent,omitempty"`
	}
)

// NewTextResult wraps plain text as a successful CallToolResult.
func NewTextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// NewErrorResult wraps an error message as a failed (isError=true) CallToolResult.
func NewErrorResult(message string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: message}}, IsError: true}
}
