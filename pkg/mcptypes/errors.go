package mcptypes

// Standard JSON-RPC 2.0 error codes, plus the MCP session-terminated
// sentinel reused by the gateway's own error taxonomy (see gatewayerr).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeSessionTerminated is the sentinel an upstream MCP server returns
	// when a call arrives on a session-id it has already torn down.
	CodeSessionTerminated = -32600
)

// SessionTerminatedMessage is the exact message MCP servers use alongside
// CodeSessionTerminated; transports key off of this, not just the code,
// since -32600 is also the generic "invalid request" code.
const SessionTerminatedMessage = "Session terminated"

func NewErrorResponse(id any, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
	}
}

func NewResultResponse(id any, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}
