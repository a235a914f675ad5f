// Package jsonrpc is the JSON-RPC 2.0 engine (C8): frame parsing, method
// dispatch, and error-code mapping, transport-agnostic so internal/gateway
// can drive it from streamable-HTTP or SSE the way the teacher's
// internal/core does from its gin handlers.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aci-labs/mcp-gateway/internal/gatewayerr"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

// HandlerFunc serves one JSON-RPC method. params is the raw params object
// (may be nil for parameterless methods); the returned value becomes
// Response.Result on success.
type HandlerFunc func(ctx context.Context, session Session, params json.RawMessage) (any, error)

// Session is the subset of session state a method handler needs: whether
// the initialize handshake has completed, and the id this gateway session
// is addressed by. internal/session.Session satisfies this.
type Session interface {
	ID() string
	Initialized() bool
	MarkInitialized()
}

// Engine dispatches JSON-RPC requests to registered method handlers.
type Engine struct {
	handlers map[string]HandlerFunc
}

func NewEngine() *Engine {
	return &Engine{handlers: map[string]HandlerFunc{}}
}

// Handle registers a handler for method. Re-registering a method panics,
// since that can only be a wiring bug, not a runtime condition.
func (e *Engine) Handle(method string, fn HandlerFunc) {
	if _, exists := e.handlers[method]; exists {
		panic(fmt.Sprintf("jsonrpc: method already registered: %s", method))
	}
	e.handlers[method] = fn
}

// IsNotification reports whether req carries no id, per the JSON-RPC 2.0
// spec: notifications get no response at all (HTTP 202, §6).
func IsNotification(req *mcptypes.Request) bool {
	return req.ID == nil
}

// ParseRequest decodes a single JSON-RPC frame, returning a ParseError-kind
// gatewayerr on malformed JSON and an InvalidRequest-kind one on a
// missing/invalid "jsonrpc" member or a missing method.
func ParseRequest(body []byte) (*mcptypes.Request, error) {
	var req mcptypes.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, gatewayerr.ParseError(err.Error())
	}
	if req.JSONRPC != mcptypes.JSONRPCVersion {
		return nil, gatewayerr.InvalidRequest(fmt.Sprintf("unsupported jsonrpc version: %q", req.JSONRPC))
	}
	if req.Method == "" {
		return nil, gatewayerr.InvalidRequest("missing method")
	}
	return &req, nil
}

// Dispatch routes req to its registered handler and renders the JSON-RPC
// response envelope, translating both gatewayerr.Error and plain errors.
// A notification (IsNotification(req)) still runs its handler for side
// effects but the caller should not write its return value to the wire.
func (e *Engine) Dispatch(ctx context.Context, session Session, req *mcptypes.Request) *mcptypes.Response {
	handler, ok := e.handlers[req.Method]
	if !ok {
		return gatewayerr.MethodNotFound(req.Method).ToJSONRPC(req.ID)
	}

	result, err := handler(ctx, session, req.Params)
	if err != nil {
		return errToResponse(req.ID, err)
	}
	return mcptypes.NewResultResponse(req.ID, result)
}

func errToResponse(id any, err error) *mcptypes.Response {
	var gwErr *gatewayerr.Error
	if castErr, ok := err.(*gatewayerr.Error); ok {
		gwErr = castErr
	} else {
		gwErr = gatewayerr.New(gatewayerr.KindInternal, mcptypes.CodeInternalError, err.Error())
	}
	return gwErr.ToJSONRPC(id)
}
