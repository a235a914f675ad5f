package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aci-labs/mcp-gateway/internal/gatewayerr"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

type fakeSession struct {
	id          string
	initialized bool
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) Initialized() bool { return f.initialized }
func (f *fakeSession) MarkInitialized()  { f.initialized = true }

func TestParseRequestRejectsBadJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`{not json`))
	require.Error(t, err)
	gwErr, ok := err.(*gatewayerr.Error)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindParseError, gwErr.Kind)
}

func TestParseRequestRejectsMissingMethod(t *testing.T) {
	_, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":1}`))
	require.Error(t, err)
	gwErr := err.(*gatewayerr.Error)
	assert.Equal(t, gatewayerr.KindInvalidRequest, gwErr.Kind)
}

func TestParseRequestRejectsWrongVersion(t *testing.T) {
	_, err := ParseRequest([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	require.Error(t, err)
	gwErr := err.(*gatewayerr.Error)
	assert.Equal(t, gatewayerr.KindInvalidRequest, gwErr.Kind)
}

func TestIsNotificationHasNoID(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.True(t, IsNotification(req))

	req2, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":5,"method":"ping"}`))
	require.NoError(t, err)
	assert.False(t, IsNotification(req2))
}

func TestDispatchUnknownMethod(t *testing.T) {
	e := NewEngine()
	req := &mcptypes.Request{JSONRPC: "2.0", ID: float64(1), Method: "bogus"}
	resp := e.Dispatch(context.Background(), &fakeSession{id: "s1"}, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcptypes.CodeMethodNotFound, resp.Error.Code)
}

func TestDispatchSuccess(t *testing.T) {
	e := NewEngine()
	e.Handle("ping", func(ctx context.Context, session Session, params json.RawMessage) (any, error) {
		return map[string]string{"pong": session.ID()}, nil
	})
	req := &mcptypes.Request{JSONRPC: "2.0", ID: float64(2), Method: "ping"}
	resp := e.Dispatch(context.Background(), &fakeSession{id: "s1"}, req)
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]string{"pong": "s1"}, resp.Result)
}

func TestDispatchHandlerErrorPreservesKind(t *testing.T) {
	e := NewEngine()
	e.Handle("boom", func(ctx context.Context, session Session, params json.RawMessage) (any, error) {
		return nil, gatewayerr.ToolNotFound("X__Y")
	})
	req := &mcptypes.Request{JSONRPC: "2.0", ID: float64(3), Method: "boom"}
	resp := e.Dispatch(context.Background(), &fakeSession{id: "s1"}, req)
	require.NotNil(t, resp.Error)
	data := resp.Error.Data.(map[string]any)
	assert.Equal(t, "ToolNotFound", data["kind"])
}

func TestDispatchPlainErrorWrapsAsInternal(t *testing.T) {
	e := NewEngine()
	e.Handle("fail", func(ctx context.Context, session Session, params json.RawMessage) (any, error) {
		return nil, assertError{}
	})
	req := &mcptypes.Request{JSONRPC: "2.0", ID: float64(4), Method: "fail"}
	resp := e.Dispatch(context.Background(), &fakeSession{id: "s1"}, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcptypes.CodeInternalError, resp.Error.Code)
	data := resp.Error.Data.(map[string]any)
	assert.Equal(t, "Internal", data["kind"])
}

func TestHandleDuplicatePanics(t *testing.T) {
	e := NewEngine()
	e.Handle("ping", func(ctx context.Context, session Session, params json.RawMessage) (any, error) {
		return nil, nil
	})
	assert.Panics(t, func() {
		e.Handle("ping", func(ctx context.Context, session Session, params json.RawMessage) (any, error) {
			return nil, nil
		})
	})
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
