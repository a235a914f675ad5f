package virtualmcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

type fakeConnector struct {
	lastMethod string
	lastArgs   map[string]any
	result     *mcptypes.CallToolResult
	err        error
}

func (f *fakeConnector) Invoke(_ context.Context, method string, _ AuthToken, args map[string]any) (*mcptypes.CallToolResult, error) {
	f.lastMethod = method
	f.lastArgs = args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestExecuteConnectorDispatchesByDerivedMethod(t *testing.T) {
	fc := &fakeConnector{result: mcptypes.NewTextResult("ok")}
	e := NewExecutor(Registry{"gmail": fc})

	server := &catalog.Server{Name: "Gmail"}
	tool := &catalog.Tool{
		Name:    "GMAIL__SEND_EMAIL",
		Virtual: &catalog.VirtualToolMetadata{Kind: catalog.VirtualToolConnector, ConnectorName: "gmail"},
	}

	result, err := e.Execute(context.Background(), server, tool, AuthToken{}, []byte(`{"recipient":"b@y"}`))
	require.NoError(t, err)
	assert.Equal(t, "send_email", fc.lastMethod)
	assert.Equal(t, "b@y", fc.lastArgs["recipient"])
	assert.False(t, result.IsError)
}

func TestExecuteConnectorUnknownRegistryEntryIsErrorResult(t *testing.T) {
	e := NewExecutor(Registry{})
	server := &catalog.Server{Name: "Gmail"}
	tool := &catalog.Tool{Name: "GMAIL__SEND_EMAIL", Virtual: &catalog.VirtualToolMetadata{Kind: catalog.VirtualToolConnector}}

	result, err := e.Execute(context.Background(), server, tool, AuthToken{}, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExecuteConnectorErrorBecomesErrorResult(t *testing.T) {
	fc := &fakeConnector{err: assertErr{}}
	e := NewExecutor(Registry{"gmail": fc})
	server := &catalog.Server{Name: "Gmail"}
	tool := &catalog.Tool{Name: "GMAIL__SEND_EMAIL", Virtual: &catalog.VirtualToolMetadata{Kind: catalog.VirtualToolConnector, ConnectorName: "gmail"}}

	result, err := e.Execute(context.Background(), server, tool, AuthToken{}, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestExecuteRecoversFromConnectorPanic(t *testing.T) {
	fc := &panickingConnector{}
	e := NewExecutor(Registry{"gmail": fc})
	server := &catalog.Server{Name: "Gmail"}
	tool := &catalog.Tool{Name: "GMAIL__SEND_EMAIL", Virtual: &catalog.VirtualToolMetadata{Kind: catalog.VirtualToolConnector, ConnectorName: "gmail"}}

	result, err := e.Execute(context.Background(), server, tool, AuthToken{}, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

type panickingConnector struct{}

func (panickingConnector) Invoke(context.Context, string, AuthToken, map[string]any) (*mcptypes.CallToolResult, error) {
	panic("connector exploded")
}

func TestExecuteRejectsNonVirtualTool(t *testing.T) {
	e := NewExecutor(Registry{})
	server := &catalog.Server{Name: "Gmail"}
	tool := &catalog.Tool{Name: "GMAIL__SEND_EMAIL"}

	_, err := e.Execute(context.Background(), server, tool, AuthToken{}, nil)
	assert.Error(t, err)
}
