package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
	"github.com/aci-labs/mcp-gateway/internal/credential"
	"github.com/aci-labs/mcp-gateway/internal/embedding"
	"github.com/aci-labs/mcp-gateway/internal/gatewayerr"
	"github.com/aci-labs/mcp-gateway/internal/session"
	"github.com/aci-labs/mcp-gateway/internal/transport"
	"github.com/aci-labs/mcp-gateway/internal/virtualmcp"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

type fakeStore struct {
	catalog.Store
	configs  map[string]*catalog.Configuration
	tools    map[string]*catalog.Tool
	servers  map[string]*catalog.Server
	byServer map[string][]catalog.Tool
	searched catalog.ToolQuery
	results  []catalog.Tool
}

func (f *fakeStore) GetConfiguration(_ context.Context, id string) (*catalog.Configuration, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return nil, assertNotFoundErr{}
	}
	return cfg, nil
}

func (f *fakeStore) ListToolsByServer(_ context.Context, serverID string) ([]catalog.Tool, error) {
	return f.byServer[serverID], nil
}

func (f *fakeStore) SearchTools(_ context.Context, q catalog.ToolQuery) ([]catalog.Tool, error) {
	f.searched = q
	return f.results, nil
}

func (f *fakeStore) GetToolByName(_ context.Context, name string) (*catalog.Tool, error) {
	t, ok := f.tools[name]
	if !ok {
		return nil, assertNotFoundErr{}
	}
	return t, nil
}

func (f *fakeStore) GetServer(_ context.Context, id string) (*catalog.Server, error) {
	s, ok := f.servers[id]
	if !ok {
		return nil, assertNotFoundErr{}
	}
	return s, nil
}

type assertNotFoundErr struct{}

func (assertNotFoundErr) Error() string { return "not found" }

type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.1, 0.2}
	}
	return vecs, nil
}
func (noopEmbedder) Dim() int { return 2 }

var _ embedding.Adapter = noopEmbedder{}

func newTestRouter(store *fakeStore) *Router {
	cred := credential.NewManager(store, config.CredentialConfig{}, nil)
	return New(store, noopEmbedder{}, cred, nil, nil)
}

func TestSearchToolsComputesReachAndEmbedsIntent(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*catalog.Configuration{
			"cfg1": {ID: "cfg1", MCPServerID: "srv1", AllToolsEnabled: false, EnabledTools: []string{"t1"}},
		},
		byServer: map[string][]catalog.Tool{
			"srv1": {{ID: "t1"}, {ID: "t2"}},
		},
		results: []catalog.Tool{{Name: "srv1__t1", Description: "d", InputSchema: []byte(`{}`)}},
	}
	r := newTestRouter(store)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	result, err := r.SearchTools(context.Background(), bundle, SearchToolsParams{Intent: "send an email"})
	require.NoError(t, err)
	assert.Len(t, result.Content, 1)
	assert.Equal(t, []string{"srv1"}, store.searched.AllowedServerIDs)
	assert.Equal(t, []string{"t2"}, store.searched.DisabledToolIDs)
	assert.NotNil(t, store.searched.QueryVector)
}

func TestSearchToolsSkipsDisabledComputationWhenAllEnabled(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*catalog.Configuration{
			"cfg1": {ID: "cfg1", MCPServerID: "srv1", AllToolsEnabled: true},
		},
	}
	r := newTestRouter(store)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	_, err := r.SearchTools(context.Background(), bundle, SearchToolsParams{})
	require.NoError(t, err)
	assert.Empty(t, store.searched.DisabledToolIDs)
	assert.Nil(t, store.searched.QueryVector)
}

func TestExecuteToolReturnsToolNotFound(t *testing.T) {
	store := &fakeStore{tools: map[string]*catalog.Tool{}}
	r := newTestRouter(store)
	bundle := &catalog.Bundle{}

	_, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "missing"})
	require.Error(t, err)
	gerr, ok := err.(*gatewayerr.Error)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindToolNotFound, gerr.Kind)
}

func TestExecuteToolReturnsServerNotConfigured(t *testing.T) {
	store := &fakeStore{
		tools: map[string]*catalog.Tool{"srv1__t1": {ID: "t1", MCPServerID: "srv1", Name: "srv1__t1"}},
	}
	r := newTestRouter(store)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{}}

	_, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "srv1__t1"})
	require.Error(t, err)
	gerr, ok := err.(*gatewayerr.Error)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindServerNotConfigured, gerr.Kind)
}

func TestExecuteToolReturnsToolNotEnabled(t *testing.T) {
	store := &fakeStore{
		tools: map[string]*catalog.Tool{"srv1__t1": {ID: "t1", MCPServerID: "srv1", Name: "srv1__t1"}},
		configs: map[string]*catalog.Configuration{
			"cfg1": {ID: "cfg1", MCPServerID: "srv1", AllToolsEnabled: false, EnabledTools: []string{"other"}},
		},
	}
	r := newTestRouter(store)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	_, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "srv1__t1"})
	require.Error(t, err)
	gerr, ok := err.(*gatewayerr.Error)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindToolNotEnabled, gerr.Kind)
}

type fakeVirtualExecutor struct {
	result *mcptypes.CallToolResult
	err    error
}

func (f *fakeVirtualExecutor) Execute(_ context.Context, _ *catalog.Server, _ *catalog.Tool, _ virtualmcp.AuthToken, _ []byte) (*mcptypes.CallToolResult, error) {
	return f.result, f.err
}

func TestExecuteToolDispatchesVirtualServer(t *testing.T) {
	store := &fakeStore{
		tools: map[string]*catalog.Tool{"srv1__t1": {ID: "t1", MCPServerID: "srv1", Name: "srv1__t1"}},
		configs: map[string]*catalog.Configuration{
			"cfg1": {ID: "cfg1", MCPServerID: "srv1", AllToolsEnabled: true, AuthType: catalog.AuthNoAuth, ConnectedAccountOwnership: catalog.OwnershipOperational},
		},
		servers: map[string]*catalog.Server{
			"srv1": {
				ID:   "srv1",
				Name: "srv1",
				Kind: catalog.ServerVirtual,
				AuthConfigs: []catalog.AuthConfig{
					{Type: catalog.AuthNoAuth},
				},
			},
		},
	}
	fakeAccount := &catalog.ConnectedAccount{Ownership: catalog.OwnershipOperational, AuthCredentials: catalog.AuthCredentials{Type: catalog.AuthNoAuth}}
	cred := credential.NewManager(&accountStore{fakeStore: store, account: fakeAccount}, config.CredentialConfig{}, nil)

	ve := &fakeVirtualExecutor{result: mcptypes.NewTextResult("ok")}
	r := New(&accountStore{fakeStore: store, account: fakeAccount}, noopEmbedder{}, cred, nil, ve)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	result, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "srv1__t1"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

type accountStore struct {
	*fakeStore
	account *catalog.ConnectedAccount
}

func (a *accountStore) GetSharedOrOperationalAccount(_ context.Context, _ string) (*catalog.ConnectedAccount, error) {
	return a.account, nil
}

// fakeUpstreamClient is a transport.Client test double whose CallTool can
// be scripted to fail once with a SessionTerminatedError, then succeed.
type fakeUpstreamClient struct {
	callToolErr    error
	callToolResult *mcptypes.CallToolResult
	closed         bool
}

func (c *fakeUpstreamClient) Initialize(_ context.Context) error { return nil }
func (c *fakeUpstreamClient) SessionID() string                  { return "" }
func (c *fakeUpstreamClient) ListTools(_ context.Context) ([]mcptypes.ToolSchema, error) {
	return nil, nil
}
func (c *fakeUpstreamClient) CallTool(_ context.Context, _ string, _ []byte) (*mcptypes.CallToolResult, error) {
	if c.callToolErr != nil {
		return nil, c.callToolErr
	}
	return c.callToolResult, nil
}
func (c *fakeUpstreamClient) Close() error { c.closed = true; return nil }

// fakeUpstreamer is a router.Upstreamer test double: Upstream always
// returns the pre-termination client; Reinitialize returns the
// post-recovery one, mirroring what session.Manager does against a real
// upstream that forgot its session (§4.4).
type fakeUpstreamer struct {
	initial           *fakeUpstreamClient
	reinitialized     *fakeUpstreamClient
	reinitializeErr   error
	reinitializeCalls int
}

func (u *fakeUpstreamer) Upstream(_ context.Context, _ *session.Session, _ *catalog.Server, _ *transport.Credentials) (transport.Client, error) {
	return u.initial, nil
}

func (u *fakeUpstreamer) Reinitialize(_ context.Context, _ *session.Session, _ *catalog.Server, _ *transport.Credentials) (transport.Client, error) {
	u.reinitializeCalls++
	if u.reinitializeErr != nil {
		return nil, u.reinitializeErr
	}
	return u.reinitialized, nil
}

func newUpstreamTestRouter(store *fakeStore, cred *credential.Manager, up *fakeUpstreamer) *Router {
	return New(store, noopEmbedder{}, cred, up, nil)
}

func upstreamToolFixture() (*fakeStore, *credential.Manager) {
	store := &fakeStore{
		tools: map[string]*catalog.Tool{"srv1__t1": {ID: "t1", MCPServerID: "srv1", Name: "srv1__t1"}},
		configs: map[string]*catalog.Configuration{
			"cfg1": {ID: "cfg1", MCPServerID: "srv1", AllToolsEnabled: true, AuthType: catalog.AuthNoAuth, ConnectedAccountOwnership: catalog.OwnershipOperational},
		},
		servers: map[string]*catalog.Server{
			"srv1": {
				ID:        "srv1",
				Name:      "srv1",
				Kind:      catalog.ServerUpstream,
				Transport: catalog.TransportStreamableHTTP,
				AuthConfigs: []catalog.AuthConfig{
					{Type: catalog.AuthNoAuth},
				},
			},
		},
	}
	fakeAccount := &catalog.ConnectedAccount{Ownership: catalog.OwnershipOperational, AuthCredentials: catalog.AuthCredentials{Type: catalog.AuthNoAuth}}
	cred := credential.NewManager(&accountStore{fakeStore: store, account: fakeAccount}, config.CredentialConfig{}, nil)
	return store, cred
}

// §4.4/§8.8: a tools/call that hits a terminated upstream session
// transparently reinitializes once and retries, succeeding rather than
// surfacing an error to the caller.
func TestExecuteToolRetriesOnceAfterUpstreamSessionTerminated(t *testing.T) {
	store, cred := upstreamToolFixture()
	up := &fakeUpstreamer{
		initial:       &fakeUpstreamClient{callToolErr: &transport.SessionTerminatedError{Cause: assertNotFoundErr{}}},
		reinitialized: &fakeUpstreamClient{callToolResult: mcptypes.NewTextResult("ok")},
	}
	r := newUpstreamTestRouter(&accountStore{fakeStore: store, account: &catalog.ConnectedAccount{Ownership: catalog.OwnershipOperational, AuthCredentials: catalog.AuthCredentials{Type: catalog.AuthNoAuth}}}, cred, up)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	result, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "srv1__t1"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, up.reinitializeCalls)
	assert.True(t, up.initial.closed, "the pre-termination client must still be closed")
	assert.True(t, up.reinitialized.closed)
}

// A second failure, after the one retry, surfaces as an error rather than
// retrying indefinitely.
func TestExecuteToolSurfacesSecondFailureAfterRetry(t *testing.T) {
	store, cred := upstreamToolFixture()
	up := &fakeUpstreamer{
		initial:       &fakeUpstreamClient{callToolErr: &transport.SessionTerminatedError{Cause: assertNotFoundErr{}}},
		reinitialized: &fakeUpstreamClient{callToolErr: &transport.SessionTerminatedError{Cause: assertNotFoundErr{}}},
	}
	r := newUpstreamTestRouter(&accountStore{fakeStore: store, account: &catalog.ConnectedAccount{Ownership: catalog.OwnershipOperational, AuthCredentials: catalog.AuthCredentials{Type: catalog.AuthNoAuth}}}, cred, up)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	_, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "srv1__t1"})
	require.Error(t, err)
	gerr, ok := err.(*gatewayerr.Error)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindUpstreamSessionTerminated, gerr.Kind)
	assert.Equal(t, 1, up.reinitializeCalls, "must not retry more than once")
}

// If reinitializing itself fails, the original termination is what's
// surfaced, not the reinitialize error.
func TestExecuteToolSurfacesOriginalErrorWhenReinitializeFails(t *testing.T) {
	store, cred := upstreamToolFixture()
	up := &fakeUpstreamer{
		initial:         &fakeUpstreamClient{callToolErr: &transport.SessionTerminatedError{Cause: assertNotFoundErr{}}},
		reinitializeErr: assertNotFoundErr{},
	}
	r := newUpstreamTestRouter(&accountStore{fakeStore: store, account: &catalog.ConnectedAccount{Ownership: catalog.OwnershipOperational, AuthCredentials: catalog.AuthCredentials{Type: catalog.AuthNoAuth}}}, cred, up)
	bundle := &catalog.Bundle{MCPServerConfigurationIDs: []string{"cfg1"}}

	_, err := r.ExecuteTool(context.Background(), nil, bundle, ExecuteToolParams{ToolName: "srv1__t1"})
	require.Error(t, err)
	gerr, ok := err.(*gatewayerr.Error)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindUpstreamSessionTerminated, gerr.Kind)
}
