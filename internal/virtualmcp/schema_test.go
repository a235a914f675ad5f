package virtualmcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
)

const testSchemaJSON = `{
	"type": "object",
	"properties": {
		"sender": {"type": "string", "location": "body"},
		"api_key": {"type": "string", "visible": false, "default": "placeholder", "location": "header"},
		"id": {"type": "string", "location": "path"},
		"page": {"type": "integer", "location": "query"}
	},
	"required": ["sender", "api_key", "id"]
}`

func TestParseSchemaExtractsMarkers(t *testing.T) {
	schema, err := parseSchema([]byte(testSchemaJSON))
	require.NoError(t, err)

	assert.True(t, schema.properties["sender"].visible)
	assert.False(t, schema.properties["api_key"].visible)
	assert.Equal(t, catalog.LocationHeader, schema.properties["api_key"].location)
	assert.Equal(t, catalog.LocationPath, schema.properties["id"].location)
	assert.True(t, schema.isRequired("sender"))
}

func TestFilterVisibleDropsInvisibleProperty(t *testing.T) {
	schema, err := parseSchema([]byte(testSchemaJSON))
	require.NoError(t, err)

	visible := schema.filterVisible()
	_, ok := visible.properties["api_key"]
	assert.False(t, ok)
	_, ok = visible.properties["sender"]
	assert.True(t, ok)
	assert.NotContains(t, visible.required, "api_key")
}

func TestInjectInvisibleDefaultsFillsMissingRequired(t *testing.T) {
	schema, err := parseSchema([]byte(testSchemaJSON))
	require.NoError(t, err)

	args := map[string]any{"sender": "a@x", "id": "123"}
	require.NoError(t, injectInvisibleDefaults(schema, args))
	assert.Equal(t, "placeholder", args["api_key"])
}

func TestInjectInvisibleDefaultsErrorsWithoutDefault(t *testing.T) {
	schema, err := parseSchema([]byte(`{
		"type": "object",
		"properties": {"secret": {"type": "string", "visible": false}},
		"required": ["secret"]
	}`))
	require.NoError(t, err)

	err = injectInvisibleDefaults(schema, map[string]any{})
	assert.Error(t, err)
}

func TestStripNilLeavesRemovesNilAndEmptyMaps(t *testing.T) {
	args := map[string]any{
		"a": nil,
		"b": "keep",
		"c": map[string]any{"d": nil},
	}
	stripNilLeaves(args)
	_, hasA := args["a"]
	_, hasC := args["c"]
	assert.False(t, hasA)
	assert.False(t, hasC)
	assert.Equal(t, "keep", args["b"])
}

func TestPartitionByLocation(t *testing.T) {
	schema, err := parseSchema([]byte(testSchemaJSON))
	require.NoError(t, err)

	args := map[string]any{"sender": "a@x", "api_key": "k", "id": "123", "page": 2}
	parts := partitionByLocation(schema, args)

	assert.Equal(t, "a@x", parts.body["sender"])
	assert.Equal(t, "k", parts.header["api_key"])
	assert.Equal(t, "123", parts.path["id"])
	assert.Equal(t, 2, parts.query["page"])
}

func TestSubstituteEndpointReplacesPathParams(t *testing.T) {
	endpoint, err := substituteEndpoint("/users/{id}/messages", map[string]any{"id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "/users/42/messages", endpoint)
}

func TestSubstituteEndpointErrorsOnUnresolvedPlaceholder(t *testing.T) {
	_, err := substituteEndpoint("/users/{id}", map[string]any{})
	assert.Error(t, err)
}

func TestInjectAuthRejectsPathLocation(t *testing.T) {
	parts := &argumentParts{path: map[string]any{}, query: map[string]any{}, header: map[string]any{}, cookie: map[string]any{}, body: map[string]any{}}
	err := injectAuth(parts, AuthToken{Location: catalog.LocationPath, Name: "x", Token: "t"})
	assert.Error(t, err)
}

func TestInjectAuthPlacesTokenAtHeaderLocation(t *testing.T) {
	parts := &argumentParts{path: map[string]any{}, query: map[string]any{}, header: map[string]any{}, cookie: map[string]any{}, body: map[string]any{}}
	require.NoError(t, injectAuth(parts, AuthToken{Location: catalog.LocationHeader, Name: "Authorization", Prefix: "Bearer", Token: "tok123"}))
	assert.Equal(t, "Bearer tok123", parts.header["Authorization"])
}

func TestEncodeDecodeAuthTokenHeaderRoundTrips(t *testing.T) {
	orig := AuthToken{Location: catalog.LocationHeader, Name: "Authorization", Prefix: "Bearer", Token: "tok123"}
	header := EncodeAuthTokenHeader(orig)
	decoded, err := DecodeAuthTokenHeader(header)
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
}

func TestEncodeDecodeAuthTokenHeaderWithoutPrefix(t *testing.T) {
	orig := AuthToken{Location: catalog.LocationQuery, Name: "api_key", Token: "tok123"}
	header := EncodeAuthTokenHeader(orig)
	decoded, err := DecodeAuthTokenHeader(header)
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
}

func TestDecodeAuthTokenHeaderRejectsMalformed(t *testing.T) {
	_, err := DecodeAuthTokenHeader("only two fields")
	assert.Error(t, err)
}

func TestMethodFromToolName(t *testing.T) {
	assert.Equal(t, "send_email", methodFromToolName("Gmail", "GMAIL__SEND_EMAIL"))
}
