package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aci-labs/mcp-gateway/internal/config"
)

func TestNoopAdapterReturnsNilVectors(t *testing.T) {
	a := NewAdapter(config.EmbeddingConfig{Provider: "none", Dim: 8}, nil)
	vecs, err := a.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Nil(t, vecs[0])
	assert.Equal(t, 8, a.Dim())
}

func TestHTTPAdapterParsesEmbeddingsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.4,0.5]},{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	a := NewAdapter(config.EmbeddingConfig{Provider: "openai", BaseURL: server.URL, Dim: 2}, server.Client())
	vecs, err := a.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.4, 0.5}, vecs[1])
}

func TestHTTPAdapterSurfacesProviderErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	a := NewAdapter(config.EmbeddingConfig{Provider: "openai", BaseURL: server.URL}, server.Client())
	_, err := a.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestHTTPAdapterEmptyInputShortCircuits(t *testing.T) {
	a := NewAdapter(config.EmbeddingConfig{Provider: "openai"}, http.DefaultClient)
	vecs, err := a.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
