package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

func TestComputeDiffClassifiesCreateUpdateDeleteUnchanged(t *testing.T) {
	old := []catalog.Tool{
		{ID: "1", Name: "srv__a", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h1"}},
		{ID: "2", Name: "srv__b", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h2"}},
		{ID: "3", Name: "srv__gone", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h3"}},
	}
	fresh := []catalog.Tool{
		{Name: "srv__a", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h1"}},
		{Name: "srv__b", Tags: []string{"new-tag"}, ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h2"}},
		{Name: "srv__new", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h4"}},
	}

	diff := ComputeDiff(old, fresh)
	assert.Len(t, diff.ToCreate, 1)
	assert.Equal(t, "srv__new", diff.ToCreate[0].Name)
	assert.Len(t, diff.ToUpdateWithoutReembed, 1)
	assert.Equal(t, "srv__b", diff.ToUpdateWithoutReembed[0].Name)
	assert.Len(t, diff.Unchanged, 1)
	assert.Equal(t, "srv__a", diff.Unchanged[0].Name)
	assert.Len(t, diff.ToDelete, 1)
	assert.Equal(t, "srv__gone", diff.ToDelete[0].Name)
}

func TestComputeDiffMarksReembedOnHashChange(t *testing.T) {
	old := []catalog.Tool{{ID: "1", Name: "srv__a", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h1"}}}
	fresh := []catalog.Tool{{Name: "srv__a", Description: "changed", ToolMetadata: catalog.ToolMetadata{CanonicalToolDescriptionHash: "h2"}}}

	diff := ComputeDiff(old, fresh)
	require.Len(t, diff.ToUpdateWithReembed, 1)
	assert.Equal(t, "1", diff.ToUpdateWithReembed[0].ID)
}

type fakeLister struct {
	tools []mcptypes.ToolSchema
	err   error
}

func (f *fakeLister) ListTools(context.Context) ([]mcptypes.ToolSchema, error) { return f.tools, f.err }
func (f *fakeLister) Close() error                                             { return nil }

type fakeStore struct {
	catalog.Store
	existing []catalog.Tool
	created  []catalog.Tool
	updated  []catalog.Tool
	deleted  []string
	server   *catalog.Server
}

func (s *fakeStore) ListToolsByServer(context.Context, string) ([]catalog.Tool, error) {
	return s.existing, nil
}
func (s *fakeStore) CreateTools(_ context.Context, tools []catalog.Tool) error {
	s.created = tools
	return nil
}
func (s *fakeStore) UpdateTools(_ context.Context, tools []catalog.Tool) error {
	s.updated = tools
	return nil
}
func (s *fakeStore) DeleteTools(_ context.Context, ids []string) error {
	s.deleted = ids
	return nil
}
func (s *fakeStore) UpdateServer(_ context.Context, srv *catalog.Server) error {
	s.server = srv
	return nil
}

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 2, 3}
	}
	return vecs, nil
}
func (f *fakeEmbedder) Dim() int { return 3 }

func TestSyncCreatesEmbedsAndApplies(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	lister := &fakeLister{tools: []mcptypes.ToolSchema{
		{Name: "SEND", Description: "sends a thing", InputSchema: []byte(`{"type":"object"}`)},
	}}
	s := New(store, embedder, func(*catalog.Server) (Lister, error) { return lister, nil }, zap.NewNop())

	report, err := s.Sync(context.Background(), &catalog.Server{ID: "srv1", Name: "Gmail"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Len(t, store.created, 1)
	assert.Equal(t, "Gmail__SEND", store.created[0].Name)
	assert.NotNil(t, store.created[0].Embedding)
	assert.Len(t, embedder.calls, 1)
	assert.NotNil(t, store.server.LastSyncedAt)
}

func TestSyncDeletesMissingTools(t *testing.T) {
	store := &fakeStore{existing: []catalog.Tool{{ID: "old1", Name: "GMAIL__OLD"}}}
	embedder := &fakeEmbedder{}
	lister := &fakeLister{tools: nil}
	s := New(store, embedder, func(*catalog.Server) (Lister, error) { return lister, nil }, zap.NewNop())

	report, err := s.Sync(context.Background(), &catalog.Server{ID: "srv1", Name: "Gmail"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, []string{"old1"}, store.deleted)
}
