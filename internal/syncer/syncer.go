// Package syncer implements the Tool Catalog Synchronizer (C5): pulling a
// server's live tool list, normalizing/hashing it, diffing against the
// stored catalog, re-embedding only what changed, and applying the result
// as one batch write each for creates, updates and deletes (§4.5). A failed
// later batch does not undo an earlier one.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/catalog/normalize"
	"github.com/aci-labs/mcp-gateway/internal/embedding"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

// Lister is the subset of transport.Client the synchronizer needs: a live
// tool listing from the upstream server, independent of any gateway
// session (sync runs out-of-band, not on a client's request path).
type Lister interface {
	ListTools(ctx context.Context) ([]mcptypes.ToolSchema, error)
	Close() error
}

// Dialer opens a Lister for server, bypassing C9's session multiplexing
// since a sync pass owns its own short-lived upstream connection.
type Dialer func(server *catalog.Server) (Lister, error)

// Syncer implements C5.
type Syncer struct {
	store    catalog.Store
	embedder embedding.Adapter
	dial     Dialer
	logger   *zap.Logger
}

func New(store catalog.Store, embedder embedding.Adapter, dial Dialer, logger *zap.Logger) *Syncer {
	return &Syncer{store: store, embedder: embedder, dial: dial, logger: logger.Named("syncer")}
}

// Report summarizes one server's sync pass for the admin log.
type Report struct {
	Created   int
	Updated   int
	Reembeded int
	Deleted   int
	Unchanged int
}

// Sync pulls server's current tool list, diffs it against the stored
// catalog, re-embeds deltas, and applies the result in one batch per
// create/update/delete (§4.5 steps 1-5).
func (s *Syncer) Sync(ctx context.Context, server *catalog.Server) (*Report, error) {
	client, err := s.dial(server)
	if err != nil {
		return nil, fmt.Errorf("syncer: dial server %s: %w", server.Name, err)
	}
	defer client.Close()

	live, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: list tools on server %s: %w", server.Name, err)
	}

	fresh, err := normalizeTools(server, live)
	if err != nil {
		return nil, fmt.Errorf("syncer: normalize tools for server %s: %w", server.Name, err)
	}

	existing, err := s.store.ListToolsByServer(ctx, server.ID)
	if err != nil {
		return nil, fmt.Errorf("syncer: list existing tools for server %s: %w", server.Name, err)
	}

	diff := ComputeDiff(existing, fresh)

	if err := s.embedDeltas(ctx, &diff); err != nil {
		return nil, fmt.Errorf("syncer: embed deltas for server %s: %w", server.Name, err)
	}

	if err := s.apply(ctx, &diff); err != nil {
		return nil, fmt.Errorf("syncer: apply diff for server %s: %w", server.Name, err)
	}

	now := time.Now()
	server.LastSyncedAt = &now
	if err := s.store.UpdateServer(ctx, server); err != nil {
		s.logger.Warn("persist last_synced_at failed", zap.String("server_id", server.ID), zap.Error(err))
	}

	report := &Report{
		Created:   len(diff.ToCreate),
		Updated:   len(diff.ToUpdateWithoutReembed) + len(diff.ToUpdateWithReembed),
		Reembeded: len(diff.ToUpdateWithReembed),
		Deleted:   len(diff.ToDelete),
		Unchanged: len(diff.Unchanged),
	}
	s.logger.Info("synced server",
		zap.String("server_id", server.ID), zap.String("server_name", server.Name),
		zap.Int("created", report.Created), zap.Int("updated", report.Updated),
		zap.Int("deleted", report.Deleted), zap.Int("unchanged", report.Unchanged))
	return report, nil
}

// normalizeTools builds catalog.Tool rows for the live upstream schemas:
// qualified name, content hashes, virtual metadata left nil (only real
// upstream servers are synced; virtual tools are authored directly).
func normalizeTools(server *catalog.Server, live []mcptypes.ToolSchema) ([]catalog.Tool, error) {
	tools := make([]catalog.Tool, 0, len(live))
	for _, t := range live {
		qualifiedName, err := normalize.QualifiedToolName(server.Name, t.Name)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		descHash := normalize.HashString(t.Description)
		schemaHash, err := normalize.HashCanonicalJSON(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: hash input schema: %w", t.Name, err)
		}

		tools = append(tools, catalog.Tool{
			MCPServerID: server.ID,
			Name:        qualifiedName,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ToolMetadata: catalog.ToolMetadata{
				CanonicalToolName:            qualifiedName,
				CanonicalToolDescriptionHash: descHash,
				CanonicalToolInputSchemaHash: schemaHash,
			},
		})
	}
	return tools, nil
}

// embedDeltas computes embeddings only for newly created tools and tools
// whose content hash changed (§4.5 step 4: "re-embed only deltas").
func (s *Syncer) embedDeltas(ctx context.Context, diff *Diff) error {
	needsEmbedding := make([]*catalog.Tool, 0, len(diff.ToCreate)+len(diff.ToUpdateWithReembed))
	texts := make([]string, 0, cap(needsEmbedding))
	for i := range diff.ToCreate {
		needsEmbedding = append(needsEmbedding, &diff.ToCreate[i])
		texts = append(texts, embeddingText(&diff.ToCreate[i]))
	}
	for i := range diff.ToUpdateWithReembed {
		needsEmbedding = append(needsEmbedding, &diff.ToUpdateWithReembed[i])
		texts = append(texts, embeddingText(&diff.ToUpdateWithReembed[i]))
	}
	if len(needsEmbedding) == 0 {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(needsEmbedding) {
		return fmt.Errorf("embed: provider returned %d vectors for %d inputs", len(vectors), len(needsEmbedding))
	}
	for i, tool := range needsEmbedding {
		tool.Embedding = vectors[i]
	}
	return nil
}

func embeddingText(t *catalog.Tool) string {
	return t.Name + " " + t.Description
}

// apply writes the diff in a single batch per entity type (§4.5 step 5).
func (s *Syncer) apply(ctx context.Context, diff *Diff) error {
	if len(diff.ToCreate) > 0 {
		if err := s.store.CreateTools(ctx, diff.ToCreate); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	updates := append(append([]catalog.Tool{}, diff.ToUpdateWithReembed...), diff.ToUpdateWithoutReembed...)
	if len(updates) > 0 {
		if err := s.store.UpdateTools(ctx, updates); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}
	if len(diff.ToDelete) > 0 {
		ids := make([]string, len(diff.ToDelete))
		for i, t := range diff.ToDelete {
			ids[i] = t.ID
		}
		if err := s.store.DeleteTools(ctx, ids); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
	}
	return nil
}
