package syncer

import (
	"reflect"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
)

// Diff is the 5-way split from §4.5, ported from the original
// implementation's diff_tools/compare_tool_fields: tools are matched by
// name; a rename is a delete-then-create even if content is identical.
type Diff struct {
	ToCreate               []catalog.Tool
	ToDelete               []catalog.Tool
	ToUpdateWithReembed    []catalog.Tool
	ToUpdateWithoutReembed []catalog.Tool
	Unchanged              []catalog.Tool
}

// ComputeDiff compares the previously stored tools for a server against a
// freshly normalized candidate set pulled from upstream.
func ComputeDiff(old, fresh []catalog.Tool) Diff {
	oldByName := make(map[string]catalog.Tool, len(old))
	for _, t := range old {
		oldByName[t.Name] = t
	}
	freshByName := make(map[string]catalog.Tool, len(fresh))
	for _, t := range fresh {
		freshByName[t.Name] = t
	}

	var d Diff
	for name, newTool := range freshByName {
		oldTool, existed := oldByName[name]
		if !existed {
			d.ToCreate = append(d.ToCreate, newTool)
			continue
		}
		newTool.ID = oldTool.ID
		fieldsChanged, embeddingChanged := compareToolFields(oldTool, newTool)
		switch {
		case embeddingChanged:
			d.ToUpdateWithReembed = append(d.ToUpdateWithReembed, newTool)
		case fieldsChanged:
			d.ToUpdateWithoutReembed = append(d.ToUpdateWithoutReembed, newTool)
		default:
			d.Unchanged = append(d.Unchanged, oldTool)
		}
	}

	for name, oldTool := range oldByName {
		if _, stillPresent := freshByName[name]; !stillPresent {
			d.ToDelete = append(d.ToDelete, oldTool)
		}
	}

	return d
}

// compareToolFields mirrors compare_tool_fields: embedding-relevant fields
// are canonical name plus the description/input-schema content hashes;
// everything else (tags, virtual metadata) is a non-embedding field.
func compareToolFields(old, new catalog.Tool) (fieldsChanged, embeddingFieldsChanged bool) {
	embeddingFieldsChanged = old.ToolMetadata.CanonicalToolName != new.ToolMetadata.CanonicalToolName ||
		old.ToolMetadata.CanonicalToolDescriptionHash != new.ToolMetadata.CanonicalToolDescriptionHash ||
		old.ToolMetadata.CanonicalToolInputSchemaHash != new.ToolMetadata.CanonicalToolInputSchemaHash

	nonEmbeddingChanged := !reflect.DeepEqual(old.Tags, new.Tags) || !reflect.DeepEqual(old.Virtual, new.Virtual)

	return nonEmbeddingChanged || embeddingFieldsChanged, embeddingFieldsChanged
}
