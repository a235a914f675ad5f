package transport

import (
	"encoding/json"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

func convertTools(tools []mcpgo.Tool) []mcptypes.ToolSchema {
	out := make([]mcptypes.ToolSchema, len(tools))
	for i, t := range tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = []byte(`{}`)
		}
		out[i] = mcptypes.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return out
}

// convertResult adapts mcp-go's polymorphic content union to our flat
// Content struct, matching the teacher's convertMCPGoResult.
func convertResult(res *mcpgo.CallToolResult) *mcptypes.CallToolResult {
	out := &mcptypes.CallToolResult{IsError: res.IsError}
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			out.Content = append(out.Content, mcptypes.Content{Type: "text", Text: v.Text})
		case *mcpgo.TextContent:
			out.Content = append(out.Content, mcptypes.Content{Type: "text", Text: v.Text})
		case mcpgo.ImageContent:
			out.Content = append(out.Content, mcptypes.Content{Type: "image", Data: v.Data, MIME: v.MIMEType})
		case *mcpgo.ImageContent:
			out.Content = append(out.Content, mcptypes.Content{Type: "image", Data: v.Data, MIME: v.MIMEType})
		default:
			raw, err := json.Marshal(c)
			if err != nil {
				continue
			}
			var generic struct {
				Type string `json:"type"`
				Text string `json:"text"`
				Data string `json:"data"`
				MIME string `json:"mimeType"`
			}
			if json.Unmarshal(raw, &generic) == nil && generic.Type != "" {
				out.Content = append(out.Content, mcptypes.Content{
					Type: generic.Type, Text: generic.Text, Data: generic.Data, MIME: generic.MIME,
				})
			}
		}
	}
	return out
}
