// Package virtualmcp implements the Virtual-MCP Executor (C6): tools with
// no real upstream, dispatched either as a templated REST call or an
// in-process connector, grounded on the teacher's internal/core response
// handler chain and internal/template Sprig context for the REST leg, and
// on the "avoid runtime import-by-name" REDESIGN FLAG for the connector
// leg (an explicit registry instead of reflection).
package virtualmcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

// AuthToken is the caller's credential, carried in the REST leg as the
// x-virtual-mcp-auth-token wire header (§4.6): "<location> <name>
// [<prefix>] <token>".
type AuthToken struct {
	Location catalog.APIKeyLocation
	Name     string
	Prefix   string
	Token    string
}

// AuthTokenHeader is the wire header name internal/gateway reads the
// caller's virtual-MCP credential from (§4.6, §6).
const AuthTokenHeader = "x-virtual-mcp-auth-token"

// EncodeAuthTokenHeader renders t as the wire header value.
func EncodeAuthTokenHeader(t AuthToken) string {
	fields := []string{string(t.Location), t.Name}
	if t.Prefix != "" {
		fields = append(fields, t.Prefix)
	}
	fields = append(fields, t.Token)
	return strings.Join(fields, " ")
}

// DecodeAuthTokenHeader parses the wire header value back into an AuthToken.
func DecodeAuthTokenHeader(header string) (AuthToken, error) {
	fields := strings.Fields(header)
	if len(fields) != 3 && len(fields) != 4 {
		return AuthToken{}, fmt.Errorf("virtualmcp: malformed auth token header: %q", header)
	}
	t := AuthToken{Location: catalog.APIKeyLocation(fields[0]), Name: fields[1]}
	if len(fields) == 4 {
		t.Prefix = fields[2]
		t.Token = fields[3]
	} else {
		t.Token = fields[2]
	}
	return t, nil
}

// Connector is an in-process virtual tool implementation (§4.6 "connector
// variant"). Implementations must never panic past Invoke; Executor
// recovers defensively anyway.
type Connector interface {
	Invoke(ctx context.Context, method string, auth AuthToken, arguments map[string]any) (*mcptypes.CallToolResult, error)
}

// Registry resolves a connector by its derived name (module/class), an
// explicit map standing in for the reflection-by-name the REDESIGN FLAGS
// disallow.
type Registry map[string]Connector

// Executor implements C6's dispatch-by-tool_metadata.type.
type Executor struct {
	registry Registry
	http     *http.Client
}

func NewExecutor(registry Registry) *Executor {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &Executor{
		registry: registry,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{DialContext: dialer.DialContext},
		},
	}
}

// Execute dispatches tool (which must have tool.Virtual set) per §4.6.
func (e *Executor) Execute(ctx context.Context, server *catalog.Server, tool *catalog.Tool, auth AuthToken, arguments []byte) (result *mcptypes.CallToolResult, err error) {
	if tool.Virtual == nil {
		return nil, fmt.Errorf("virtualmcp: tool %s has no virtual metadata", tool.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			result = mcptypes.NewErrorResult(fmt.Sprintf("virtual tool panicked: %v", r))
			err = nil
		}
	}()

	switch tool.Virtual.Kind {
	case catalog.VirtualToolREST:
		return e.executeREST(ctx, server, tool, auth, arguments)
	case catalog.VirtualToolConnector:
		return e.executeConnector(ctx, server, tool, auth, arguments)
	default:
		return nil, fmt.Errorf("virtualmcp: unknown virtual tool kind %q", tool.Virtual.Kind)
	}
}

// executeConnector derives module/class/method by naming convention
// (§4.6) and dispatches through the registry rather than reflection.
func (e *Executor) executeConnector(ctx context.Context, server *catalog.Server, tool *catalog.Tool, auth AuthToken, arguments []byte) (*mcptypes.CallToolResult, error) {
	connectorName := tool.Virtual.ConnectorName
	if connectorName == "" {
		connectorName = strings.ToLower(server.Name)
	}
	connector, ok := e.registry[connectorName]
	if !ok {
		return mcptypes.NewErrorResult(fmt.Sprintf("no connector registered for %q", connectorName)), nil
	}

	method := methodFromToolName(server.Name, tool.Name)

	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("virtualmcp: invalid tool arguments: %w", err)
		}
	}

	result, err := connector.Invoke(ctx, method, auth, args)
	if err != nil {
		return mcptypes.NewErrorResult(err.Error()), nil
	}
	if result == nil {
		return nil, fmt.Errorf("virtualmcp: connector %q returned nil result for %q", connectorName, method)
	}
	return result, nil
}

// methodFromToolName derives the connector method from the qualified tool
// name SERVER__SUFFIX, lower-cased (§4.6).
func methodFromToolName(serverName, qualifiedName string) string {
	prefix := strings.ToUpper(sanitizeForPrefix(serverName)) + "__"
	suffix := strings.TrimPrefix(qualifiedName, prefix)
	return strings.ToLower(suffix)
}

var nonAlnumUnderscore = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func sanitizeForPrefix(s string) string {
	return nonAlnumUnderscore.ReplaceAllString(s, "_")
}

// executeREST implements the seven REST-variant steps of §4.6.
func (e *Executor) executeREST(ctx context.Context, server *catalog.Server, tool *catalog.Tool, auth AuthToken, arguments []byte) (*mcptypes.CallToolResult, error) {
	schema, err := parseSchema(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("virtualmcp: parse input schema: %w", err)
	}

	var rawArgs map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &rawArgs); err != nil {
			return nil, fmt.Errorf("virtualmcp: invalid tool arguments: %w", err)
		}
	}
	if rawArgs == nil {
		rawArgs = map[string]any{}
	}

	visible := schema.filterVisible()
	if err := injectInvisibleDefaults(schema, rawArgs); err != nil {
		return nil, fmt.Errorf("virtualmcp: %w", err)
	}
	stripNilLeaves(rawArgs)
	if err := visible.validate(rawArgs); err != nil {
		return mcptypes.NewErrorResult(fmt.Sprintf("argument validation failed: %v", err)), nil
	}

	parts := partitionByLocation(schema, rawArgs)

	endpoint, err := substituteEndpoint(tool.Virtual.Endpoint, parts.path)
	if err != nil {
		return nil, fmt.Errorf("virtualmcp: %w", err)
	}

	if err := injectAuth(parts, auth); err != nil {
		return nil, fmt.Errorf("virtualmcp: %w", err)
	}

	req, err := buildHTTPRequest(ctx, server.URL, endpoint, tool.Virtual.Method, parts)
	if err != nil {
		return nil, fmt.Errorf("virtualmcp: build request: %w", err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("virtualmcp: http call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("virtualmcp: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return mcptypes.NewErrorResult(string(body)), nil
	}
	return coerceResponse(resp.Header.Get("Content-Type"), body)
}

func coerceResponse(contentType string, body []byte) (*mcptypes.CallToolResult, error) {
	switch {
	case strings.Contains(contentType, "application/json"):
		var parsed any
		if err := json.Unmarshal(body, &parsed); err != nil {
			return mcptypes.NewTextResult(string(body)), nil
		}
		reserialized, err := json.Marshal(parsed)
		if err != nil {
			return mcptypes.NewTextResult(string(body)), nil
		}
		return mcptypes.NewTextResult(string(reserialized)), nil
	case strings.HasPrefix(contentType, "text/"):
		return mcptypes.NewTextResult(string(body)), nil
	default:
		return &mcptypes.CallToolResult{
			Content: []mcptypes.Content{{Type: "image", Data: base64.StdEncoding.EncodeToString(body), MIME: contentType}},
		}, nil
	}
}
