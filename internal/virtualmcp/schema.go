package virtualmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
)

// toolSchema is the gateway's extended input_schema: a plain JSON Schema
// plus two per-property markers this gateway layers on top — "visible"
// and "location" — neither of which are core JSON Schema vocabulary, so
// they're walked by hand rather than forced through a schema library.
type toolSchema struct {
	raw        map[string]any
	properties map[string]propertySchema
	required   []string
}

type propertySchema struct {
	visible  bool // defaults true when absent
	location catalog.APIKeyLocation
	hasDef   bool
	def      any
	raw      map[string]any
}

func parseSchema(rawJSON []byte) (*toolSchema, error) {
	var raw map[string]any
	if len(rawJSON) == 0 {
		raw = map[string]any{"type": "object", "properties": map[string]any{}}
	} else if err := json.Unmarshal(rawJSON, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	s := &toolSchema{raw: raw, properties: map[string]propertySchema{}}

	if req, ok := raw["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.required = append(s.required, name)
			}
		}
	}

	props, _ := raw["properties"].(map[string]any)
	for name, v := range props {
		propMap, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ps := propertySchema{visible: true, location: catalog.LocationBody, raw: propMap}
		if visible, ok := propMap["visible"].(bool); ok {
			ps.visible = visible
		}
		if loc, ok := propMap["location"].(string); ok && loc != "" {
			ps.location = catalog.APIKeyLocation(loc)
		}
		if def, ok := propMap["default"]; ok {
			ps.hasDef = true
			ps.def = def
		}
		s.properties[name] = ps
	}

	return s, nil
}

func (s *toolSchema) isRequired(name string) bool {
	for _, r := range s.required {
		if r == name {
			return true
		}
	}
	return false
}

// filterVisible drops properties marked visible=false, per §4.6 step 1.
func (s *toolSchema) filterVisible() *toolSchema {
	filtered := &toolSchema{
		raw:        cloneJSONMap(s.raw),
		properties: map[string]propertySchema{},
	}
	props := map[string]any{}
	for name, ps := range s.properties {
		if !ps.visible {
			continue
		}
		filtered.properties[name] = ps
		props[name] = ps.raw
	}
	filtered.raw["properties"] = props

	required := make([]string, 0, len(s.required))
	for _, r := range s.required {
		if ps, ok := s.properties[r]; ok && !ps.visible {
			continue
		}
		required = append(required, r)
	}
	filtered.required = required
	filtered.raw["required"] = toAnySlice(required)

	return filtered
}

func cloneJSONMap(m map[string]any) map[string]any {
	b, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// injectInvisibleDefaults fills in args[name] = default for every required,
// invisible property missing from args (§4.6 step 2). A required invisible
// property with no default is a configuration error.
func injectInvisibleDefaults(s *toolSchema, args map[string]any) error {
	for name, ps := range s.properties {
		if ps.visible || !s.isRequired(name) {
			continue
		}
		if _, present := args[name]; present {
			continue
		}
		if !ps.hasDef {
			return fmt.Errorf("required invisible property %q has no default", name)
		}
		args[name] = ps.def
	}
	return nil
}

// stripNilLeaves removes nil-valued and empty-map leaves recursively
// (§4.6 step 3: "strip None/absent leaves").
func stripNilLeaves(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			stripNilLeaves(val)
			if len(val) == 0 {
				delete(m, k)
			}
		}
	}
}

// validate checks args against s using kin-openapi's structural JSON
// Schema validator, after the caller has already filtered/defaulted the
// custom visible/location markers this package layers on top.
func (s *toolSchema) validate(args map[string]any) error {
	body, err := json.Marshal(s.raw)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(body); err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	return schema.VisitJSON(args)
}

// argumentParts is the argument tree split by declared location (§4.6
// step 4): path substitutes into the endpoint, the rest become HTTP
// request pieces.
type argumentParts struct {
	path   map[string]any
	query  map[string]any
	header map[string]any
	cookie map[string]any
	body   map[string]any
}

func partitionByLocation(s *toolSchema, args map[string]any) *argumentParts {
	parts := &argumentParts{
		path:   map[string]any{},
		query:  map[string]any{},
		header: map[string]any{},
		cookie: map[string]any{},
		body:   map[string]any{},
	}
	for name, value := range args {
		location := catalog.LocationBody
		if ps, ok := s.properties[name]; ok {
			location = ps.location
		}
		switch location {
		case catalog.LocationPath:
			parts.path[name] = value
		case catalog.LocationQuery:
			parts.query[name] = value
		case catalog.LocationHeader:
			parts.header[name] = value
		case catalog.LocationCookie:
			parts.cookie[name] = value
		default:
			parts.body[name] = value
		}
	}
	return parts
}

// endpointPlaceholder matches the wire format's {name} path placeholders
// so they can be rewritten into Go template actions before execution.
var endpointPlaceholder = regexp.MustCompile(`\{(\w+)\}`)

// substituteEndpoint replaces {name} placeholders in endpoint with path
// values (§4.6 step 5), by rewriting them into a Sprig-enabled text/template
// and executing it against path — the same templating context the teacher
// builds for its REST leg, rather than a bespoke string replace.
func substituteEndpoint(endpoint string, path map[string]any) (string, error) {
	tmplSrc := endpointPlaceholder.ReplaceAllString(endpoint, "{{.$1}}")
	tmpl, err := template.New("endpoint").Funcs(sprig.FuncMap()).Option("missingkey=error").Parse(tmplSrc)
	if err != nil {
		return "", fmt.Errorf("parse endpoint template %q: %w", endpoint, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, path); err != nil {
		return "", fmt.Errorf("unresolved path placeholder in endpoint %q: %w", endpoint, err)
	}
	return buf.String(), nil
}

// injectAuth places the caller's token at its declared location (§4.6
// step 6). path is illegal for auth and rejected explicitly.
func injectAuth(parts *argumentParts, auth AuthToken) error {
	if auth.Token == "" {
		return nil
	}
	value := auth.Token
	if auth.Prefix != "" {
		value = auth.Prefix + " " + auth.Token
	}
	switch auth.Location {
	case catalog.LocationHeader:
		parts.header[auth.Name] = value
	case catalog.LocationQuery:
		parts.query[auth.Name] = value
	case catalog.LocationCookie:
		parts.cookie[auth.Name] = value
	case catalog.LocationBody:
		parts.body[auth.Name] = value
	case catalog.LocationPath:
		return fmt.Errorf("path location is not supported for auth token")
	default:
		return fmt.Errorf("unknown auth token location %q", auth.Location)
	}
	return nil
}

// buildHTTPRequest assembles the outbound call (§4.6 step 7).
func buildHTTPRequest(ctx context.Context, baseURL, endpoint, method string, parts *argumentParts) (*http.Request, error) {
	full := baseURL + endpoint
	if len(parts.query) > 0 {
		u, err := url.Parse(full)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint url: %w", err)
		}
		q := u.Query()
		for k, v := range parts.query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		full = u.String()
	}

	var bodyReader *bytes.Reader
	if len(parts.body) > 0 {
		b, err := json.Marshal(parts.body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), full, bodyReader)
	if err != nil {
		return nil, err
	}
	if len(parts.body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range parts.header {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}
	for k, v := range parts.cookie {
		req.AddCookie(&http.Cookie{Name: k, Value: fmt.Sprintf("%v", v)})
	}
	return req, nil
}
