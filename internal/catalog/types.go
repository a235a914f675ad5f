// Package catalog holds the domain entities of §3 (servers, configurations,
// connected accounts, tools, bundles, sessions) and their persistence (C1).
package catalog

import "time"

// AuthType discriminates an AuthConfig/AuthCredentials tagged union.
type AuthType string

const (
	AuthNoAuth AuthType = "no_auth"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth2 AuthType = "oauth2"
)

// APIKeyLocation is where an api_key AuthConfig places its credential, or
// (reused by the virtual-MCP REST executor, §4.6) where a tool argument
// belongs in the outbound HTTP request.
type APIKeyLocation string

const (
	LocationHeader APIKeyLocation = "header"
	LocationQuery  APIKeyLocation = "query"
	LocationCookie APIKeyLocation = "cookie"
	LocationBody   APIKeyLocation = "body"
	// LocationPath is valid only for REST tool arguments (endpoint
	// templating); illegal as an auth-token location (§4.6 step 6).
	LocationPath APIKeyLocation = "path"
)

// TokenEndpointAuthMethod is how an oauth2 AuthConfig authenticates to its
// token endpoint when refreshing (§4.3).
type TokenEndpointAuthMethod string

const (
	ClientSecretBasic TokenEndpointAuthMethod = "client_secret_basic"
	ClientSecretPost  TokenEndpointAuthMethod = "client_secret_post"
)

// AuthConfig is the tagged union described in §3. Exactly the fields for
// Type are meaningful; the rest are zero-valued.
type AuthConfig struct {
	Type AuthType `json:"type"`

	// api_key
	Location APIKeyLocation `json:"location,omitempty"`
	Name     string         `json:"name,omitempty"`
	Prefix   string         `json:"prefix,omitempty"`

	// oauth2
	ClientID                string                  `json:"client_id,omitempty"`
	ClientSecret            string                  `json:"client_secret,omitempty"`
	Scope                   string                  `json:"scope,omitempty"`
	AuthorizeURL            string                  `json:"authorize_url,omitempty"`
	AccessTokenURL          string                  `json:"access_token_url,omitempty"`
	RefreshTokenURL         string                  `json:"refresh_token_url,omitempty"`
	TokenEndpointAuthMethod TokenEndpointAuthMethod `json:"token_endpoint_auth_method,omitempty"`
}

// AuthCredentials is the tagged union of stored credentials matching an
// AuthConfig's Type.
type AuthCredentials struct {
	Type AuthType `json:"type"`

	// api_key
	SecretKey string `json:"secret_key,omitempty"`

	// oauth2
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
}

// Ownership discriminates a ConnectedAccount's binding. See §9 "Mixed-ownership".
type Ownership string

const (
	OwnershipIndividual  Ownership = "individual"
	OwnershipShared      Ownership = "shared"
	OwnershipOperational Ownership = "operational"
)

// Transport is how C4 talks to an upstream server. Virtual servers leave
// this empty.
type Transport string

const (
	TransportStreamableHTTP Transport = "streamable_http"
	TransportSSE            Transport = "sse"
)

// ServerKind distinguishes a real upstream server from a virtual one (§3
// "Virtual MCP Server... mirror MCPServer/MCPTool but have no url/transport").
type ServerKind string

const (
	ServerUpstream ServerKind = "upstream"
	ServerVirtual  ServerKind = "virtual"
)

// VirtualToolKind discriminates a virtual tool's execution strategy (C6).
type VirtualToolKind string

const (
	VirtualToolREST      VirtualToolKind = "rest"
	VirtualToolConnector VirtualToolKind = "connector"
)

// VirtualToolMetadata is the tagged union backing a virtual tool's
// tool_metadata column.
type VirtualToolMetadata struct {
	Kind VirtualToolKind `json:"kind"`

	// rest
	Method   string `json:"method,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	// connector
	ConnectorName string `json:"connector_name,omitempty"`
}

// ToolMetadata is the canonical-identity metadata every tool carries, used
// by the synchronizer's content-hash diff (C5).
type ToolMetadata struct {
	CanonicalToolName            string `json:"canonical_tool_name"`
	CanonicalToolDescriptionHash string `json:"canonical_tool_description_hash"`
	CanonicalToolInputSchemaHash string `json:"canonical_tool_input_schema_hash"`
}

// Server is an MCP Server (§3), upstream or virtual.
type Server struct {
	ID             string
	Name           string
	Kind           ServerKind
	URL            string
	Transport      Transport
	Description    string
	Categories     []string
	AuthConfigs    []AuthConfig
	ServerMetadata map[string]any
	OrganizationID *string // null = public
	LastSyncedAt   *time.Time
	Embedding      []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Configuration is an MCP Server Configuration (§3).
type Configuration struct {
	ID                        string
	OrganizationID            string
	MCPServerID               string
	Name                      string
	AuthType                  AuthType
	ConnectedAccountOwnership Ownership
	AllToolsEnabled           bool
	EnabledTools              []string // tool ids
	AllowedTeams              []string // team ids
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// ConnectedAccount is a Connected Account (§3). UserID is nil for
// shared/operational ownership — see the sum type in §9.
type ConnectedAccount struct {
	ID                       string
	UserID                   *string
	MCPServerConfigurationID string
	Ownership                Ownership
	AuthCredentials          AuthCredentials
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Owner resolves a ConnectedAccount's ownership into the sum type the spec
// calls for (§9): Individual{user_id}, Shared, Operational.
type Owner struct {
	Individual bool
	UserID     string // set only when Individual
}

func (a *ConnectedAccount) Owner() Owner {
	switch a.Ownership {
	case OwnershipIndividual:
		uid := ""
		if a.UserID != nil {
			uid = *a.UserID
		}
		return Owner{Individual: true, UserID: uid}
	default:
		return Owner{}
	}
}

// Tool is an MCP Tool (§3), upstream or virtual.
type Tool struct {
	ID           string
	MCPServerID  string
	Name         string // SERVER__TOOLNAME
	Description  string
	InputSchema  []byte // JSON-Schema Draft-7
	Tags         []string
	ToolMetadata ToolMetadata
	Virtual      *VirtualToolMetadata // non-nil only for virtual tools
	Embedding    []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Bundle is an MCP Server Bundle (§3): the client-addressable unit.
type Bundle struct {
	ID                        string
	UserID                    string
	OrganizationID            string
	Name                      string
	BundleKey                 string
	MCPServerConfigurationIDs []string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Session is an MCP Session (§3): the gateway-side, per-bundle session.
type Session struct {
	ID                  string
	BundleID            string
	ExternalMCPSessions map[string]string // server_id -> upstream session-id
	LastAccessedAt      time.Time
	Deleted             bool
}
