package catalog

import "context"

// ToolQuery is the parameter object for Store.SearchTools (§4.1).
type ToolQuery struct {
	AllowedServerIDs []string  // positive filter
	DisabledToolIDs  []string  // excluded
	QueryVector      []float32 // optional; nil means "sort by stable name"
	Limit            int
	Offset           int
}

// Store is the Catalog Store contract (C1): durable storage for every
// entity in §3 plus a vector index for tool/server embeddings.
type Store interface {
	// Organizations, teams
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	CreateTeam(ctx context.Context, team *Team) error
	ListTeamsByOrg(ctx context.Context, orgID string) ([]Team, error)

	// Servers
	CreateServer(ctx context.Context, s *Server) error
	UpdateServer(ctx context.Context, s *Server) error
	DeleteServer(ctx context.Context, id string) error
	GetServerByName(ctx context.Context, name string) (*Server, error)
	GetServer(ctx context.Context, id string) (*Server, error)
	ListServers(ctx context.Context, orgID *string) ([]Server, error)

	// Configurations
	CreateConfiguration(ctx context.Context, c *Configuration) error
	UpdateConfiguration(ctx context.Context, c *Configuration) error
	DeleteConfiguration(ctx context.Context, id string) error
	GetConfiguration(ctx context.Context, id string) (*Configuration, error)
	ListConfigurationsByServer(ctx context.Context, serverID string) ([]Configuration, error)
	ListConfigurationsByOrg(ctx context.Context, orgID string) ([]Configuration, error)

	// Connected accounts
	CreateConnectedAccount(ctx context.Context, a *ConnectedAccount) error
	UpdateConnectedAccount(ctx context.Context, a *ConnectedAccount) error
	DeleteConnectedAccount(ctx context.Context, id string) error
	GetConnectedAccount(ctx context.Context, id string) (*ConnectedAccount, error)
	GetIndividualAccount(ctx context.Context, userID, configurationID string) (*ConnectedAccount, error)
	GetSharedOrOperationalAccount(ctx context.Context, configurationID string) (*ConnectedAccount, error)
	ListConnectedAccountsByConfiguration(ctx context.Context, configurationID string) ([]ConnectedAccount, error)

	// Tools
	CreateTools(ctx context.Context, tools []Tool) error
	UpdateTools(ctx context.Context, tools []Tool) error
	DeleteTools(ctx context.Context, ids []string) error
	GetTool(ctx context.Context, id string) (*Tool, error)
	GetToolByName(ctx context.Context, name string) (*Tool, error)
	ListToolsByServer(ctx context.Context, serverID string) ([]Tool, error)
	// SearchTools returns tools matching q, cosine-ranked when q.QueryVector
	// is set, else sorted by stable name. See §4.1.
	SearchTools(ctx context.Context, q ToolQuery) ([]Tool, error)

	// Bundles
	CreateBundle(ctx context.Context, b *Bundle) error
	UpdateBundle(ctx context.Context, b *Bundle) error
	DeleteBundle(ctx context.Context, id string) error
	GetBundle(ctx context.Context, id string) (*Bundle, error)
	GetBundleByKey(ctx context.Context, key string) (*Bundle, error)
	ListBundlesByUser(ctx context.Context, userID string) ([]Bundle, error)
	ListBundlesReferencingConfiguration(ctx context.Context, configurationID string) ([]Bundle, error)

	// Sessions
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	TouchSession(ctx context.Context, id string) error
	// UpdateSessionExternalMCPSession merges upstreamSessionID into the
	// session's external_mcp_sessions map under row lock, so two concurrent
	// upstream calls on the same gateway session don't clobber each other's
	// entries (§4.1, the one write that can race in the hot path).
	UpdateSessionExternalMCPSession(ctx context.Context, sessionID, serverID, upstreamSessionID string) error
	SweepExpiredSessions(ctx context.Context, idleSince int64) (int, error)
}

// Organization is the root tenancy unit (§3).
type Organization struct {
	ID          string
	Name        string
	Description string
	CreatedAt   int64
}

// Team has zero-or-more user memberships per org (§3). Membership itself
// lives in the external Identity Store, not here.
type Team struct {
	ID             string
	OrganizationID string
	Name           string
}
