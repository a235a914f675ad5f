package catalog

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// gorm row models. Nested structures are stored as JSON text columns,
// the same pattern the teacher's internal/mcp/storage uses for
// MCPConfig.Routers/Servers/Tools.

type organizationModel struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Name        string `gorm:"type:varchar(100);uniqueIndex"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (organizationModel) TableName() string { return "organizations" }

type teamModel struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID string `gorm:"type:varchar(36);index;uniqueIndex:idx_team_org_name,priority:1"`
	Name           string `gorm:"type:varchar(100);uniqueIndex:idx_team_org_name,priority:2"`
}

func (teamModel) TableName() string { return "teams" }

type serverModel struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)"`
	Name           string  `gorm:"type:varchar(100);uniqueIndex"`
	Kind           string  `gorm:"type:varchar(16);index"`
	URL            string  `gorm:"type:text"`
	Transport      string  `gorm:"type:varchar(32)"`
	Description    string  `gorm:"type:text"`
	Categories     string  `gorm:"type:text"` // json []string
	AuthConfigs    string  `gorm:"type:text"` // json []AuthConfig
	ServerMetadata string  `gorm:"type:text"` // json map[string]any
	OrganizationID *string `gorm:"type:varchar(36);index"`
	LastSyncedAt   *time.Time
	Embedding      string `gorm:"type:text"` // json []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (serverModel) TableName() string { return "servers" }

func (m *serverModel) BeforeCreate(_ *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return nil
}

func (m *serverModel) BeforeUpdate(_ *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

func serverToModel(s *Server) (*serverModel, error) {
	categories, err := json.Marshal(s.Categories)
	if err != nil {
		return nil, err
	}
	authConfigs, err := json.Marshal(s.AuthConfigs)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(s.ServerMetadata)
	if err != nil {
		return nil, err
	}
	embedding, err := json.Marshal(s.Embedding)
	if err != nil {
		return nil, err
	}
	return &serverModel{
		ID:             s.ID,
		Name:           s.Name,
		Kind:           string(s.Kind),
		URL:            s.URL,
		Transport:      string(s.Transport),
		Description:    s.Description,
		Categories:     string(categories),
		AuthConfigs:    string(authConfigs),
		ServerMetadata: string(meta),
		OrganizationID: s.OrganizationID,
		LastSyncedAt:   s.LastSyncedAt,
		Embedding:      string(embedding),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func (m *serverModel) toDomain() (*Server, error) {
	s := &Server{
		ID:             m.ID,
		Name:           m.Name,
		Kind:           ServerKind(m.Kind),
		URL:            m.URL,
		Transport:      Transport(m.Transport),
		Description:    m.Description,
		OrganizationID: m.OrganizationID,
		LastSyncedAt:   m.LastSyncedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if len(m.Categories) > 0 {
		if err := json.Unmarshal([]byte(m.Categories), &s.Categories); err != nil {
			return nil, err
		}
	}
	if len(m.AuthConfigs) > 0 {
		if err := json.Unmarshal([]byte(m.AuthConfigs), &s.AuthConfigs); err != nil {
			return nil, err
		}
	}
	if len(m.ServerMetadata) > 0 {
		if err := json.Unmarshal([]byte(m.ServerMetadata), &s.ServerMetadata); err != nil {
			return nil, err
		}
	}
	if len(m.Embedding) > 0 {
		if err := json.Unmarshal([]byte(m.Embedding), &s.Embedding); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type configurationModel struct {
	ID                        string `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID            string `gorm:"type:varchar(36);index"`
	MCPServerID               string `gorm:"type:varchar(36);index"`
	Name                      string `gorm:"type:varchar(100)"`
	AuthType                  string `gorm:"type:varchar(16)"`
	ConnectedAccountOwnership string `gorm:"type:varchar(16)"`
	AllToolsEnabled           bool
	EnabledTools              string `gorm:"type:text"` // json []string
	AllowedTeams              string `gorm:"type:text"` // json []string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	DeletedAt                 gorm.DeletedAt `gorm:"index"`
}

func (configurationModel) TableName() string { return "configurations" }

func (m *configurationModel) BeforeCreate(_ *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return nil
}

func (m *configurationModel) BeforeUpdate(_ *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

func configurationToModel(c *Configuration) (*configurationModel, error) {
	enabled, err := json.Marshal(c.EnabledTools)
	if err != nil {
		return nil, err
	}
	teams, err := json.Marshal(c.AllowedTeams)
	if err != nil {
		return nil, err
	}
	return &configurationModel{
		ID:                        c.ID,
		OrganizationID:            c.OrganizationID,
		MCPServerID:               c.MCPServerID,
		Name:                      c.Name,
		AuthType:                  string(c.AuthType),
		ConnectedAccountOwnership: string(c.ConnectedAccountOwnership),
		AllToolsEnabled:           c.AllToolsEnabled,
		EnabledTools:              string(enabled),
		AllowedTeams:              string(teams),
		CreatedAt:                 c.CreatedAt,
		UpdatedAt:                 c.UpdatedAt,
	}, nil
}

func (m *configurationModel) toDomain() (*Configuration, error) {
	c := &Configuration{
		ID:                        m.ID,
		OrganizationID:            m.OrganizationID,
		MCPServerID:               m.MCPServerID,
		Name:                      m.Name,
		AuthType:                  AuthType(m.AuthType),
		ConnectedAccountOwnership: Ownership(m.ConnectedAccountOwnership),
		AllToolsEnabled:           m.AllToolsEnabled,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}
	if len(m.EnabledTools) > 0 {
		if err := json.Unmarshal([]byte(m.EnabledTools), &c.EnabledTools); err != nil {
			return nil, err
		}
	}
	if len(m.AllowedTeams) > 0 {
		if err := json.Unmarshal([]byte(m.AllowedTeams), &c.AllowedTeams); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type connectedAccountModel struct {
	ID                       string  `gorm:"primaryKey;type:varchar(36)"`
	UserID                   *string `gorm:"type:varchar(36);index"`
	MCPServerConfigurationID string  `gorm:"type:varchar(36);index"`
	Ownership                string  `gorm:"type:varchar(16)"`
	AuthCredentials          string  `gorm:"type:text"` // json AuthCredentials
	CreatedAt                time.Time
	UpdatedAt                time.Time
	DeletedAt                gorm.DeletedAt `gorm:"index"`
}

func (connectedAccountModel) TableName() string { return "connected_accounts" }

func (m *connectedAccountModel) BeforeCreate(_ *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return nil
}

func (m *connectedAccountModel) BeforeUpdate(_ *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

func connectedAccountToModel(a *ConnectedAccount) (*connectedAccountModel, error) {
	creds, err := json.Marshal(a.AuthCredentials)
	if err != nil {
		return nil, err
	}
	return &connectedAccountModel{
		ID:                       a.ID,
		UserID:                   a.UserID,
		MCPServerConfigurationID: a.MCPServerConfigurationID,
		Ownership:                string(a.Ownership),
		AuthCredentials:          string(creds),
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	}, nil
}

func (m *connectedAccountModel) toDomain() (*ConnectedAccount, error) {
	a := &ConnectedAccount{
		ID:                       m.ID,
		UserID:                   m.UserID,
		MCPServerConfigurationID: m.MCPServerConfigurationID,
		Ownership:                Ownership(m.Ownership),
		CreatedAt:                m.CreatedAt,
		UpdatedAt:                m.UpdatedAt,
	}
	if len(m.AuthCredentials) > 0 {
		if err := json.Unmarshal([]byte(m.AuthCredentials), &a.AuthCredentials); err != nil {
			return nil, err
		}
	}
	return a, nil
}

type toolModel struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	MCPServerID  string `gorm:"type:varchar(36);index"`
	Name         string `gorm:"type:varchar(200);uniqueIndex"`
	Description  string `gorm:"type:text"`
	InputSchema  string `gorm:"type:text"`
	Tags         string `gorm:"type:text"` // json []string
	ToolMetadata string `gorm:"type:text"` // json ToolMetadata
	Virtual      string `gorm:"type:text"` // json *VirtualToolMetadata, empty if nil
	Embedding    string `gorm:"type:text"` // json []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (toolModel) TableName() string { return "tools" }

func (m *toolModel) BeforeCreate(_ *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return nil
}

func (m *toolModel) BeforeUpdate(_ *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

func toolToModel(t *Tool) (*toolModel, error) {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(t.ToolMetadata)
	if err != nil {
		return nil, err
	}
	var virtual string
	if t.Virtual != nil {
		b, err := json.Marshal(t.Virtual)
		if err != nil {
			return nil, err
		}
		virtual = string(b)
	}
	embedding, err := json.Marshal(t.Embedding)
	if err != nil {
		return nil, err
	}
	return &toolModel{
		ID:           t.ID,
		MCPServerID:  t.MCPServerID,
		Name:         t.Name,
		Description:  t.Description,
		InputSchema:  string(t.InputSchema),
		Tags:         string(tags),
		ToolMetadata: string(meta),
		Virtual:      virtual,
		Embedding:    string(embedding),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}, nil
}

func (m *toolModel) toDomain() (*Tool, error) {
	t := &Tool{
		ID:          m.ID,
		MCPServerID: m.MCPServerID,
		Name:        m.Name,
		Description: m.Description,
		InputSchema: []byte(m.InputSchema),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Tags) > 0 {
		if err := json.Unmarshal([]byte(m.Tags), &t.Tags); err != nil {
			return nil, err
		}
	}
	if len(m.ToolMetadata) > 0 {
		if err := json.Unmarshal([]byte(m.ToolMetadata), &t.ToolMetadata); err != nil {
			return nil, err
		}
	}
	if len(m.Virtual) > 0 {
		t.Virtual = &VirtualToolMetadata{}
		if err := json.Unmarshal([]byte(m.Virtual), t.Virtual); err != nil {
			return nil, err
		}
	}
	if len(m.Embedding) > 0 {
		if err := json.Unmarshal([]byte(m.Embedding), &t.Embedding); err != nil {
			return nil, err
		}
	}
	return t, nil
}

type bundleModel struct {
	ID                        string `gorm:"primaryKey;type:varchar(36)"`
	UserID                    string `gorm:"type:varchar(36);index"`
	OrganizationID            string `gorm:"type:varchar(36);index"`
	Name                      string `gorm:"type:varchar(100)"`
	BundleKey                 string `gorm:"type:varchar(100);uniqueIndex"`
	MCPServerConfigurationIDs string `gorm:"type:text"` // json []string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	DeletedAt                 gorm.DeletedAt `gorm:"index"`
}

func (bundleModel) TableName() string { return "bundles" }

func (m *bundleModel) BeforeCreate(_ *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return nil
}

func (m *bundleModel) BeforeUpdate(_ *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

func bundleToModel(b *Bundle) (*bundleModel, error) {
	ids, err := json.Marshal(b.MCPServerConfigurationIDs)
	if err != nil {
		return nil, err
	}
	return &bundleModel{
		ID:                        b.ID,
		UserID:                    b.UserID,
		OrganizationID:            b.OrganizationID,
		Name:                      b.Name,
		BundleKey:                 b.BundleKey,
		MCPServerConfigurationIDs: string(ids),
		CreatedAt:                 b.CreatedAt,
		UpdatedAt:                 b.UpdatedAt,
	}, nil
}

func (m *bundleModel) toDomain() (*Bundle, error) {
	b := &Bundle{
		ID:             m.ID,
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		Name:           m.Name,
		BundleKey:      m.BundleKey,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if len(m.MCPServerConfigurationIDs) > 0 {
		if err := json.Unmarshal([]byte(m.MCPServerConfigurationIDs), &b.MCPServerConfigurationIDs); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// sessionModel persists §3's MCP Session. ExternalMCPSessions is merged,
// not replaced, by UpdateSessionExternalMCPSession — see gorm_store.go.
type sessionModel struct {
	ID                  string `gorm:"primaryKey;type:varchar(36)"`
	BundleID            string `gorm:"type:varchar(36);index"`
	ExternalMCPSessions string `gorm:"type:text"` // json map[string]string
	LastAccessedAt      time.Time
	Deleted             bool `gorm:"index"`
}

func (sessionModel) TableName() string { return "mcp_sessions" }

func (m *sessionModel) toDomain() (*Session, error) {
	s := &Session{
		ID:             m.ID,
		BundleID:       m.BundleID,
		LastAccessedAt: m.LastAccessedAt,
		Deleted:        m.Deleted,
	}
	s.ExternalMCPSessions = map[string]string{}
	if len(m.ExternalMCPSessions) > 0 {
		if err := json.Unmarshal([]byte(m.ExternalMCPSessions), &s.ExternalMCPSessions); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func sessionToModel(s *Session) (*sessionModel, error) {
	ext, err := json.Marshal(s.ExternalMCPSessions)
	if err != nil {
		return nil, err
	}
	return &sessionModel{
		ID:                  s.ID,
		BundleID:            s.BundleID,
		ExternalMCPSessions: string(ext),
		LastAccessedAt:      s.LastAccessedAt,
		Deleted:             s.Deleted,
	}, nil
}
