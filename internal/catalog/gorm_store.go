package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aci-labs/mcp-gateway/internal/config"
	catalogerrors "github.com/aci-labs/mcp-gateway/pkg/errors"
)

// DatabaseDriver enumerates the backends the teacher's factory pattern
// (internal/mcp/storage.NewDBStore) dials through gorm.
type DatabaseDriver string

const (
	DriverPostgres DatabaseDriver = "postgres"
	DriverMySQL    DatabaseDriver = "mysql"
	DriverSQLite   DatabaseDriver = "sqlite"
)

// GormStore implements Store over gorm, matching any of postgres/mysql/sqlite.
type GormStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore dials the configured backend and auto-migrates the schema.
func NewGormStore(logger *zap.Logger, cfg config.DatabaseConfig) (*GormStore, error) {
	logger = logger.Named("catalog.store")

	var dialector gorm.Dialector
	switch DatabaseDriver(cfg.Driver) {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("catalog: unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.AutoMigrate(
		&organizationModel{}, &teamModel{}, &serverModel{}, &configurationModel{},
		&connectedAccountModel{}, &toolModel{}, &bundleModel{}, &sessionModel{},
	); err != nil {
		return nil, fmt.Errorf("catalog: automigrate: %w", err)
	}

	return &GormStore{logger: logger, db: db}, nil
}

// --- organizations, teams ---

func (s *GormStore) CreateOrganization(ctx context.Context, org *Organization) error {
	m := &organizationModel{ID: org.ID, Name: org.Name, Description: org.Description, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return catalogerrors.ErrDuplicateOrgName(org.Name)
	}
	org.CreatedAt = m.CreatedAt.Unix()
	return nil
}

func (s *GormStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var m organizationModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &Organization{ID: m.ID, Name: m.Name, Description: m.Description, CreatedAt: m.CreatedAt.Unix()}, nil
}

func (s *GormStore) CreateTeam(ctx context.Context, team *Team) error {
	m := &teamModel{ID: team.ID, OrganizationID: team.OrganizationID, Name: team.Name}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) ListTeamsByOrg(ctx context.Context, orgID string) ([]Team, error) {
	var ms []teamModel
	if err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]Team, len(ms))
	for i, m := range ms {
		out[i] = Team{ID: m.ID, OrganizationID: m.OrganizationID, Name: m.Name}
	}
	return out, nil
}

// --- servers ---

func (s *GormStore) CreateServer(ctx context.Context, srv *Server) error {
	m, err := serverToModel(srv)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return catalogerrors.ErrDuplicateServerName(srv.Name)
	}
	return nil
}

func (s *GormStore) UpdateServer(ctx context.Context, srv *Server) error {
	m, err := serverToModel(srv)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&serverModel{}).Where("id = ?", srv.ID).Updates(m).Error
}

func (s *GormStore) DeleteServer(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var configIDs []string
		if err := tx.Model(&configurationModel{}).Where("mcp_server_id = ?", id).Pluck("id", &configIDs).Error; err != nil {
			return err
		}
		if len(configIDs) > 0 {
			if err := tx.Where("mcp_server_configuration_id IN ?", configIDs).Delete(&connectedAccountModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", configIDs).Delete(&configurationModel{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("mcp_server_id = ?", id).Delete(&toolModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&serverModel{}, "id = ?", id).Error
	})
}

func (s *GormStore) GetServerByName(ctx context.Context, name string) (*Server, error) {
	var m serverModel
	if err := s.db.WithContext(ctx).First(&m, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, catalogerrors.ErrServerNotFound(name)
		}
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) GetServer(ctx context.Context, id string) (*Server, error) {
	var m serverModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) ListServers(ctx context.Context, orgID *string) ([]Server, error) {
	q := s.db.WithContext(ctx).Model(&serverModel{})
	if orgID != nil {
		q = q.Where("organization_id = ? OR organization_id IS NULL", *orgID)
	}
	var ms []serverModel
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]Server, 0, len(ms))
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// --- configurations ---

func (s *GormStore) CreateConfiguration(ctx context.Context, c *Configuration) error {
	m, err := configurationToModel(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) UpdateConfiguration(ctx context.Context, c *Configuration) error {
	m, err := configurationToModel(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&configurationModel{}).Where("id = ?", c.ID).Updates(m).Error
}

func (s *GormStore) DeleteConfiguration(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mcp_server_configuration_id = ?", id).Delete(&connectedAccountModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&configurationModel{}, "id = ?", id).Error
	})
}

func (s *GormStore) GetConfiguration(ctx context.Context, id string) (*Configuration, error) {
	var m configurationModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) ListConfigurationsByServer(ctx context.Context, serverID string) ([]Configuration, error) {
	var ms []configurationModel
	if err := s.db.WithContext(ctx).Where("mcp_server_id = ?", serverID).Find(&ms).Error; err != nil {
		return nil, err
	}
	return configurationsToDomain(ms)
}

func (s *GormStore) ListConfigurationsByOrg(ctx context.Context, orgID string) ([]Configuration, error) {
	var ms []configurationModel
	if err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).Find(&ms).Error; err != nil {
		return nil, err
	}
	return configurationsToDomain(ms)
}

func configurationsToDomain(ms []configurationModel) ([]Configuration, error) {
	out := make([]Configuration, 0, len(ms))
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// --- connected accounts ---

func (s *GormStore) CreateConnectedAccount(ctx context.Context, a *ConnectedAccount) error {
	m, err := connectedAccountToModel(a)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) UpdateConnectedAccount(ctx context.Context, a *ConnectedAccount) error {
	m, err := connectedAccountToModel(a)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&connectedAccountModel{}).Where("id = ?", a.ID).Updates(m).Error
}

func (s *GormStore) DeleteConnectedAccount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&connectedAccountModel{}, "id = ?", id).Error
}

func (s *GormStore) GetConnectedAccount(ctx context.Context, id string) (*ConnectedAccount, error) {
	var m connectedAccountModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) GetIndividualAccount(ctx context.Context, userID, configurationID string) (*ConnectedAccount, error) {
	var m connectedAccountModel
	err := s.db.WithContext(ctx).
		Where("mcp_server_configuration_id = ? AND user_id = ? AND ownership = ?", configurationID, userID, OwnershipIndividual).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) GetSharedOrOperationalAccount(ctx context.Context, configurationID string) (*ConnectedAccount, error) {
	var m connectedAccountModel
	err := s.db.WithContext(ctx).
		Where("mcp_server_configuration_id = ? AND ownership IN ?", configurationID, []string{string(OwnershipShared), string(OwnershipOperational)}).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) ListConnectedAccountsByConfiguration(ctx context.Context, configurationID string) ([]ConnectedAccount, error) {
	var ms []connectedAccountModel
	if err := s.db.WithContext(ctx).Where("mcp_server_configuration_id = ?", configurationID).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]ConnectedAccount, 0, len(ms))
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// --- tools ---

func (s *GormStore) CreateTools(ctx context.Context, tools []Tool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tools {
			m, err := toolToModel(&t)
			if err != nil {
				return err
			}
			if err := tx.Create(m).Error; err != nil {
				return catalogerrors.ErrDuplicateToolName(t.Name)
			}
		}
		return nil
	})
}

// UpdateTools applies each tool's fields; Embedding is written only when
// non-nil, matching §4.1 "embedding column updated only when a non-null
// vector is supplied".
func (s *GormStore) UpdateTools(ctx context.Context, tools []Tool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tools {
			m, err := toolToModel(&t)
			if err != nil {
				return err
			}
			updates := map[string]any{
				"description":   m.Description,
				"input_schema":  m.InputSchema,
				"tags":          m.Tags,
				"tool_metadata": m.ToolMetadata,
				"virtual":       m.Virtual,
			}
			if t.Embedding != nil {
				updates["embedding"] = m.Embedding
			}
			if err := tx.Model(&toolModel{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteTools(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&toolModel{}).Error
}

func (s *GormStore) GetTool(ctx context.Context, id string) (*Tool, error) {
	var m toolModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) GetToolByName(ctx context.Context, name string) (*Tool, error) {
	var m toolModel
	if err := s.db.WithContext(ctx).First(&m, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, catalogerrors.ErrToolNotFound(name)
		}
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) ListToolsByServer(ctx context.Context, serverID string) ([]Tool, error) {
	var ms []toolModel
	if err := s.db.WithContext(ctx).Where("mcp_server_id = ?", serverID).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]Tool, 0, len(ms))
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// SearchTools implements §4.1's contract. The vector index is a brute-force
// in-memory cosine scan (see DESIGN.md: no example in the corpus wires a
// dedicated vector-DB client into a gorm-based store, so this stays on the
// standard library) restricted by AllowedServerIDs/DisabledToolIDs.
func (s *GormStore) SearchTools(ctx context.Context, q ToolQuery) ([]Tool, error) {
	query := s.db.WithContext(ctx).Model(&toolModel{})
	if len(q.AllowedServerIDs) > 0 {
		query = query.Where("mcp_server_id IN ?", q.AllowedServerIDs)
	}
	if len(q.DisabledToolIDs) > 0 {
		query = query.Where("id NOT IN ?", q.DisabledToolIDs)
	}

	var ms []toolModel
	if err := query.Find(&ms).Error; err != nil {
		return nil, err
	}

	tools := make([]Tool, 0, len(ms))
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		tools = append(tools, *d)
	}

	if q.QueryVector == nil {
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	} else {
		sort.Slice(tools, func(i, j int) bool {
			return cosineDistance(q.QueryVector, tools[i].Embedding) < cosineDistance(q.QueryVector, tools[j].Embedding)
		})
	}

	return paginate(tools, q.Offset, q.Limit), nil
}

func paginate(tools []Tool, offset, limit int) []Tool {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tools) {
		return nil
	}
	end := len(tools)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return tools[offset:end]
}

// cosineDistance is 1 - cosine similarity; lower is more similar.
// Mismatched or empty vectors sort last.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return math.Inf(1)
	}
	return 1 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
}

// --- bundles ---

func (s *GormStore) CreateBundle(ctx context.Context, b *Bundle) error {
	m, err := bundleToModel(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) UpdateBundle(ctx context.Context, b *Bundle) error {
	m, err := bundleToModel(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&bundleModel{}).Where("id = ?", b.ID).Updates(m).Error
}

func (s *GormStore) DeleteBundle(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&bundleModel{}, "id = ?", id).Error
}

func (s *GormStore) GetBundle(ctx context.Context, id string) (*Bundle, error) {
	var m bundleModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) GetBundleByKey(ctx context.Context, key string) (*Bundle, error) {
	var m bundleModel
	if err := s.db.WithContext(ctx).First(&m, "bundle_key = ?", key).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) ListBundlesByUser(ctx context.Context, userID string) ([]Bundle, error) {
	var ms []bundleModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]Bundle, 0, len(ms))
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// ListBundlesReferencingConfiguration scans every bundle for configurationID
// in its MCPServerConfigurationIDs; used by the orphan cleaner (C7). The
// JSON-text column means this can't be pushed down as a SQL predicate
// portably across postgres/mysql/sqlite, so it filters in Go.
func (s *GormStore) ListBundlesReferencingConfiguration(ctx context.Context, configurationID string) ([]Bundle, error) {
	var ms []bundleModel
	if err := s.db.WithContext(ctx).Find(&ms).Error; err != nil {
		return nil, err
	}
	var out []Bundle
	for _, m := range ms {
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		for _, id := range d.MCPServerConfigurationIDs {
			if id == configurationID {
				out = append(out, *d)
				break
			}
		}
	}
	return out, nil
}

// --- sessions ---

func (s *GormStore) CreateSession(ctx context.Context, sess *Session) error {
	m, err := sessionToModel(sess)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var m sessionModel
	if err := s.db.WithContext(ctx).First(&m, "id = ? AND deleted = ?", id, false).Error; err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *GormStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&sessionModel{}).Where("id = ?", id).Update("deleted", true).Error
}

func (s *GormStore) TouchSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&sessionModel{}).Where("id = ?", id).Update("last_accessed_at", time.Now()).Error
}

// UpdateSessionExternalMCPSession merges a single server_id -> session-id
// entry under row lock, per §4.1: "the only write that can race in the hot
// path". Two concurrent upstream calls reading-then-writing the same JSON
// blob without a lock would clobber each other's entries; SELECT ... FOR
// UPDATE inside a transaction serializes the read-modify-write.
func (s *GormStore) UpdateSessionExternalMCPSession(ctx context.Context, sessionID, serverID, upstreamSessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m sessionModel
		if err := tx.Clauses(lockingClause()).First(&m, "id = ?", sessionID).Error; err != nil {
			return err
		}
		d, err := m.toDomain()
		if err != nil {
			return err
		}
		d.ExternalMCPSessions[serverID] = upstreamSessionID
		updated, err := sessionToModel(d)
		if err != nil {
			return err
		}
		return tx.Model(&sessionModel{}).Where("id = ?", sessionID).Updates(map[string]any{
			"external_mcp_sessions": updated.ExternalMCPSessions,
			"last_accessed_at":      time.Now(),
		}).Error
	})
}

func (s *GormStore) SweepExpiredSessions(ctx context.Context, idleSince int64) (int, error) {
	cutoff := time.Unix(idleSince, 0)
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("last_accessed_at < ? AND deleted = ?", cutoff, false).
		Update("deleted", true)
	return int(res.RowsAffected), res.Error
}
