package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aci-labs/mcp-gateway/pkg/helper"
)

// Matches the Open Questions decision in SPEC_FULL.md: idle MCP sessions
// expire after an hour; OAuth2 refresh uses a 60s leeway before expiry.
const (
	defaultSessionTTL    = time.Hour
	defaultRefreshLeeway = 60 * time.Second
)

// envPattern matches ${VAR} and ${VAR:default} placeholders, the same
// substitution the teacher's internal/common/config.resolveEnv performs
// before handing the file to yaml.Unmarshal.
var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads filename (resolved via pkg/helper.GetCfgPath), applies a
// .env file if present, substitutes ${VAR}/${VAR:default} placeholders
// against the process environment, and unmarshals the result into a
// GatewayConfig with defaults applied first.
func Load(filename string) (*GatewayConfig, error) {
	_ = godotenv.Load()

	path := helper.GetCfgPath(filename)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := defaultConfig()
	resolved := resolveEnv(raw)
	if err := yaml.Unmarshal(resolved, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = defaultSessionTTL
	}
	if cfg.Credential.RefreshLeeway <= 0 {
		cfg.Credential.RefreshLeeway = defaultRefreshLeeway
	}

	return cfg, nil
}

func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[2])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

func defaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Port: 8080,
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Namespace: "mcp_gateway",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "gateway.db",
		},
		Session: SessionConfig{
			Type: "memory",
			TTL:  defaultSessionTTL,
		},
		Credential: CredentialConfig{
			RefreshLeeway: defaultRefreshLeeway,
		},
		I18n: I18nConfig{
			Dir:             "configs/i18n",
			DefaultLanguage: "en",
		},
	}
}
