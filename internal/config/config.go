// Package config defines the gateway's typed configuration tree and the
// loader that turns a YAML file plus environment overrides into it.
package config

import "time"

type (
	// GatewayConfig is the root configuration for cmd/gateway.
	GatewayConfig struct {
		Port       int              `yaml:"port"`
		SuperAdmin SuperAdminConfig `yaml:"super_admin"`
		Logger     LoggerConfig     `yaml:"logger"`
		Metrics    MetricsConfig    `yaml:"metrics"`
		Trace      TraceConfig      `yaml:"trace"`
		Database   DatabaseConfig   `yaml:"database"`
		Session    SessionConfig    `yaml:"session"`
		Embedding  EmbeddingConfig  `yaml:"embedding"`
		Credential CredentialConfig `yaml:"credential"`
		JWT        JWTConfig        `yaml:"jwt"`
		I18n       I18nConfig       `yaml:"i18n"`
	}

	SuperAdminConfig struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	}

	// LoggerConfig mirrors the teacher's zap+lumberjack wiring in pkg/logger.
	LoggerConfig struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"` // json or console
		Output     string `yaml:"output"` // stdout, stderr, or file
		FilePath   string `yaml:"file_path"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
		Color      bool   `yaml:"color"`
		Stacktrace bool   `yaml:"stacktrace"`
		TimeZone   string `yaml:"time_zone"`
		TimeFormat string `yaml:"time_format"`
	}

	// MetricsConfig mirrors pkg/metrics' prometheus registration.
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TraceConfig is passed straight through to pkg/trace.Config.
	TraceConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`
		Protocol    string            `yaml:"protocol"`
		Insecure    bool              `yaml:"insecure"`
		SamplerRate float64           `yaml:"sampler_rate"`
		Environment string            `yaml:"environment"`
		Headers     map[string]string `yaml:"headers"`
	}

	// DatabaseConfig configures the gorm-backed catalog store (C1). Driver
	// selects one of postgres/mysql/sqlite, matching the teacher's
	// internal/apiserver/database multi-backend factory.
	DatabaseConfig struct {
		Driver          string        `yaml:"driver"`
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	}

	// SessionConfig configures the session store (C9). Type "redis" selects
	// the Redis-backed store; any other value keeps sessions in the catalog
	// database. Shaped after the teacher's internal/common/config.SessionConfig.
	SessionConfig struct {
		Type  string             `yaml:"type"`
		TTL   time.Duration      `yaml:"ttl"`
		Redis SessionRedisConfig `yaml:"redis"`
	}

	SessionRedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Topic    string `yaml:"topic"`
	}

	// EmbeddingConfig configures the embedding adapter (C2).
	EmbeddingConfig struct {
		Provider string `yaml:"provider"` // openai, local, none
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		Dim      int    `yaml:"dim"`
	}

	// CredentialConfig configures OAuth2 refresh behavior (C3).
	CredentialConfig struct {
		RefreshLeeway time.Duration `yaml:"refresh_leeway"`
		RefreshDedup  bool          `yaml:"refresh_dedup"` // best-effort Redis SETNX dedup, see DESIGN.md
	}

	// JWTConfig configures session-id signing (C9).
	JWTConfig struct {
		Secret   string        `yaml:"secret"`
		Issuer   string        `yaml:"issuer"`
		TokenTTL time.Duration `yaml:"token_ttl"`
	}

	I18nConfig struct {
		Dir             string `yaml:"dir"`
		DefaultLanguage string `yaml:"default_language"`
	}
)
