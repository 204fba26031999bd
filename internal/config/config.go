// Package config loads the service configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/gravilog-risk-core/internal/domain"
)

// EnvPrefix is the prefix of every environment override, e.g. GRAVILOG_SERVER_PORT.
const EnvPrefix = "GRAVILOG"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager. configFile may be empty, in
// which case config.yaml is searched in the usual places.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(configFile); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig(configFile string) error {
	v := m.v
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gravilog/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("reasoning.api_key", EnvPrefix+"_REASONING_API_KEY", "OPENAI_API_KEY"); err != nil {
		return fmt.Errorf("binding api key: %w", err)
	}

	setDefaults(v)

	// The file is optional unless it was named explicitly.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// DefaultDataDir is where local state lives when no paths are configured.
func DefaultDataDir() string {
	if v := os.Getenv(EnvPrefix + "_DATA_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gravilog"
	}
	return filepath.Join(home, ".gravilog")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	// Assessment policy
	v.SetDefault("assessment.min_questions", 3)
	v.SetDefault("assessment.max_questions", 5)
	v.SetDefault("assessment.reasoning_timeout", "20s")
	v.SetDefault("assessment.session_ttl", "2h")
	v.SetDefault("assessment.completed_ttl", "24h")
	v.SetDefault("assessment.default_locale", "en")

	// Reasoning service
	v.SetDefault("reasoning.enabled", true)
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.base_url", "")
	v.SetDefault("reasoning.model", "gpt-3.5-turbo")
	v.SetDefault("reasoning.temperature", 0.3)
	v.SetDefault("reasoning.max_tokens", 500)
	v.SetDefault("reasoning.timeout", "15s")
	v.SetDefault("reasoning.retry_backoff", "500ms")
	v.SetDefault("reasoning.rate_limit", 5.0)
	v.SetDefault("reasoning.rate_burst", 5)
	v.SetDefault("reasoning.breaker.max_requests", 1)
	v.SetDefault("reasoning.breaker.interval", "30s")
	v.SetDefault("reasoning.breaker.timeout", "60s")
	v.SetDefault("reasoning.breaker.failure_ratio", 0.6)
	v.SetDefault("reasoning.breaker.min_requests", 3)

	// Cache defaults
	v.SetDefault("cache.lru_size", 1000)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.redis_url", "")

	// Assessment store
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", filepath.Join(dataDir, "assessments.db"))
	v.SetDefault("store.postgres_dsn", "")

	// Audit trail database
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "gravilog")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.migrate_on_start", true)

	// Reports
	v.SetDefault("report.font_path", "")
	v.SetDefault("report.output_dir", "")

	// Catalogue overrides
	v.SetDefault("catalogue.rules_file", "")
	v.SetDefault("catalogue.questions_file", "")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetAssessmentConfig returns the questioning policy
func (m *Manager) GetAssessmentConfig() *domain.AssessmentConfig {
	return &m.config.Assessment
}

// GetReasoningConfig returns reasoning service configuration
func (m *Manager) GetReasoningConfig() *domain.ReasoningConfig {
	return &m.config.Reasoning
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// Set overrides a single key, e.g. from a command-line flag, and reloads the struct.
func (m *Manager) Set(key string, value interface{}) error {
	m.v.Set(key, value)
	config := &domain.Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.config = config
	return nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	a := config.Assessment
	if a.MinQuestions < 1 || a.MaxQuestions < a.MinQuestions {
		return fmt.Errorf("invalid question bounds: min %d, max %d", a.MinQuestions, a.MaxQuestions)
	}
	if a.ReasoningTimeout <= 0 {
		return fmt.Errorf("reasoning timeout must be positive")
	}
	if a.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	r := config.Reasoning
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("invalid reasoning temperature: %v", r.Temperature)
	}
	if r.Breaker.FailureRatio <= 0 || r.Breaker.FailureRatio > 1 {
		return fmt.Errorf("breaker failure ratio must be in (0, 1], got %v", r.Breaker.FailureRatio)
	}

	switch config.Store.Driver {
	case "memory":
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite store requires store.sqlite_path")
		}
	case "postgres":
		if config.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires store.postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", config.Store.Driver)
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
